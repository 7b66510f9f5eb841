// Package model contains the payload types sent to the Machinist endpoint.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Well-known keys of the data_point object.
const (
	KeyValue     = "value"
	KeyTimestamp = "timestamp"
	KeyMeta      = "meta"
)

// Well-known keys of the meta object, used for map display.
const (
	KeyLatitude  = "latitude"
	KeyLongitude = "longitude"
)

// Body is the top-level request payload.
type Body struct {
	Agent   string   `json:"agent"`
	Metrics []Metric `json:"metrics"`
}

// MarshalJSON always emits metrics as an array, never null.
func (b Body) MarshalJSON() ([]byte, error) {
	type body Body
	if b.Metrics == nil {
		b.Metrics = []Metric{}
	}
	return json.Marshal(body(b))
}

// Metric is a named, taggable record wrapping one data point.
type Metric struct {
	Name      string            `json:"name" validate:"required"`
	DataPoint DataPoint         `json:"data_point"`
	Namespace string            `json:"namespace,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// DataPoint is a single observation. Keys not covered by the typed fields
// live in Extra and are flattened into the JSON object.
type DataPoint struct {
	Value     float64
	Timestamp *float64
	Meta      *Meta
	Extra     map[string]any
}

// Meta carries optional location data plus free-form keys.
type Meta struct {
	Latitude  *float64
	Longitude *float64
	Extra     map[string]any
}

// MarshalJSON writes Extra keys next to value, timestamp and meta.
func (d DataPoint) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+3)
	for k, v := range d.Extra {
		out[k] = v
	}
	out[KeyValue] = d.Value
	if d.Timestamp != nil {
		out[KeyTimestamp] = *d.Timestamp
	}
	if d.Meta != nil {
		out[KeyMeta] = d.Meta
	}
	return json.Marshal(out)
}

// UnmarshalJSON keeps unknown data_point keys in Extra.
func (d *DataPoint) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = DataPoint{}
	for k, v := range raw {
		switch k {
		case KeyValue:
			if err := json.Unmarshal(v, &d.Value); err != nil {
				return fmt.Errorf("data_point.value: %w", err)
			}
		case KeyTimestamp:
			var ts float64
			if err := json.Unmarshal(v, &ts); err != nil {
				return fmt.Errorf("data_point.timestamp: %w", err)
			}
			d.Timestamp = &ts
		case KeyMeta:
			var m Meta
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("data_point.meta: %w", err)
			}
			d.Meta = &m
		default:
			if err := setExtra(&d.Extra, k, v); err != nil {
				return fmt.Errorf("data_point.%s: %w", k, err)
			}
		}
	}
	return nil
}

// MarshalJSON writes Extra keys next to latitude and longitude.
func (m Meta) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Latitude != nil {
		out[KeyLatitude] = *m.Latitude
	}
	if m.Longitude != nil {
		out[KeyLongitude] = *m.Longitude
	}
	return json.Marshal(out)
}

// UnmarshalJSON keeps unknown meta keys in Extra.
func (m *Meta) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Meta{}
	for k, v := range raw {
		switch k {
		case KeyLatitude, KeyLongitude:
			var f float64
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("meta.%s: %w", k, err)
			}
			if k == KeyLatitude {
				m.Latitude = &f
			} else {
				m.Longitude = &f
			}
		default:
			if err := setExtra(&m.Extra, k, v); err != nil {
				return fmt.Errorf("meta.%s: %w", k, err)
			}
		}
	}
	return nil
}

func setExtra(dst *map[string]any, key string, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if *dst == nil {
		*dst = make(map[string]any)
	}
	(*dst)[key] = v
	return nil
}

// Timestamp converts t to POSIX seconds with sub-second precision.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// NewMetric returns a metric with the given name and value.
func NewMetric(name string, value float64) Metric {
	return Metric{Name: name, DataPoint: DataPoint{Value: value}}
}

// WithNamespace returns a copy of m under namespace ns.
func (m Metric) WithNamespace(ns string) Metric {
	m.Namespace = ns
	return m
}

// WithTag returns a copy of m with the tag set. The tag map is copied.
func (m Metric) WithTag(key, value string) Metric {
	tags := make(map[string]string, len(m.Tags)+1)
	for k, v := range m.Tags {
		tags[k] = v
	}
	tags[key] = value
	m.Tags = tags
	return m
}

// WithTimestamp sets data_point.timestamp to t in epoch seconds.
func (m Metric) WithTimestamp(t time.Time) Metric {
	ts := Timestamp(t)
	m.DataPoint.Timestamp = &ts
	return m
}

// WithLocation sets meta.latitude and meta.longitude.
func (m Metric) WithLocation(lat, lon float64) Metric {
	meta := m.meta()
	meta.Latitude, meta.Longitude = &lat, &lon
	m.DataPoint.Meta = meta
	return m
}

// WithMeta sets a free-form meta key.
func (m Metric) WithMeta(key string, value any) Metric {
	meta := m.meta()
	meta.Extra = copyExtra(meta.Extra, 1)
	meta.Extra[key] = value
	m.DataPoint.Meta = meta
	return m
}

// WithField sets an additional data_point key.
func (m Metric) WithField(key string, value any) Metric {
	m.DataPoint.Extra = copyExtra(m.DataPoint.Extra, 1)
	m.DataPoint.Extra[key] = value
	return m
}

func (m Metric) meta() *Meta {
	if m.DataPoint.Meta == nil {
		return &Meta{}
	}
	cp := *m.DataPoint.Meta
	return &cp
}

func copyExtra(src map[string]any, extra int) map[string]any {
	dst := make(map[string]any, len(src)+extra)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
