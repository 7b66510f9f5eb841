package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/Eotel/go-machinist/model"
)

func (c *Client) check(m model.Metric) error {
	if err := c.validate.Struct(m); err != nil {
		return err
	}

	dp := m.DataPoint
	if !finite(dp.Value) {
		return fmt.Errorf("value %v is not finite", dp.Value)
	}
	if dp.Timestamp != nil && !finite(*dp.Timestamp) {
		return fmt.Errorf("timestamp %v is not finite", *dp.Timestamp)
	}
	for _, k := range []string{model.KeyValue, model.KeyTimestamp, model.KeyMeta} {
		if _, ok := dp.Extra[k]; ok {
			return fmt.Errorf("extra field %q shadows data_point.%s", k, k)
		}
	}

	if dp.Meta != nil {
		if err := c.checkMeta(dp.Meta); err != nil {
			return err
		}
	}

	// Extra maps are open, so let the encoder reject what it cannot write.
	if _, err := json.Marshal(m); err != nil {
		return fmt.Errorf("not encodable: %w", err)
	}
	return nil
}

func (c *Client) checkMeta(meta *model.Meta) error {
	for _, k := range []string{model.KeyLatitude, model.KeyLongitude} {
		if _, ok := meta.Extra[k]; ok {
			return fmt.Errorf("extra field %q shadows meta.%s", k, k)
		}
	}
	if meta.Latitude != nil && !finite(*meta.Latitude) {
		return fmt.Errorf("latitude %v is not finite", *meta.Latitude)
	}
	if meta.Longitude != nil && !finite(*meta.Longitude) {
		return fmt.Errorf("longitude %v is not finite", *meta.Longitude)
	}
	if !c.strict {
		return nil
	}
	var errs []error
	if lat := meta.Latitude; lat != nil {
		if err := c.validate.Var(*lat, "min=-90,max=90"); err != nil {
			errs = append(errs, fmt.Errorf("latitude %v out of range [-90, 90]", *lat))
		}
	}
	if lon := meta.Longitude; lon != nil {
		if err := c.validate.Var(*lon, "min=-180,max=180"); err != nil {
			errs = append(errs, fmt.Errorf("longitude %v out of range [-180, 180]", *lon))
		}
	}
	return errors.Join(errs...)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
