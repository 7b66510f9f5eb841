package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Eotel/go-machinist/internal/config"
	"github.com/Eotel/go-machinist/model"
	"github.com/Eotel/go-machinist/storage/inmemory"
)

type recorder struct {
	mu     sync.Mutex
	bodies []model.Body
	auth   []string
	status int
}

func (rec *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var b model.Body
		require.NoError(t, json.Unmarshal(raw, &b))

		rec.mu.Lock()
		rec.bodies = append(rec.bodies, b)
		rec.auth = append(rec.auth, r.Header.Get("Authorization"))
		status := rec.status
		rec.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (rec *recorder) count() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.bodies)
}

func testConfig(url string) *config.AgentConfig {
	return &config.AgentConfig{
		URL:            url,
		APIKey:         "key",
		AgentName:      "edge",
		ReportInterval: 1,
		PollInterval:   1,
		ClientTimeout:  2,
	}
}

func staticCollector(metrics ...model.Metric) Collector {
	return func(context.Context) ([]model.Metric, error) { return metrics, nil }
}

func TestReportOnce_SendsStoredMetrics(t *testing.T) {
	rec := &recorder{}
	ts := httptest.NewServer(rec.handler(t))
	defer ts.Close()

	lat, lon := 35.0, 139.0
	cfg := testConfig(ts.URL)
	cfg.Tags = map[string]string{"site": "tokyo"}
	cfg.Latitude, cfg.Longitude = &lat, &lon

	a := New(cfg, inmemory.NewMemStorage(), nil, staticCollector(
		model.NewMetric("b", 2).WithNamespace("host"),
		model.NewMetric("a", 1).WithNamespace("host").WithTag("k", "v"),
	))
	fixed := time.Unix(1700000000, 0)
	a.now = func() time.Time { return fixed }

	ctx := context.Background()
	a.Poll(ctx)
	code, err := a.ReportOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)

	require.Equal(t, 1, rec.count())
	require.Equal(t, "Bearer key", rec.auth[0])
	body := rec.bodies[0]
	require.Equal(t, "edge", body.Agent)
	require.Len(t, body.Metrics, 2)
	require.Equal(t, "a", body.Metrics[0].Name)
	require.Equal(t, map[string]string{"k": "v", "site": "tokyo"}, body.Metrics[0].Tags)
	require.Equal(t, 1700000000.0, *body.Metrics[0].DataPoint.Timestamp)
	require.Equal(t, 35.0, *body.Metrics[1].DataPoint.Meta.Latitude)
}

func TestReportOnce_Empty(t *testing.T) {
	rec := &recorder{}
	ts := httptest.NewServer(rec.handler(t))
	defer ts.Close()

	a := New(testConfig(ts.URL), inmemory.NewMemStorage(), nil, staticCollector())
	code, err := a.ReportOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, code)
	require.Zero(t, rec.count())
}

func TestReportOnce_NamespaceOverride(t *testing.T) {
	rec := &recorder{}
	ts := httptest.NewServer(rec.handler(t))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Namespace = "fleet"
	a := New(cfg, inmemory.NewMemStorage(), nil, staticCollector(model.NewMetric("x", 1).WithNamespace("host")))
	a.Poll(context.Background())

	_, err := a.ReportOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fleet", rec.bodies[0].Metrics[0].Namespace)
}

func TestReportOnce_StrictSkipsInvalid(t *testing.T) {
	rec := &recorder{}
	ts := httptest.NewServer(rec.handler(t))
	defer ts.Close()

	lat, lon := 95.0, 10.0
	cfg := testConfig(ts.URL)
	cfg.Strict = true
	cfg.Latitude, cfg.Longitude = &lat, &lon

	a := New(cfg, inmemory.NewMemStorage(), nil, staticCollector(model.NewMetric("x", 1)))
	a.Poll(context.Background())

	code, err := a.ReportOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, code)
	require.Zero(t, rec.count())
}

func TestReportOnce_RejectedStatusIsReturned(t *testing.T) {
	rec := &recorder{status: http.StatusTooManyRequests}
	ts := httptest.NewServer(rec.handler(t))
	defer ts.Close()

	a := New(testConfig(ts.URL), inmemory.NewMemStorage(), nil, staticCollector(model.NewMetric("x", 1)))
	a.Poll(context.Background())

	code, err := a.ReportOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, code)
}

func TestReportOnce_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	a := New(testConfig(url), inmemory.NewMemStorage(), nil, staticCollector(model.NewMetric("x", 1)))
	a.Poll(context.Background())

	_, err := a.ReportOnce(context.Background())
	require.Error(t, err)
}

func TestReportOnce_BadConfig(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.APIKey = ""
	a := New(cfg, inmemory.NewMemStorage(), nil, staticCollector(model.NewMetric("x", 1)))
	a.Poll(context.Background())

	_, err := a.ReportOnce(context.Background())
	require.Error(t, err)
}

func TestPoll_KeepsPartialResults(t *testing.T) {
	st := inmemory.NewMemStorage()
	a := New(testConfig("http://localhost"), st, nil,
		func(context.Context) ([]model.Metric, error) {
			return []model.Metric{model.NewMetric("ok", 1)}, errors.New("disk: unavailable")
		},
		func(context.Context) ([]model.Metric, error) { return nil, errors.New("down") },
	)
	a.Poll(context.Background())
	require.Equal(t, 1, st.Len())
}

func TestRun_ReportsAndFlushesOnShutdown(t *testing.T) {
	rec := &recorder{}
	ts := httptest.NewServer(rec.handler(t))
	defer ts.Close()

	a := New(testConfig(ts.URL), inmemory.NewMemStorage(), nil, staticCollector(model.NewMetric("x", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	// one tick after 1s plus the final report
	require.Equal(t, 2, rec.count())
}

func TestPoll_StampsAtPollTime(t *testing.T) {
	rec := &recorder{}
	ts := httptest.NewServer(rec.handler(t))
	defer ts.Close()

	sampled := time.Unix(1700000000, 0)
	stamped := time.Unix(1600000000, 0)
	a := New(testConfig(ts.URL), inmemory.NewMemStorage(), nil, staticCollector(
		model.NewMetric("fresh", 1),
		model.NewMetric("stamped", 2).WithTimestamp(stamped),
	))

	a.now = func() time.Time { return sampled }
	a.Poll(context.Background())

	a.now = func() time.Time { return sampled.Add(30 * time.Second) }
	_, err := a.ReportOnce(context.Background())
	require.NoError(t, err)

	metrics := rec.bodies[0].Metrics
	require.Len(t, metrics, 2)
	require.Equal(t, "fresh", metrics[0].Name)
	require.Equal(t, model.Timestamp(sampled), *metrics[0].DataPoint.Timestamp)
	require.Equal(t, model.Timestamp(stamped), *metrics[1].DataPoint.Timestamp)
}
