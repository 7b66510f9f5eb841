// Package agent samples metrics periodically and reports them to Machinist.
package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Eotel/go-machinist/client"
	"github.com/Eotel/go-machinist/client/transport"
	"github.com/Eotel/go-machinist/internal/collector"
	"github.com/Eotel/go-machinist/internal/config"
	"github.com/Eotel/go-machinist/model"
	"github.com/Eotel/go-machinist/storage"
)

// Collector produces one sample of metrics.
type Collector func(ctx context.Context) ([]model.Metric, error)

// Agent polls collectors into a store and reports the store contents.
type Agent struct {
	cfg        *config.AgentConfig
	store      storage.Storage
	httpClient *http.Client
	logger     *zap.SugaredLogger
	collectors []Collector
	now        func() time.Time
}

// New wires the agent. Without collectors it samples Go runtime and host metrics.
func New(cfg *config.AgentConfig, store storage.Storage, logger *zap.SugaredLogger, collectors ...Collector) *Agent {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(collectors) == 0 {
		collectors = []Collector{
			func(context.Context) ([]model.Metric, error) { return collector.CollectRuntimeMetrics(), nil },
			func(ctx context.Context) ([]model.Metric, error) {
				return collector.CollectHostMetrics(ctx, cfg.DiskPath)
			},
		}
	}
	return &Agent{
		cfg:   cfg,
		store: store,
		httpClient: &http.Client{
			Timeout:   time.Duration(cfg.ClientTimeout) * time.Second,
			Transport: &transport.LogRoundTripper{Logger: logger},
		},
		logger:     logger,
		collectors: collectors,
		now:        time.Now,
	}
}

// Run polls and reports on the configured intervals until ctx is done,
// then sends a final report.
func (a *Agent) Run(ctx context.Context) error {
	poll := time.Duration(a.cfg.PollInterval) * time.Second
	report := time.Duration(a.cfg.ReportInterval) * time.Second

	a.Poll(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(poll)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				a.Poll(ctx)
			}
		}
	}()

	t := time.NewTicker(report)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			a.report(ctx)
		case <-ctx.Done():
			wg.Wait()
			finalCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.ClientTimeout)*time.Second)
			a.report(finalCtx)
			cancel()
			return nil
		}
	}
}

// Poll runs every collector once and stores the results. Samples without
// a timestamp are stamped with the poll time.
func (a *Agent) Poll(ctx context.Context) {
	now := a.now()
	for _, collect := range a.collectors {
		metrics, err := collect(ctx)
		if err != nil {
			a.logger.Warnf("collect: %v", err)
		}
		if len(metrics) == 0 {
			continue
		}
		stamped := make([]model.Metric, len(metrics))
		for i, m := range metrics {
			if m.DataPoint.Timestamp == nil {
				m = m.WithTimestamp(now)
			}
			stamped[i] = m
		}
		metrics = stamped
		if err := a.store.SaveBatch(ctx, metrics); err != nil {
			a.logger.Errorf("save %d metrics: %v", len(metrics), err)
		}
	}
}

func (a *Agent) report(ctx context.Context) {
	code, err := a.ReportOnce(ctx)
	if err != nil {
		a.logger.Errorf("report: %v", err)
		return
	}
	if code != 0 && code != http.StatusOK {
		a.logger.Warnf("report rejected with status %d", code)
	}
}

// ReportOnce posts every stored metric in one request and returns the
// response status. It returns 0 when there is nothing to send.
func (a *Agent) ReportOnce(ctx context.Context) (int, error) {
	metrics, err := a.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read store: %w", err)
	}
	if len(metrics) == 0 {
		return 0, nil
	}

	opts := []client.Option{
		client.WithURL(a.cfg.URL),
		client.WithHTTPClient(a.httpClient),
		client.WithLogger(a.logger),
	}
	if a.cfg.Strict {
		opts = append(opts, client.WithStrictValidation())
	}
	c, err := client.New(a.cfg.APIKey, a.cfg.AgentName, opts...)
	if err != nil {
		return 0, err
	}

	now := a.now()
	for _, m := range metrics {
		if err := c.AddMetric(a.decorate(m, now)); err != nil {
			a.logger.Warnf("skip metric: %v", err)
		}
	}
	if len(c.Metrics()) == 0 {
		return 0, nil
	}

	resp, err := c.PostMetrics(ctx)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (a *Agent) decorate(m model.Metric, now time.Time) model.Metric {
	if a.cfg.Namespace != "" {
		m = m.WithNamespace(a.cfg.Namespace)
	}
	for k, v := range a.cfg.Tags {
		m = m.WithTag(k, v)
	}
	if m.DataPoint.Timestamp == nil {
		m = m.WithTimestamp(now)
	}
	if a.cfg.Latitude != nil && a.cfg.Longitude != nil {
		m = m.WithLocation(*a.cfg.Latitude, *a.cfg.Longitude)
	}
	return m
}
