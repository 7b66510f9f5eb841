// Package gateway implements a local stand-in for the Machinist ingestion
// endpoint. It answers with the same status codes as the real service and
// keeps received metrics in memory.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"mime"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Eotel/go-machinist/internal/config"
	"github.com/Eotel/go-machinist/internal/gateway/middleware"
	"github.com/Eotel/go-machinist/model"
	"github.com/Eotel/go-machinist/storage"
	"github.com/Eotel/go-machinist/storage/inmemory"
)

// EndpointPath is where metrics are posted.
const EndpointPath = "/endpoint"

const maxBodySize = 1 << 20

type agentState struct {
	// mu serializes the quota check with the save that follows it.
	mu      sync.Mutex
	store   *inmemory.MemStorage
	limiter *rate.Limiter
}

// Gateway accepts metric payloads per agent.
type Gateway struct {
	config *config.GatewayConfig
	logger *zap.SugaredLogger
	keys   map[string]struct{}

	mu     sync.Mutex
	agents map[string]*agentState
}

// IngestResponse is the body of a 200 answer.
type IngestResponse struct {
	ID       string `json:"id"`
	Accepted int    `json:"accepted"`
}

func New(cfg *config.GatewayConfig, logger *zap.SugaredLogger) *Gateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys[k] = struct{}{}
	}
	return &Gateway{
		config: cfg,
		logger: logger,
		keys:   keys,
		agents: make(map[string]*agentState),
	}
}

// Router returns the HTTP handler of the gateway.
func (g *Gateway) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.StripSlashes)
	router.Use(middleware.LogMiddleware(g.logger))
	router.Use(middleware.Decompress)

	router.Post(EndpointPath, g.IngestHandler)
	router.Get("/agents/{agent}/metrics", g.AgentMetricsHandler)
	router.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/", g.ListMetricsHandler)
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.config.Addr,
		Handler:           g.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Infof("gateway listening on %s", g.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type ingestBody struct {
	Agent   string            `json:"agent"`
	Metrics []json.RawMessage `json:"metrics"`
}

type metricProbe struct {
	Name      string                     `json:"name"`
	DataPoint map[string]json.RawMessage `json:"data_point"`
}

func (g *Gateway) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !g.authorized(r.Header.Get("Authorization")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		http.Error(w, "unsupported content type", http.StatusBadRequest)
		return
	}

	var body ingestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	metrics, err := decodeMetrics(body)
	if err != nil {
		if errors.Is(err, errMalformed) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	state := g.agent(body.Agent)
	if !state.limiter.Allow() {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	if status, err := g.store(r.Context(), state, metrics); err != nil {
		if status == http.StatusInternalServerError {
			g.logger.Errorf("failed to save metrics [agent=%s]: %v", body.Agent, err)
			http.Error(w, errSaveFailed.Error(), status)
			return
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := IngestResponse{ID: uuid.NewString(), Accepted: len(metrics)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		g.logger.Errorf("failed to write response JSON: %v", err)
	}
}

var (
	errMalformed  = errors.New("malformed metric")
	errQuota      = errors.New("metric limit reached")
	errSaveFailed = errors.New("internal error")
)

// store saves metrics unless that would push the agent over MaxMetrics.
func (g *Gateway) store(ctx context.Context, state *agentState, metrics []model.Metric) (int, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if g.overQuota(ctx, state.store, metrics) {
		return http.StatusConflict, errQuota
	}
	if err := state.store.SaveBatch(ctx, metrics); err != nil {
		return http.StatusInternalServerError, fmt.Errorf("%w: %w", errSaveFailed, err)
	}
	return http.StatusOK, nil
}

func decodeMetrics(body ingestBody) ([]model.Metric, error) {
	if body.Agent == "" {
		return nil, errors.New("agent is required")
	}
	out := make([]model.Metric, 0, len(body.Metrics))
	for i, raw := range body.Metrics {
		var probe metricProbe
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("%w: metrics[%d]: %v", errMalformed, i, err)
		}
		if probe.Name == "" {
			return nil, fmt.Errorf("metrics[%d]: name is required", i)
		}
		if v, ok := probe.DataPoint[model.KeyValue]; !ok || string(bytes.TrimSpace(v)) == "null" {
			return nil, fmt.Errorf("metrics[%d]: data_point.value is required", i)
		}
		var m model.Metric
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("metrics[%d]: %v", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (g *Gateway) authorized(header string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	if len(g.keys) == 0 {
		return true
	}
	_, ok = g.keys[token]
	return ok
}

func (g *Gateway) agent(name string) *agentState {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.agents[name]
	if !ok {
		limit := rate.Limit(g.config.RateLimit)
		if g.config.RateLimit <= 0 {
			limit = rate.Inf
		}
		burst := g.config.Burst
		if burst < 1 {
			burst = 1
		}
		st = &agentState{
			store:   inmemory.NewMemStorage(),
			limiter: rate.NewLimiter(limit, burst),
		}
		g.agents[name] = st
	}
	return st
}

// overQuota reports whether storing metrics would exceed MaxMetrics
// distinct series for the agent.
func (g *Gateway) overQuota(ctx context.Context, store *inmemory.MemStorage, metrics []model.Metric) bool {
	if g.config.MaxMetrics <= 0 {
		return false
	}
	fresh := make(map[string]struct{})
	for _, m := range metrics {
		if _, err := store.Get(ctx, m.Namespace, m.Name); errors.Is(err, storage.ErrMetricNotFound) {
			fresh[storage.Key(m.Namespace, m.Name)] = struct{}{}
		}
	}
	return store.Len()+len(fresh) > g.config.MaxMetrics
}

func (g *Gateway) AgentMetricsHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "agent")

	g.mu.Lock()
	st, ok := g.agents[name]
	g.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	all, err := st.store.GetAll(r.Context())
	if err != nil {
		g.logger.Errorf("failed to get metrics [agent=%s]: %v", name, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(all); err != nil {
		g.logger.Errorf("failed to write response JSON: %v", err)
	}
}

func (g *Gateway) ListMetricsHandler(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	names := make([]string, 0, len(g.agents))
	for name := range g.agents {
		names = append(names, name)
	}
	g.mu.Unlock()
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("<html><body>\n")
	for _, name := range names {
		g.mu.Lock()
		st := g.agents[name]
		g.mu.Unlock()

		all, err := st.store.GetAll(r.Context())
		if err != nil {
			g.logger.Errorf("failed to get metrics [agent=%s]: %v", name, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(&sb, "<h2>%s</h2><ul>\n", html.EscapeString(name))
		for _, m := range all {
			fmt.Fprintf(&sb, "<li>%s: %v</li>\n", html.EscapeString(storage.Key(m.Namespace, m.Name)), m.DataPoint.Value)
		}
		sb.WriteString("</ul>\n")
	}
	sb.WriteString("</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(sb.String())); err != nil {
		g.logger.Errorf("failed to write response body for list metrics: %v", err)
	}
}
