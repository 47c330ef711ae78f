// Package handler exposes query execution and index control over HTTP
// and the internal RPC transport.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/spec"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/tracing"
)

// RPC method names.
const (
	MethodQuery  = "Index.Query"
	MethodSwitch = "Index.Switch"
	MethodStatus = "Index.Status"
)

// Searcher executes a query against the serving generation.
type Searcher interface {
	Execute(ctx context.Context, s spec.Spec) (*executor.Response, error)
}

// Index is the control surface of the index container.
type Index interface {
	GenerationID() string
	Status() indexer.Status
	SwitchIndex(ctx context.Context) error
}

// Handler serves queries and index control.
type Handler struct {
	index    Index
	searcher Searcher
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a handler. queryCache and m may be nil.
func New(index Index, searcher Searcher, queryCache *cache.QueryCache, m *metrics.Metrics) *Handler {
	return &Handler{
		index:    index,
		searcher: searcher,
		cache:    queryCache,
		metrics:  m,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers the HTTP endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("POST /api/v1/index/switch", h.Switch)
	mux.HandleFunc("GET /api/v1/index/status", h.Status)
}

// RegisterRPC registers the RPC methods on srv.
func (h *Handler) RegisterRPC(srv *grpc.Server) {
	srv.Register(MethodQuery, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.QueryRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		s, err := spec.FromRequest(req)
		if err != nil {
			return nil, err
		}
		return h.execute(ctx, s)
	})
	srv.Register(MethodSwitch, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return h.switchIndex(ctx), nil
	})
	srv.Register(MethodStatus, func(context.Context, json.RawMessage) (any, error) {
		return h.status(), nil
	})
}

// Search runs a free-text query: GET /api/v1/search?q=...&limit=&per_domain=&timeout_ms=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := params.Get("q")
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	s, err := parser.Parse(q)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Message(err))
		return
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"limit", &s.Limits.Total},
		{"per_domain", &s.Limits.PerDomain},
	}
	for _, p := range ints {
		v := params.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, p.name+" must be a positive integer")
			return
		}
		*p.dst = n
	}
	if v := params.Get("timeout_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 1 {
			h.writeError(w, http.StatusBadRequest, "timeout_ms must be a positive integer")
			return
		}
		s.Limits.Timeout = time.Duration(ms) * time.Millisecond
	}
	if err := s.Validate(); err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Message(err))
		return
	}
	h.serve(w, r, s)
}

// Query runs a structured query posted as a proto.QueryRequest.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req proto.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, err := spec.FromRequest(req)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Message(err))
		return
	}
	h.serve(w, r, s)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, s spec.Spec) {
	resp, err := h.execute(r.Context(), s)
	if err != nil {
		logger.FromContext(r.Context()).Error("query failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Message(err))
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// execute runs s through the cache. A query the index cannot serve yet
// still answers with an empty result.
func (h *Handler) execute(ctx context.Context, s spec.Spec) (*proto.QueryResponse, error) {
	ctx, span := tracing.StartChildSpan(ctx, "query")
	defer span.End()
	log := logger.FromContext(ctx)
	start := time.Now()

	compute := func() (*executor.Response, error) {
		return h.searcher.Execute(ctx, s)
	}
	var (
		resp   *executor.Response
		cached bool
		err    error
	)
	if h.cache != nil {
		resp, cached, err = h.cache.GetOrCompute(ctx, h.index.GenerationID(), s, compute)
	} else {
		resp, err = compute()
	}
	// Misses are observed by the executor.
	if cached && h.metrics != nil {
		h.metrics.QueryLatency.WithLabelValues("hit").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	span.SetAttr("generation", resp.Generation)
	span.SetAttr("results", len(resp.Results))
	span.SetAttr("cached", cached)
	log.Debug("query served",
		"generation", resp.Generation,
		"outcome", resp.Outcome,
		"results", len(resp.Results),
		"cached", cached,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return toProto(resp, cached, time.Since(start)), nil
}

func toProto(resp *executor.Response, cached bool, latency time.Duration) *proto.QueryResponse {
	out := &proto.QueryResponse{
		Generation: resp.Generation,
		Results:    make([]proto.QueryResult, 0, len(resp.Results)),
		Candidates: resp.Candidates,
		Heads:      resp.Heads,
		Partial:    resp.Partial,
		Cached:     cached,
		LatencyMs:  latency.Milliseconds(),
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, proto.QueryResult{
			ID:      r.ID,
			Domain:  r.Domain,
			Ordinal: r.Ordinal,
			Score:   r.Score,
			Year:    r.Year,
			Quality: r.Quality,
			Size:    r.Size,
		})
	}
	return out
}

// Switch promotes the staged generation.
func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	resp := h.switchIndex(r.Context())
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusConflict
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) switchIndex(ctx context.Context) *proto.SwitchResponse {
	if err := h.index.SwitchIndex(ctx); err != nil {
		msg := err.Error()
		if errors.Is(err, apperrors.ErrMissingFile) {
			msg = "no staged generation"
		}
		return &proto.SwitchResponse{Success: false, Generation: h.index.GenerationID(), Message: msg}
	}
	gen := h.index.GenerationID()
	logger.FromContext(ctx).Info("index switched", "generation", gen)
	return &proto.SwitchResponse{Success: true, Generation: gen}
}

// Status describes the serving generation.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) status() *proto.StatusResponse {
	st := h.index.Status()
	out := &proto.StatusResponse{
		Loaded:        st.Loaded,
		Generation:    st.Generation,
		Documents:     st.Documents,
		Languages:     st.Languages,
		PendingCloses: st.PendingCloses,
		StagedReady:   st.StagedReady,
	}
	if !st.CreatedAt.IsZero() {
		out.CreatedAt = st.CreatedAt.Unix()
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
