// Package health answers liveness and readiness probes for the query
// service. A searcher is ready once a generation serves; a broken shared
// cache only degrades it.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status of one component or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// worse orders statuses for aggregation.
func (s Status) worse(than Status) bool {
	rank := func(s Status) int { return slices.Index([]Status{StatusUp, StatusDegraded, StatusDown}, s) }
	return rank(s) > rank(than)
}

// Check probes one dependency. It should honour ctx.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is one check's answer.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report aggregates every check; Status is the worst component status.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// probeTimeout bounds a whole Run.
const probeTimeout = 5 * time.Second

// Checker holds the registered checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
	logger *slog.Logger
}

// NewChecker returns a checker with no checks; its report is up.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check), logger: slog.Default().With("component", "health")}
}

// Register adds check under name, replacing any earlier one.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Run executes every check concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	checks := make([]Check, 0, len(c.checks))
	for name, check := range c.checks {
		names = append(names, name)
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			start := time.Now()
			results[i] = check(ctx)
			results[i].Latency = time.Since(start).Round(time.Millisecond).String()
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, name := range names {
		r := results[i]
		report.Components[name] = r
		if r.Status.worse(report.Status) {
			report.Status = r.Status
		}
		if r.Status != StatusUp {
			c.logger.Debug("component unhealthy", "name", name, "status", r.Status, "message", r.Message)
		}
	}
	return report
}

// IndexState is what the index check reads from the container.
type IndexState interface {
	IsLoaded() bool
	GenerationID() string
}

// IndexCheck is down until a generation serves.
func IndexCheck(x IndexState) Check {
	return func(context.Context) ComponentHealth {
		if !x.IsLoaded() {
			return ComponentHealth{Status: StatusDown, Message: "no generation loaded"}
		}
		return ComponentHealth{Status: StatusUp, Message: fmt.Sprintf("generation %s", x.GenerationID())}
	}
}

// PingCheck reports an optional dependency: a nil ping means it is not
// configured, and a failing one degrades rather than downs the service.
func PingCheck(ping func(context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		switch {
		case ping == nil:
			return ComponentHealth{Status: StatusDegraded, Message: "not configured"}
		case ctx.Err() != nil:
			return ComponentHealth{Status: StatusDegraded, Message: ctx.Err().Error()}
		}
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDegraded, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// LiveHandler answers 200 while the process runs.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]Status{"status": StatusUp})
	}
}

// ReadyHandler answers 503 only when a component is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
