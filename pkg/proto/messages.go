// Package proto defines the wire messages of the query service, shared by
// the HTTP API and the JSON-over-TCP RPC layer (see pkg/grpc).
//
// Limits travel as strings ("<=2000", ">=3", "=5", "none") and timeouts
// as milliseconds so any client can produce them without shared code.
package proto

// ---------- Query ----------

// Subquery is one alternative term combination.
type Subquery struct {
	Include    []string   `json:"include"`
	Exclude    []string   `json:"exclude,omitempty"`
	Advice     []string   `json:"advice,omitempty"`
	Priority   []string   `json:"priority,omitempty"`
	Coherences [][]string `json:"coherences,omitempty"`
}

// QueryRequest is the input to the Index.Query RPC.
type QueryRequest struct {
	Subqueries     []Subquery `json:"subqueries"`
	Language       string     `json:"language,omitempty"`
	Domains        []uint32   `json:"domains,omitempty"`
	SearchSet      string     `json:"search_set,omitempty"`
	Year           string     `json:"year,omitempty"`
	Quality        string     `json:"quality,omitempty"`
	Size           string     `json:"size,omitempty"`
	Rank           string     `json:"rank,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	PerDomainLimit int        `json:"per_domain_limit,omitempty"`
	TimeoutMs      int64      `json:"timeout_ms,omitempty"`
}

// QueryResult is a single ranked document.
type QueryResult struct {
	ID      uint64  `json:"id"`
	Domain  uint32  `json:"domain"`
	Ordinal uint32  `json:"ordinal"`
	Score   float64 `json:"score"`
	Year    int     `json:"year,omitempty"`
	Quality int     `json:"quality"`
	Size    int     `json:"size"`
}

// QueryResponse is the output of the Index.Query RPC.
type QueryResponse struct {
	Generation string        `json:"generation,omitempty"`
	Results    []QueryResult `json:"results"`
	Candidates int           `json:"candidates"`
	Heads      int           `json:"heads"`
	Partial    bool          `json:"partial"`
	Cached     bool          `json:"cached"`
	LatencyMs  int64         `json:"latency_ms"`
}

// ---------- Index ----------

// SwitchResponse is the output of the Index.Switch RPC.
type SwitchResponse struct {
	Success    bool   `json:"success"`
	Generation string `json:"generation,omitempty"`
	Message    string `json:"message,omitempty"`
}

// StatusResponse describes the serving generation.
type StatusResponse struct {
	Loaded        bool     `json:"loaded"`
	Generation    string   `json:"generation,omitempty"`
	CreatedAt     int64    `json:"created_at,omitempty"`
	Documents     int      `json:"documents"`
	Languages     []string `json:"languages,omitempty"`
	PendingCloses int      `json:"pending_closes"`
	StagedReady   bool     `json:"staged_ready"`
}

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}
