package model

import "time"

// RoutingTarget names which backend serves a domain.
type RoutingTarget string

const (
	RouteProxy RoutingTarget = "proxy" // External general-purpose model
	RouteReal  RoutingTarget = "real"  // Locally deployed catch
)

// ParitySample is one historical evaluation outcome for a domain.
type ParitySample struct {
	Score       float64   `json:"score"`
	TaskCount   int       `json:"task_count"`
	CatchID     string    `json:"catch_id"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// TrustRegistryEntry is the durable per-domain routing record, materialized
// from trust.* facts in the knowledge store.
type TrustRegistryEntry struct {
	Domain      string         `json:"domain"`
	CatchID     string         `json:"catch_id,omitempty"`
	CandidateID string         `json:"candidate_id,omitempty"` // Deployed but not yet routed
	Routing     RoutingTarget  `json:"routing"`
	History     []ParitySample `json:"history,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// TaskScore is the per-task breakdown of one parity evaluation.
type TaskScore struct {
	TaskID         string  `json:"task_id"`
	ProxyScore     float64 `json:"proxy_score"`
	CandidateScore float64 `json:"candidate_score"`
}

// ParityResult is the outcome of one matched-task comparison between the
// proxy and a candidate catch. Score is candidate/proxy quality, capped at 1.
type ParityResult struct {
	Domain    string      `json:"domain"`
	CatchID   string      `json:"catch_id"`
	Score     float64     `json:"score"`
	TaskCount int         `json:"task_count"`
	Breakdown []TaskScore `json:"breakdown"`
}
