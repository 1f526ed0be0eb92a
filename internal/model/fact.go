package model

import (
	"strings"
	"time"
)

// Entity is one identified thing in a domain, tied to the domain's
// controlled vocabulary by Type.
type Entity struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"` // Must lie in [0,1]
}

// Relationship links two entities by a vocabulary predicate. Subject and
// object must reference entities present in the same or an earlier
// extraction record for the domain.
type Relationship struct {
	SubjectID  string  `json:"subject_id"`
	Predicate  string  `json:"predicate"`
	ObjectID   string  `json:"object_id"`
	Confidence float64 `json:"confidence"`
}

// Provenance records who produced a Fact, from what, and how sure they were.
// Every committed Fact carries one; the store rejects facts without it.
type Provenance struct {
	SourceHash  string    `json:"source_hash"`
	Extractor   string    `json:"extractor"` // Extractor identity + version
	Confidence  float64   `json:"confidence"`
	CommittedAt time.Time `json:"committed_at"`
}

// Fact is the atomic unit of the knowledge store: one subject-predicate-object
// triple plus provenance. Facts are append-only; a correction is a new Fact
// with a later timestamp, never an in-place edit.
type Fact struct {
	ID         string     `json:"id"`
	Domain     string     `json:"domain"`
	Subject    string     `json:"subject"`
	Predicate  string     `json:"predicate"`
	Object     string     `json:"object"`
	Provenance Provenance `json:"provenance"`
}

// Reserved predicate namespace for trust registry entries. Registry updates
// are ordinary Facts under these predicates, so routing flips ride the same
// queued commit path as every other write.
const (
	TrustPredicatePrefix = "trust."

	PredicateRoutingTarget    = "trust.routing.target"
	PredicateRoutingCatch     = "trust.routing.catch"
	PredicateRoutingCandidate = "trust.routing.candidate"
	PredicateParityScore      = "trust.parity.score"
	PredicateParityTaskCount  = "trust.parity.task_count"
	PredicateEvaluatedAt      = "trust.parity.evaluated_at"
)

// IsTrustPredicate reports whether p lives in the reserved registry namespace.
func IsTrustPredicate(p string) bool {
	return strings.HasPrefix(p, TrustPredicatePrefix)
}

// Structural predicates emitted by the extractor's layer 4 for every entity.
// These are always valid regardless of domain vocabulary.
const (
	PredicateIsA     = "is_a"
	PredicateLabeled = "labeled"
)

// IsStructuralPredicate reports whether p is one of the extractor's
// entity-declaration predicates.
func IsStructuralPredicate(p string) bool {
	return p == PredicateIsA || p == PredicateLabeled
}
