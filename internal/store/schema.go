package store

import (
	"fmt"

	"github.com/ppiankov/trawler/internal/model"
)

// Database schema. Facts are append-only; the commits table is the
// idempotency record mapping a batch key to its accepted result.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS facts (
    id          TEXT PRIMARY KEY,
    domain      TEXT NOT NULL,
    subject     TEXT NOT NULL,
    predicate   TEXT NOT NULL,
    object      TEXT NOT NULL,
    source_hash TEXT NOT NULL,
    extractor   TEXT NOT NULL,
    confidence  REAL NOT NULL,
    committed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facts_domain    ON facts(domain);
CREATE INDEX IF NOT EXISTS idx_facts_subject   ON facts(domain, subject);
CREATE INDEX IF NOT EXISTS idx_facts_predicate ON facts(domain, predicate);

CREATE TABLE IF NOT EXISTS commits (
    idempotency_key TEXT PRIMARY KEY,
    domain          TEXT NOT NULL,
    fact_ids        TEXT NOT NULL,
    committed_at    DATETIME NOT NULL
);
`

const (
	factInsertSQL = `
		INSERT INTO facts (id, domain, subject, predicate, object, source_hash, extractor, confidence, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	commitInsertSQL = `
		INSERT INTO commits (idempotency_key, domain, fact_ids, committed_at)
		VALUES (?, ?, ?, ?)`

	commitLookupSQL = `
		SELECT fact_ids FROM commits WHERE idempotency_key = ?`

	entityExistsSQL = `
		SELECT EXISTS(SELECT 1 FROM facts WHERE domain = ? AND subject = ? AND predicate = ?)`
)

// ViolationKind classifies a schema check failure.
type ViolationKind string

const (
	ViolationConfidenceRange ViolationKind = "confidence_range"
	ViolationUnknownType     ViolationKind = "unknown_entity_type"
	ViolationUnknownPred     ViolationKind = "unknown_predicate"
	ViolationOrphanRef       ViolationKind = "orphan_reference"
	ViolationNoProvenance    ViolationKind = "missing_provenance"
)

// Violation names one offending item in a rejected batch.
type Violation struct {
	Kind    ViolationKind
	FactIdx int // Index into the batch's fact list
	Subject string
	Detail  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s fact[%d] subject=%q: %s", v.Kind, v.FactIdx, v.Subject, v.Detail)
}

// validateBatch runs every schema check and collects all violations.
// entityKnown answers whether an entity id is already declared in the store
// for the batch's domain; declarations inside the batch itself also count.
func validateBatch(b *Batch, spec model.DomainSpec, entityKnown func(string) (bool, error)) ([]Violation, error) {
	var violations []Violation

	declared := make(map[string]bool)
	for _, f := range b.Facts {
		if f.Predicate == model.PredicateIsA {
			declared[f.Subject] = true
		}
	}

	known := func(id string) (bool, error) {
		if declared[id] {
			return true, nil
		}
		return entityKnown(id)
	}

	for i, f := range b.Facts {
		if f.Provenance.SourceHash == "" || f.Provenance.Extractor == "" {
			violations = append(violations, Violation{
				Kind: ViolationNoProvenance, FactIdx: i, Subject: f.Subject,
				Detail: "facts require source hash and extractor identity",
			})
		}
		if f.Provenance.Confidence < 0 || f.Provenance.Confidence > 1 {
			violations = append(violations, Violation{
				Kind: ViolationConfidenceRange, FactIdx: i, Subject: f.Subject,
				Detail: fmt.Sprintf("confidence %.2f outside [0,1]", f.Provenance.Confidence),
			})
		}

		switch {
		case f.Predicate == model.PredicateIsA:
			if !spec.HasEntityType(f.Object) {
				violations = append(violations, Violation{
					Kind: ViolationUnknownType, FactIdx: i, Subject: f.Subject,
					Detail: fmt.Sprintf("entity type %q not in %s vocabulary", f.Object, spec.Domain),
				})
			}
		case model.IsStructuralPredicate(f.Predicate) || model.IsTrustPredicate(f.Predicate):
			// Labels carry free text; trust facts carry registry values.
		default:
			if !spec.HasPredicate(f.Predicate) {
				violations = append(violations, Violation{
					Kind: ViolationUnknownPred, FactIdx: i, Subject: f.Subject,
					Detail: fmt.Sprintf("predicate %q not in %s vocabulary", f.Predicate, spec.Domain),
				})
			}
			for _, ref := range []string{f.Subject, f.Object} {
				ok, err := known(ref)
				if err != nil {
					return nil, fmt.Errorf("check entity %q: %w", ref, err)
				}
				if !ok {
					violations = append(violations, Violation{
						Kind: ViolationOrphanRef, FactIdx: i, Subject: f.Subject,
						Detail: fmt.Sprintf("reference %q is not a declared entity", ref),
					})
				}
			}
		}
	}

	return violations, nil
}
