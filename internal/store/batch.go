// Package store is the single shared mutable resource of the factory: a
// queued, schema-validated, per-entity-locked writer over the fact graph.
// No component writes facts directly; everything goes through Enqueue/Commit.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/ppiankov/trawler/internal/model"
)

// Batch is one unit of write work: a set of facts from a single extraction
// (or a registry update) that commits atomically or not at all.
type Batch struct {
	Domain     string
	SourceHash string
	Extractor  string
	Facts      []model.Fact
}

// EntityIDs returns the sorted, deduplicated set of entity ids the batch
// touches. Lock acquisition and the idempotency key both derive from it.
func (b *Batch) EntityIDs() []string {
	seen := make(map[string]bool)
	for _, f := range b.Facts {
		if f.Subject != "" {
			seen[f.Subject] = true
		}
		// Objects of structural facts are type names or labels, not entities.
		if f.Object != "" && !model.IsStructuralPredicate(f.Predicate) && !model.IsTrustPredicate(f.Predicate) {
			seen[f.Object] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TrustOnly reports whether every fact is a registry update. Trust-only
// batches need no domain vocabulary: the registry writes them for domains
// whose spec was never registered in this process.
func (b *Batch) TrustOnly() bool {
	if len(b.Facts) == 0 {
		return false
	}
	for _, f := range b.Facts {
		if !model.IsTrustPredicate(f.Predicate) {
			return false
		}
	}
	return true
}

// IdempotencyKey identifies the batch across retries: hash of source,
// extractor, and the target entity set. Re-submitting the same key returns
// the original commit result without re-applying.
func (b *Batch) IdempotencyKey() string {
	h := sha256.New()
	h.Write([]byte(b.SourceHash))
	h.Write([]byte{0})
	h.Write([]byte(b.Extractor))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(b.EntityIDs(), "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// WriteReceipt is the handle returned by Enqueue and redeemed by Commit.
type WriteReceipt struct {
	ID             string
	IdempotencyKey string
}

// CommitResult reports the outcome of one commit attempt. A rejected result
// lists every offending item, not just the first.
type CommitResult struct {
	Accepted   bool
	FactIDs    []string    // Assigned ids, in batch order, when accepted
	Violations []Violation // Populated when rejected
}

// Reason summarizes why a rejected batch was turned away.
func (r CommitResult) Reason() string {
	if r.Accepted || len(r.Violations) == 0 {
		return ""
	}
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.String()
	}
	return strings.Join(msgs, "; ")
}
