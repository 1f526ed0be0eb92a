// Package registry is the trust registry: a read view over the trust.*
// fact namespace plus the batch builders that update it. Routing state is
// never stored outside the knowledge store; the registry only interprets
// facts, so every routing decision carries full provenance.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/store"
)

// Version identifies the registry writer in trust fact provenance.
const Version = "registry/0.1"

// Facts is the read side the registry interprets. *store.Store satisfies it.
type Facts interface {
	All(ctx context.Context, p store.Pattern) ([]model.Fact, error)
}

// Writer is the commit path for registry updates. *store.Store satisfies it.
type Writer interface {
	Enqueue(b *store.Batch) (store.WriteReceipt, error)
	Commit(ctx context.Context, receipt store.WriteReceipt) (store.CommitResult, error)
}

// Registry reads and updates per-domain routing state.
type Registry struct {
	facts  Facts
	writer Writer
	logger *zap.SugaredLogger
}

// New creates a Registry over the knowledge store.
func New(facts Facts, writer Writer, logger *zap.SugaredLogger) *Registry {
	return &Registry{facts: facts, writer: writer, logger: logger}
}

// Lookup materializes the registry entry for a domain. A domain with no
// trust facts routes to the proxy; that is the starting state of every
// domain, not an error.
func (r *Registry) Lookup(ctx context.Context, domain string) (*model.TrustRegistryEntry, error) {
	facts, err := r.facts.All(ctx, store.Pattern{
		Domain: domain, Subject: domain, PredicatePrefix: "trust.",
	})
	if err != nil {
		return nil, fmt.Errorf("read trust facts: %w", err)
	}

	entry := &model.TrustRegistryEntry{Domain: domain, Routing: model.RouteProxy}

	// Facts arrive in commit order; the latest routing declaration wins.
	taskCounts := make(map[string]int) // batch key -> task count
	for _, f := range facts {
		if f.Predicate == model.PredicateParityTaskCount {
			n, err := strconv.Atoi(f.Object)
			if err != nil {
				continue
			}
			taskCounts[sampleKey(f)] = n
		}
	}

	for _, f := range facts {
		switch f.Predicate {
		case model.PredicateRoutingTarget:
			entry.Routing = model.RoutingTarget(f.Object)
			entry.LastUpdated = f.Provenance.CommittedAt
		case model.PredicateRoutingCatch:
			entry.CatchID = f.Object
			entry.LastUpdated = f.Provenance.CommittedAt
		case model.PredicateRoutingCandidate:
			entry.CandidateID = f.Object
			entry.LastUpdated = f.Provenance.CommittedAt
		case model.PredicateParityScore:
			score, err := strconv.ParseFloat(f.Object, 64)
			if err != nil {
				continue
			}
			entry.History = append(entry.History, model.ParitySample{
				Score:       score,
				TaskCount:   taskCounts[sampleKey(f)],
				CatchID:     f.Provenance.SourceHash,
				EvaluatedAt: f.Provenance.CommittedAt,
			})
		}
	}
	return entry, nil
}

// sampleKey groups the facts of one evaluation batch: they share a source
// hash (the catch id) and a commit timestamp.
func sampleKey(f model.Fact) string {
	return f.Provenance.SourceHash + "@" + f.Provenance.CommittedAt.UTC().Format(time.RFC3339Nano)
}

// RecordEvaluation commits a parity result into the trust namespace and,
// when the gate clears, flips the domain's routing to the real catch.
// The whole update is one batch: routing never flips without its
// evaluation facts landing in the same commit.
func (r *Registry) RecordEvaluation(ctx context.Context, result *model.ParityResult, replace bool) error {
	batch := evaluationBatch(result, replace)
	receipt, err := r.writer.Enqueue(batch)
	if err != nil {
		return err
	}
	outcome, err := r.writer.Commit(ctx, receipt)
	if err != nil {
		return fmt.Errorf("commit trust update: %w", err)
	}
	if !outcome.Accepted {
		return fmt.Errorf("trust update rejected: %s", outcome.Reason())
	}

	r.logger.Infow("Trust registry updated",
		"domain", result.Domain,
		"catch", result.CatchID,
		"score", result.Score,
		"replaced", replace,
	)
	return nil
}

// evaluationBatch builds the trust facts for one parity evaluation. The
// evaluation's catch id rides in the provenance source hash so Lookup can
// attribute history samples.
func evaluationBatch(result *model.ParityResult, replace bool) *store.Batch {
	prov := model.Provenance{
		SourceHash: result.CatchID,
		Extractor:  Version,
		Confidence: result.Score,
	}
	fact := func(predicate, object string) model.Fact {
		return model.Fact{
			Domain:     result.Domain,
			Subject:    result.Domain,
			Predicate:  predicate,
			Object:     object,
			Provenance: prov,
		}
	}

	// The batch key must differ per evaluation: the same catch may be
	// re-evaluated with a new score, and a replayed key would swallow it.
	// Fact provenance still names the catch alone.
	batch := &store.Batch{
		Domain:     result.Domain,
		SourceHash: fmt.Sprintf("%s#%d", result.CatchID, time.Now().UnixNano()),
		Extractor:  Version,
		Facts: []model.Fact{
			fact(model.PredicateParityScore, strconv.FormatFloat(result.Score, 'f', 4, 64)),
			fact(model.PredicateParityTaskCount, strconv.Itoa(result.TaskCount)),
			fact(model.PredicateEvaluatedAt, time.Now().UTC().Format(time.RFC3339)),
		},
	}
	if replace {
		batch.Facts = append(batch.Facts,
			fact(model.PredicateRoutingTarget, string(model.RouteReal)),
			fact(model.PredicateRoutingCatch, result.CatchID),
		)
	}
	return batch
}

// CandidateBatch builds the trust facts registering a freshly deployed
// catch as its domain's candidate. Routing is untouched: the candidate
// serves nothing until a parity evaluation flips the target. The batch key
// is deterministic per catch, so re-deploying the same catch replays.
func CandidateBatch(domain, catchID string) *store.Batch {
	return &store.Batch{
		Domain:     domain,
		SourceHash: catchID + "#candidate",
		Extractor:  Version,
		Facts: []model.Fact{{
			Domain: domain, Subject: domain,
			Predicate: model.PredicateRoutingCandidate, Object: catchID,
			Provenance: model.Provenance{SourceHash: catchID, Extractor: Version, Confidence: 1},
		}},
	}
}

// Revert routes a domain back to the proxy. Used when a deployed catch is
// withdrawn; the history stays.
func (r *Registry) Revert(ctx context.Context, domain, reason string) error {
	prov := model.Provenance{SourceHash: "revert:" + reason, Extractor: Version, Confidence: 1}
	batch := &store.Batch{
		Domain:     domain,
		SourceHash: fmt.Sprintf("%s#%d", prov.SourceHash, time.Now().UnixNano()),
		Extractor:  Version,
		Facts: []model.Fact{{
			Domain: domain, Subject: domain,
			Predicate: model.PredicateRoutingTarget, Object: string(model.RouteProxy),
			Provenance: prov,
		}},
	}
	receipt, err := r.writer.Enqueue(batch)
	if err != nil {
		return err
	}
	outcome, err := r.writer.Commit(ctx, receipt)
	if err != nil {
		return fmt.Errorf("commit revert: %w", err)
	}
	if !outcome.Accepted {
		return fmt.Errorf("revert rejected: %s", outcome.Reason())
	}
	r.logger.Infow("Routing reverted to proxy", "domain", domain, "reason", reason)
	return nil
}
