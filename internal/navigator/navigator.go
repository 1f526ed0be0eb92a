// Package navigator drives one expedition through the catch state machine:
// collect sources, extract, index and align the records, write the graph,
// synthesize tests, then validate in a bounded loop that either deploys the
// catch or fails it with a gap report trail.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/extract"
	"github.com/ppiankov/trawler/internal/fetch"
	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/registry"
	"github.com/ppiankov/trawler/internal/store"
	"github.com/ppiankov/trawler/internal/synth"
)

// Fetcher acquires one source. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*fetch.Result, error)
}

// Extractor runs the extraction pipeline over one source.
// *extract.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, source model.Source, content []byte, spec model.DomainSpec, gap *model.GapReport) (*model.ExtractionRecord, error)
}

// Committer is the write side of the knowledge store. *store.Store
// satisfies it.
type Committer interface {
	RegisterDomain(spec model.DomainSpec)
	Enqueue(b *store.Batch) (store.WriteReceipt, error)
	Commit(ctx context.Context, receipt store.WriteReceipt) (store.CommitResult, error)
}

// Synthesizer produces the scenario set and manifest. *synth.Synthesizer
// satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, spec model.DomainSpec, catchID string) ([]model.BehaviorScenario, *model.CapabilityManifest, error)
}

// Navigator runs expeditions. One Navigator may run many expeditions, but
// each Run call drives exactly one catch start to finish.
type Navigator struct {
	fetcher   Fetcher
	extractor Extractor
	committer Committer
	synth     Synthesizer
	runner    synth.Runner
	strategy  extract.Strategy
	cfg       model.NavigatorConfig
	workers   int
	states    *stateFiles
	logger    *zap.SugaredLogger
}

// Deps bundles the navigator's collaborators.
type Deps struct {
	Fetcher     Fetcher
	Extractor   Extractor
	Committer   Committer
	Synthesizer Synthesizer
	Runner      synth.Runner
	Strategy    extract.Strategy // nil picks GapFocused
}

// New creates a Navigator. Scenario execution uses at most workers
// goroutines.
func New(deps Deps, cfg model.NavigatorConfig, workers int, logger *zap.SugaredLogger) *Navigator {
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = 4
	}
	if cfg.AcceptanceThreshold <= 0 {
		cfg.AcceptanceThreshold = 0.95
	}
	strategy := deps.Strategy
	if strategy == nil {
		strategy = extract.GapFocused{}
	}
	return &Navigator{
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		committer: deps.Committer,
		synth:     deps.Synthesizer,
		runner:    deps.Runner,
		strategy:  strategy,
		cfg:       cfg,
		workers:   workers,
		states:    newStateFiles(cfg.StateDir),
		logger:    logger,
	}
}

// Run drives one expedition for the domain. The returned catch is always
// non-nil once the expedition has an id, whatever terminal state it reached;
// the error reports why a non-DEPLOYED terminal was hit.
func (n *Navigator) Run(ctx context.Context, spec model.DomainSpec) (*model.Catch, error) {
	now := time.Now().UTC()
	catch := &model.Catch{
		ID:        uuid.NewString(),
		Domain:    spec.Domain,
		State:     model.StateCollecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	n.committer.RegisterDomain(spec)
	n.persist(catch)
	n.logger.Infow("Expedition started", "catch", catch.ID, "domain", spec.Domain)
	return catch, n.drive(ctx, spec, catch)
}

// Resume picks up a persisted expedition. A terminal catch is returned
// unchanged; anything mid-flight restarts from collection under the same
// catch id, keeping its validation history. Graph writes from the earlier
// attempt replay through their idempotency records.
func (n *Navigator) Resume(ctx context.Context, spec model.DomainSpec, catchID string) (*model.Catch, error) {
	catch, err := Load(n.cfg.StateDir, catchID)
	if err != nil {
		return nil, err
	}
	if catch.Domain != spec.Domain {
		return nil, fmt.Errorf("catch %s belongs to domain %s, not %s", catchID, catch.Domain, spec.Domain)
	}
	if catch.State.Terminal() {
		n.logger.Infow("Expedition already terminal",
			"catch", catch.ID, "state", catch.State)
		return catch, nil
	}

	n.committer.RegisterDomain(spec)
	catch.State = model.StateCollecting
	n.persist(catch)
	n.logger.Infow("Expedition resumed",
		"catch", catch.ID, "domain", spec.Domain, "cycles_done", catch.Cycles())
	return catch, n.drive(ctx, spec, catch)
}

// drive runs the state machine to a terminal state and maps abnormal exits
// onto ABANDONED or FAILED.
func (n *Navigator) drive(ctx context.Context, spec model.DomainSpec, catch *model.Catch) error {
	err := n.run(ctx, spec, catch)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			n.transition(catch, model.StateAbandoned)
		} else if !catch.State.Terminal() {
			n.transition(catch, model.StateFailed)
		}
	}
	return err
}

func (n *Navigator) run(ctx context.Context, spec model.DomainSpec, catch *model.Catch) error {
	// COLLECTING and EXTRACTING, first pass over the planned sources.
	plan := n.strategy.Plan(spec, nil, nil, false)
	records, consumed, err := n.gather(ctx, spec, catch, plan, nil)
	if err != nil {
		return err
	}

	// INDEXING: cross-record entity index.
	if err := n.step(ctx, catch, model.StateIndexing); err != nil {
		return err
	}
	idx := buildIndex(records)

	// ALIGNING: conflicting entity declarations resolved in place.
	if err := n.step(ctx, catch, model.StateAligning); err != nil {
		return err
	}
	aligned := idx.align(records, n.logger)
	n.logger.Infow("Records aligned",
		"catch", catch.ID, "records", len(records), "conflicts", aligned)

	// GRAPH_WRITE: one batch per record.
	if err := n.step(ctx, catch, model.StateGraphWrite); err != nil {
		return err
	}
	if err := n.writeGraph(ctx, catch, records); err != nil {
		return err
	}

	// TEST_SYNTH.
	if err := n.step(ctx, catch, model.StateTestSynth); err != nil {
		return err
	}
	scenarios, manifest, err := n.synth.Synthesize(ctx, spec, catch.ID)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	catch.Scenarios = scenarios
	catch.Manifest = manifest
	n.persist(catch)

	// VALIDATING: bounded loop. Each failed cycle produces a gap report and
	// a targeted re-extraction before the next attempt.
	if err := n.step(ctx, catch, model.StateValidating); err != nil {
		return err
	}
	priorRate := -1.0
	for cycle := catch.Cycles() + 1; ; cycle++ {
		report, err := synth.Execute(ctx, n.runner, catch.Scenarios, cycle, n.workers, n.logger)
		if err != nil {
			return fmt.Errorf("validation cycle %d: %w", cycle, err)
		}
		catch.History = append(catch.History, report.Cycle)
		n.persist(catch)

		if report.Cycle.PassRate >= n.cfg.AcceptanceThreshold {
			catch.LastGap = nil
			if err := n.step(ctx, catch, model.StateDeploying); err != nil {
				return err
			}
			if err := n.deploy(ctx, spec, catch); err != nil {
				return err
			}
			n.transition(catch, model.StateDeployed)
			n.logger.Infow("Catch deployed",
				"catch", catch.ID, "cycles", cycle, "pass_rate", report.Cycle.PassRate)
			return nil
		}

		gap := &model.GapReport{
			Cycle:               cycle,
			MissingCapabilities: report.MissingCapabilities(),
			FailedScenarios:     report.FailedIDs(),
			ConsumedSources:     consumed,
			PriorPassRate:       report.Cycle.PassRate,
		}
		catch.LastGap = gap
		n.persist(catch)

		if cycle >= n.cfg.MaxCycles {
			n.transition(catch, model.StateFailed)
			return fmt.Errorf("validation exhausted after %d cycles, pass rate %.2f below %.2f",
				cycle, report.Cycle.PassRate, n.cfg.AcceptanceThreshold)
		}

		// Targeted re-extraction before the next cycle. The first retry
		// counts as progressed: there is no earlier cycle to call it
		// stalled against, so the strategy stays on the same sources.
		progressed := priorRate < 0 || report.Cycle.PassRate > priorRate
		priorRate = report.Cycle.PassRate

		plan := n.strategy.Plan(spec, gap, consumed, progressed)
		records, consumed, err = n.gather(ctx, spec, catch, plan, gap)
		if err != nil {
			return err
		}
		buildIndex(records).align(records, n.logger)

		if err := n.step(ctx, catch, model.StateGraphWrite); err != nil {
			return err
		}
		if err := n.writeGraph(ctx, catch, records); err != nil {
			return err
		}

		scenarios, manifest, err := n.synth.Synthesize(ctx, spec, catch.ID)
		if err != nil {
			return fmt.Errorf("re-synthesize: %w", err)
		}
		catch.Scenarios = scenarios
		catch.Manifest = manifest

		if err := n.step(ctx, catch, model.StateValidating); err != nil {
			return err
		}
	}
}

// deploy registers the catch as its domain's trust candidate and writes
// the scenario files an external runner consumes. Routing stays on the
// proxy until a parity evaluation flips it.
func (n *Navigator) deploy(ctx context.Context, spec model.DomainSpec, catch *model.Catch) error {
	result, err := n.commitBatch(ctx, registry.CandidateBatch(spec.Domain, catch.ID))
	if err != nil {
		return fmt.Errorf("register candidate: %w", err)
	}
	if !result.Accepted {
		return fmt.Errorf("candidate registration rejected: %s", result.Reason())
	}
	if err := n.states.saveScenarios(catch); err != nil {
		n.logger.Warnw("Scenario file write failed", "catch", catch.ID, "error", err)
	}
	return nil
}

// gather fetches and extracts the planned sources. Individual source
// failures are logged and skipped; an expedition with zero usable records
// cannot proceed.
func (n *Navigator) gather(ctx context.Context, spec model.DomainSpec, catch *model.Catch, plan []string, gap *model.GapReport) ([]*model.ExtractionRecord, []string, error) {
	if catch.State != model.StateCollecting {
		if err := n.step(ctx, catch, model.StateCollecting); err != nil {
			return nil, nil, err
		}
	}

	type fetched struct {
		source  model.Source
		content []byte
	}
	var results []fetched
	for _, locator := range plan {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		res, err := n.fetcher.Fetch(ctx, locator)
		if err != nil {
			n.logger.Warnw("Source skipped",
				"catch", catch.ID, "locator", locator, "error", err)
			continue
		}
		results = append(results, fetched{source: res.Source, content: res.Content})
	}
	if len(results) == 0 {
		return nil, nil, fmt.Errorf("no sources collected for %s", spec.Domain)
	}

	if err := n.step(ctx, catch, model.StateExtracting); err != nil {
		return nil, nil, err
	}

	var records []*model.ExtractionRecord
	var consumed []string
	for _, r := range results {
		record, err := n.extractor.Extract(ctx, r.source, r.content, spec, gap)
		if err != nil {
			var failure *extract.Failure
			if errors.As(err, &failure) {
				n.logger.Warnw("Extraction failed for source",
					"catch", catch.ID, "source", r.source.Locator,
					"layer", failure.Layer, "reason", failure.Reason)
				continue
			}
			return nil, nil, err
		}
		records = append(records, record)
		consumed = append(consumed, r.source.Locator)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("no sources extracted for %s", spec.Domain)
	}
	return records, consumed, nil
}

// writeGraph commits one batch per record. A schema rejection gets one
// repair pass (violating facts dropped); a second rejection fails the
// expedition.
func (n *Navigator) writeGraph(ctx context.Context, catch *model.Catch, records []*model.ExtractionRecord) error {
	for _, record := range records {
		batch := extract.ToBatch(record)
		result, err := n.commitBatch(ctx, batch)
		if err != nil {
			return err
		}
		if !result.Accepted {
			repaired := repairBatch(batch, result.Violations)
			n.logger.Warnw("Batch repaired after schema rejection",
				"catch", catch.ID, "source", record.Source.Hash[:12],
				"dropped", len(batch.Facts)-len(repaired.Facts))
			if len(repaired.Facts) == 0 {
				continue
			}
			result, err = n.commitBatch(ctx, repaired)
			if err != nil {
				return err
			}
			if !result.Accepted {
				return fmt.Errorf("batch for %s rejected after repair: %s",
					record.Source.Hash[:12], result.Reason())
			}
		}
		catch.FactIDs = append(catch.FactIDs, result.FactIDs...)
	}
	n.persist(catch)
	return nil
}

func (n *Navigator) commitBatch(ctx context.Context, batch *store.Batch) (store.CommitResult, error) {
	receipt, err := n.committer.Enqueue(batch)
	if err != nil {
		return store.CommitResult{}, err
	}
	result, err := n.committer.Commit(ctx, receipt)
	if errors.Is(err, store.ErrLockTimeout) {
		// The batch stays enqueued; one more round before giving up.
		result, err = n.committer.Commit(ctx, receipt)
	}
	if err != nil {
		return store.CommitResult{}, fmt.Errorf("commit batch: %w", err)
	}
	return result, nil
}

// repairBatch drops the facts named by the violations. Orphan references
// and vocabulary misses are per-fact problems; the rest of the batch is
// sound.
func repairBatch(batch *store.Batch, violations []store.Violation) *store.Batch {
	bad := make(map[int]bool, len(violations))
	for _, v := range violations {
		bad[v.FactIdx] = true
	}
	repaired := &store.Batch{
		Domain:     batch.Domain,
		SourceHash: batch.SourceHash,
		Extractor:  batch.Extractor,
	}
	for i, f := range batch.Facts {
		if !bad[i] {
			repaired.Facts = append(repaired.Facts, f)
		}
	}
	return repaired
}

// step transitions unless the context is done; cancellation between states
// abandons the expedition.
func (n *Navigator) step(ctx context.Context, catch *model.Catch, next model.CatchState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.transition(catch, next)
	return nil
}

func (n *Navigator) transition(catch *model.Catch, next model.CatchState) {
	n.logger.Debugw("State transition",
		"catch", catch.ID, "from", catch.State, "to", next)
	catch.State = next
	catch.UpdatedAt = time.Now().UTC()
	n.persist(catch)
}

func (n *Navigator) persist(catch *model.Catch) {
	if err := n.states.save(catch); err != nil {
		n.logger.Warnw("State persistence failed", "catch", catch.ID, "error", err)
	}
}
