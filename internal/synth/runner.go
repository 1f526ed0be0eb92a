package synth

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/store"
)

// Runner executes one scenario against the candidate service and reports
// pass or fail. Execution errors are distinct from failures: an error means
// the verdict is unknown and the cycle aborts.
type Runner interface {
	Run(ctx context.Context, scenario model.BehaviorScenario) (bool, error)
}

// CycleReport is the outcome of one validation cycle over the full
// scenario set.
type CycleReport struct {
	Cycle  model.ValidationCycle
	Failed []model.BehaviorScenario
}

// MissingCapabilities lists capability ids with at least one failed
// scenario, deduplicated and sorted.
func (r *CycleReport) MissingCapabilities() []string {
	seen := make(map[string]bool)
	for _, sc := range r.Failed {
		seen[sc.Capability] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FailedIDs lists failed scenario ids, sorted.
func (r *CycleReport) FailedIDs() []string {
	out := make([]string, 0, len(r.Failed))
	for _, sc := range r.Failed {
		out = append(out, sc.ID)
	}
	sort.Strings(out)
	return out
}

// Execute runs every scenario through the runner with at most workers in
// flight and aggregates the results into a cycle record. Partial results
// are discarded on error; a cycle either completes or doesn't count.
func Execute(ctx context.Context, runner Runner, scenarios []model.BehaviorScenario, cycle, workers int, logger *zap.SugaredLogger) (*CycleReport, error) {
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var failed []model.BehaviorScenario

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sc := range scenarios {
		sc := sc
		g.Go(func() error {
			passed, err := runner.Run(ctx, sc)
			if err != nil {
				return err
			}
			if !passed {
				mu.Lock()
				failed = append(failed, sc)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	executed := len(scenarios)
	rate := 0.0
	if executed > 0 {
		rate = float64(executed-len(failed)) / float64(executed)
	}

	report := &CycleReport{
		Cycle: model.ValidationCycle{
			Number:    cycle,
			Executed:  executed,
			Passed:    executed - len(failed),
			Failed:    len(failed),
			PassRate:  rate,
			Timestamp: time.Now().UTC(),
		},
		Failed: failed,
	}

	logger.Infow("Validation cycle executed",
		"cycle", cycle,
		"executed", executed,
		"passed", report.Cycle.Passed,
		"pass_rate", rate,
	)
	return report, nil
}

// EvidenceRunner is the built-in runner: it judges a scenario by the
// evidence the knowledge store holds for its capability. A capability with
// no committed relationship facts cannot demonstrate any behavior, and
// low-confidence evidence fails the stricter scenario kinds. Delegating to
// a real service runner replaces this wholesale.
type EvidenceRunner struct {
	Facts FactSource

	// EdgeConfidence and ErrorConfidence gate the non-happy kinds.
	// Zero values pick the defaults.
	EdgeConfidence  float64
	ErrorConfidence float64
}

const (
	defaultEdgeConfidence  = 0.6
	defaultErrorConfidence = 0.75
)

func (r *EvidenceRunner) Run(ctx context.Context, sc model.BehaviorScenario) (bool, error) {
	related, err := r.Facts.All(ctx, store.Pattern{Domain: sc.Domain, Subject: sc.Capability})
	if err != nil {
		return false, err
	}

	support := 0
	maxConf := 0.0
	for _, f := range related {
		if model.IsStructuralPredicate(f.Predicate) || model.IsTrustPredicate(f.Predicate) {
			continue
		}
		support++
		if f.Provenance.Confidence > maxConf {
			maxConf = f.Provenance.Confidence
		}
	}
	if support == 0 {
		return false, nil
	}

	edge, errConf := r.EdgeConfidence, r.ErrorConfidence
	if edge == 0 {
		edge = defaultEdgeConfidence
	}
	if errConf == 0 {
		errConf = defaultErrorConfidence
	}

	switch sc.Kind {
	case model.ScenarioEdgeCase:
		return maxConf >= edge, nil
	case model.ScenarioErrorHandling:
		return maxConf >= errConf, nil
	default:
		return true, nil
	}
}
