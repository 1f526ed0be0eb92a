package synth

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/store"
)

// memFacts is an in-memory FactSource for synthesis tests.
type memFacts struct {
	facts []model.Fact
}

func (m *memFacts) All(ctx context.Context, p store.Pattern) ([]model.Fact, error) {
	var out []model.Fact
	for _, f := range m.facts {
		if p.Domain != "" && f.Domain != p.Domain {
			continue
		}
		if p.Subject != "" && f.Subject != p.Subject {
			continue
		}
		if p.Predicate != "" && f.Predicate != p.Predicate {
			continue
		}
		if p.Object != "" && f.Object != p.Object {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func pmFacts() *memFacts {
	prov := func(c float64) model.Provenance {
		return model.Provenance{SourceHash: "s1", Extractor: "catchfish/0.2", Confidence: c}
	}
	return &memFacts{facts: []model.Fact{
		{Domain: "pm", Subject: "plan_sprint", Predicate: model.PredicateIsA, Object: model.EntityTypeCapability, Provenance: prov(0.9)},
		{Domain: "pm", Subject: "plan_sprint", Predicate: model.PredicateLabeled, Object: "Plan a sprint", Provenance: prov(0.9)},
		{Domain: "pm", Subject: "plan_sprint", Predicate: "produces", Object: "sprint_plan", Provenance: prov(0.85)},
		{Domain: "pm", Subject: "report_velocity", Predicate: model.PredicateIsA, Object: model.EntityTypeCapability, Provenance: prov(0.8)},
		{Domain: "pm", Subject: "report_velocity", Predicate: model.PredicateLabeled, Object: "Report team velocity", Provenance: prov(0.8)},
		{Domain: "pm", Subject: "report_velocity", Predicate: "reads", Object: "burndown", Provenance: prov(0.5)},
	}}
}

func pmSpec() model.DomainSpec {
	return model.DomainSpec{
		Domain:      "pm",
		EntityTypes: []string{"role", "artifact"},
		Predicates:  []string{"produces", "reads"},
	}
}

func TestSynthesize_ThreeScenariosPerCapability(t *testing.T) {
	s := New(pmFacts(), nil, zap.NewNop().Sugar())

	scenarios, manifest, err := s.Synthesize(context.Background(), pmSpec(), "catch-1")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if len(scenarios) != 6 { // 2 capabilities x 3 kinds
		t.Fatalf("expected 6 scenarios, got %d", len(scenarios))
	}

	byCapKind := make(map[string]int)
	for _, sc := range scenarios {
		byCapKind[sc.Capability+"/"+string(sc.Kind)]++
		if sc.Body == "" || sc.ID == "" {
			t.Errorf("scenario missing body or id: %+v", sc)
		}
	}
	for _, cap := range []string{"plan_sprint", "report_velocity"} {
		for _, kind := range model.ScenarioKinds {
			if byCapKind[cap+"/"+string(kind)] != 1 {
				t.Errorf("capability %s missing exactly-one %s scenario", cap, kind)
			}
		}
	}

	if manifest.CatchID != "catch-1" || manifest.Domain != "pm" {
		t.Errorf("manifest identity wrong: %+v", manifest)
	}
	if len(manifest.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(manifest.Operations))
	}
}

func TestSynthesize_NoCapabilities(t *testing.T) {
	s := New(&memFacts{}, nil, zap.NewNop().Sugar())
	if _, _, err := s.Synthesize(context.Background(), pmSpec(), "catch-1"); err == nil {
		t.Fatal("expected error for a domain with no capability facts")
	}
}

func TestManifest_WriteOperationsFlagged(t *testing.T) {
	s := New(pmFacts(), nil, zap.NewNop().Sugar())
	_, manifest, err := s.Synthesize(context.Background(), pmSpec(), "catch-1")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	ops := make(map[string]model.Operation)
	for _, op := range manifest.Operations {
		ops[op.Name] = op
	}

	// "Plan a sprint" leads with a mutating verb; "Report team velocity"
	// does not.
	if op := ops["plan_sprint"]; op.Effect != model.EffectWrite || !op.ConcurrencyRisk {
		t.Errorf("plan_sprint should be a flagged write, got %+v", op)
	}
	if op := ops["report_velocity"]; op.Effect != model.EffectRead || op.ConcurrencyRisk {
		t.Errorf("report_velocity should be an unflagged read, got %+v", op)
	}
}

type scriptedRunner struct {
	fail map[string]bool
	err  error
}

func (r *scriptedRunner) Run(ctx context.Context, sc model.BehaviorScenario) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return !r.fail[sc.ID], nil
}

func TestExecute_AggregatesPassRate(t *testing.T) {
	scenarios := []model.BehaviorScenario{
		{ID: "a.1", Capability: "a", Kind: model.ScenarioHappyPath},
		{ID: "a.2", Capability: "a", Kind: model.ScenarioEdgeCase},
		{ID: "b.1", Capability: "b", Kind: model.ScenarioHappyPath},
		{ID: "b.2", Capability: "b", Kind: model.ScenarioEdgeCase},
	}
	runner := &scriptedRunner{fail: map[string]bool{"b.2": true}}

	report, err := Execute(context.Background(), runner, scenarios, 1, 2, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if report.Cycle.Executed != 4 || report.Cycle.Passed != 3 {
		t.Errorf("unexpected counts: %+v", report.Cycle)
	}
	if report.Cycle.PassRate != 0.75 {
		t.Errorf("expected pass rate 0.75, got %f", report.Cycle.PassRate)
	}
	if got := report.MissingCapabilities(); len(got) != 1 || got[0] != "b" {
		t.Errorf("expected capability b in the gap, got %v", got)
	}
	if got := report.FailedIDs(); len(got) != 1 || got[0] != "b.2" {
		t.Errorf("expected scenario b.2 in the gap, got %v", got)
	}
}

func TestExecute_RunnerErrorAbortsCycle(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("service unreachable")}
	scenarios := []model.BehaviorScenario{{ID: "a.1", Capability: "a"}}

	if _, err := Execute(context.Background(), runner, scenarios, 1, 2, zap.NewNop().Sugar()); err == nil {
		t.Fatal("expected execution error to abort the cycle")
	}
}

func TestEvidenceRunner_Verdicts(t *testing.T) {
	runner := &EvidenceRunner{Facts: pmFacts()}
	ctx := context.Background()

	// plan_sprint has 0.85 evidence: passes every kind.
	for _, kind := range model.ScenarioKinds {
		passed, err := runner.Run(ctx, model.BehaviorScenario{Domain: "pm", Capability: "plan_sprint", Kind: kind})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !passed {
			t.Errorf("plan_sprint %s should pass on strong evidence", kind)
		}
	}

	// report_velocity has only 0.5 evidence: happy path passes, the
	// stricter kinds do not.
	passed, _ := runner.Run(ctx, model.BehaviorScenario{Domain: "pm", Capability: "report_velocity", Kind: model.ScenarioHappyPath})
	if !passed {
		t.Error("happy path should pass with any supporting evidence")
	}
	passed, _ = runner.Run(ctx, model.BehaviorScenario{Domain: "pm", Capability: "report_velocity", Kind: model.ScenarioErrorHandling})
	if passed {
		t.Error("error handling should fail on weak evidence")
	}

	// No evidence at all fails everything.
	passed, _ = runner.Run(ctx, model.BehaviorScenario{Domain: "pm", Capability: "unknown", Kind: model.ScenarioHappyPath})
	if passed {
		t.Error("a capability with no facts should fail")
	}
}
