// Package synth is the Fishnet: it inspects a domain's committed facts and
// emits behavioral test scenarios plus a capability manifest. Coverage shape
// is mechanical: every capability gets exactly one happy-path, one edge-case
// and one error-handling scenario, so all generated domains look alike to
// the test runner without per-domain hand-authoring.
package synth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/llm"
	"github.com/ppiankov/trawler/internal/model"
	"github.com/ppiankov/trawler/internal/store"
)

// FactSource is the query view the synthesizer reads. *store.Store
// satisfies it.
type FactSource interface {
	All(ctx context.Context, p store.Pattern) ([]model.Fact, error)
}

// Completer phrases scenario bodies through the proxy. Optional: a nil
// completer falls back to template phrasing, which keeps synthesis
// deterministic in tests and offline runs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Synthesizer generates scenarios and manifests for a domain.
type Synthesizer struct {
	facts     FactSource
	completer Completer
	logger    *zap.SugaredLogger
}

// New creates a Synthesizer over a fact view.
func New(facts FactSource, completer Completer, logger *zap.SugaredLogger) *Synthesizer {
	return &Synthesizer{facts: facts, completer: completer, logger: logger}
}

// capability is one capability entity with its supporting facts.
type capability struct {
	ID       string
	Label    string
	Support  int // Relationship facts touching the capability
	MaxConf  float64
}

// Synthesize reads the domain's capability facts and derives the scenario
// set and the manifest.
func (s *Synthesizer) Synthesize(ctx context.Context, spec model.DomainSpec, catchID string) ([]model.BehaviorScenario, *model.CapabilityManifest, error) {
	caps, err := s.capabilities(ctx, spec.Domain)
	if err != nil {
		return nil, nil, err
	}
	if len(caps) == 0 {
		return nil, nil, fmt.Errorf("domain %s has no capability facts", spec.Domain)
	}

	var scenarios []model.BehaviorScenario
	for _, cap := range caps {
		for _, kind := range model.ScenarioKinds {
			scenarios = append(scenarios, s.scenario(ctx, spec, cap, kind))
		}
	}

	manifest := s.manifest(spec, catchID, caps)

	s.logger.Infow("Scenarios synthesized",
		"domain", spec.Domain,
		"capabilities", len(caps),
		"scenarios", len(scenarios),
	)
	return scenarios, manifest, nil
}

// capabilities collects capability entities and their supporting evidence.
func (s *Synthesizer) capabilities(ctx context.Context, domain string) ([]capability, error) {
	isa, err := s.facts.All(ctx, store.Pattern{
		Domain: domain, Predicate: model.PredicateIsA, Object: model.EntityTypeCapability,
	})
	if err != nil {
		return nil, fmt.Errorf("query capabilities: %w", err)
	}

	var caps []capability
	for _, f := range isa {
		cap := capability{ID: f.Subject, Label: f.Subject, MaxConf: f.Provenance.Confidence}

		labels, err := s.facts.All(ctx, store.Pattern{
			Domain: domain, Subject: f.Subject, Predicate: model.PredicateLabeled,
		})
		if err != nil {
			return nil, err
		}
		if len(labels) > 0 {
			cap.Label = labels[len(labels)-1].Object // Latest label wins
		}

		related, err := s.facts.All(ctx, store.Pattern{Domain: domain, Subject: f.Subject})
		if err != nil {
			return nil, err
		}
		for _, r := range related {
			if !model.IsStructuralPredicate(r.Predicate) && !model.IsTrustPredicate(r.Predicate) {
				cap.Support++
				if r.Provenance.Confidence > cap.MaxConf {
					cap.MaxConf = r.Provenance.Confidence
				}
			}
		}
		caps = append(caps, cap)
	}
	return caps, nil
}

const phrasingSystem = `You phrase behavioral test scenarios as plain text.
Keep the Given/When/Then structure you are handed; improve only the wording.
Reply with the scenario text alone.`

// scenario builds one scenario of the given kind. The shape is fixed; only
// the phrasing may be delegated to the proxy.
func (s *Synthesizer) scenario(ctx context.Context, spec model.DomainSpec, cap capability, kind model.ScenarioKind) model.BehaviorScenario {
	body := templateBody(spec.Domain, cap.Label, kind)

	if s.completer != nil {
		resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
			Prompt:      body,
			Context:     llm.RoleContext{Role: "scenario-author", System: phrasingSystem},
			Temperature: 0.2,
		})
		if err != nil {
			s.logger.Debugw("Scenario phrasing fell back to template",
				"capability", cap.ID, "kind", kind, "error", err)
		} else if resp.Text != "" {
			body = resp.Text
		}
	}

	return model.BehaviorScenario{
		ID:         fmt.Sprintf("%s.%s.%s", spec.Domain, cap.ID, kind),
		Domain:     spec.Domain,
		Capability: cap.ID,
		Kind:       kind,
		Title:      fmt.Sprintf("%s: %s", cap.Label, strings.ReplaceAll(string(kind), "_", " ")),
		Body:       body,
	}
}

func templateBody(domain, label string, kind model.ScenarioKind) string {
	switch kind {
	case model.ScenarioHappyPath:
		return fmt.Sprintf(
			"Given a %s request within normal bounds\nWhen the service is asked to %s\nThen it completes and returns a well-formed result",
			domain, strings.ToLower(label))
	case model.ScenarioEdgeCase:
		return fmt.Sprintf(
			"Given a %s request at the boundary of valid input\nWhen the service is asked to %s\nThen it still completes without degraded output",
			domain, strings.ToLower(label))
	default:
		return fmt.Sprintf(
			"Given a %s request with invalid or missing input\nWhen the service is asked to %s\nThen it reports a usable error instead of failing silently",
			domain, strings.ToLower(label))
	}
}

// Render writes scenarios in the plain-text triple format the external
// runner consumes.
func Render(scenarios []model.BehaviorScenario) string {
	var b strings.Builder
	for _, sc := range scenarios {
		fmt.Fprintf(&b, "# scenario: %s\n# capability: %s\n# kind: %s\n%s\n\n", sc.ID, sc.Capability, sc.Kind, sc.Body)
	}
	return b.String()
}
