package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/llm"
	"github.com/ppiankov/trawler/internal/model"
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.reply}, nil
}

func pmDomain() model.DomainSpec {
	return model.DomainSpec{
		Domain:      "pm",
		EntityTypes: []string{"role", "artifact"},
		Predicates:  []string{"owns", "produces"},
		Sources:     []string{"a.txt", "b.txt", "c.txt"},
	}
}

func testSource() (model.Source, []byte) {
	content := []byte("The product manager owns the backlog. Planning produces a sprint plan.")
	return model.NewSource("notes.txt", content, "text/plain"), content
}

func TestExtractor_FourLayers(t *testing.T) {
	completer := &fakeCompleter{reply: strings.Join([]string{
		"entity: product_manager | Product Manager | role | 0.95",
		"entity: backlog | Backlog | artifact | 0.9",
		"entity: plan_sprint | Plan a sprint | capability | 0.85",
		"rel: product_manager | owns | backlog | 0.9",
		"not a parseable line",
	}, "\n")}

	e := New(completer, zap.NewNop().Sugar())
	source, content := testSource()

	record, err := e.Extract(context.Background(), source, content, pmDomain(), nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(record.Entities) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(record.Entities))
	}
	if len(record.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(record.Relationships))
	}
	if record.Document.Header.SourceHash != source.Hash {
		t.Error("document header missing source hash")
	}
	if record.Document.Header.ExtractorVersion != Version {
		t.Error("document header missing extractor version")
	}
	if record.DurationMS < 0 {
		t.Errorf("negative duration: %d", record.DurationMS)
	}

	caps := record.Capabilities()
	if len(caps) != 1 || caps[0].ID != "plan_sprint" {
		t.Errorf("capability detection failed: %v", caps)
	}
}

func TestExtractor_DurationTracked(t *testing.T) {
	base := time.Now()
	calls := 0
	clockFunc = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 250 * time.Millisecond)
	}
	defer func() { clockFunc = time.Now }()

	completer := &fakeCompleter{reply: "entity: x | X | role | 0.9"}
	e := New(completer, zap.NewNop().Sugar())
	source, content := testSource()

	record, err := e.Extract(context.Background(), source, content, pmDomain(), nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if record.DurationMS <= 0 {
		t.Errorf("expected positive duration, got %d", record.DurationMS)
	}
}

func TestExtractor_Layer2FailureKeepsPartial(t *testing.T) {
	// A reply with no usable entities is a layer-2 failure with a partial
	// record attached for the navigator to inspect.
	completer := &fakeCompleter{reply: "nothing extractable here"}
	e := New(completer, zap.NewNop().Sugar())
	source, content := testSource()

	_, err := e.Extract(context.Background(), source, content, pmDomain(), nil)
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if failure.Layer != LayerIdentify {
		t.Errorf("expected layer 2 failure, got %d", failure.Layer)
	}
	if failure.Partial == nil {
		t.Error("expected partial record on layer-2 failure")
	}
}

func TestExtractor_ProxyErrorIsLayer2(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("endpoint down")}
	e := New(completer, zap.NewNop().Sugar())
	source, content := testSource()

	_, err := e.Extract(context.Background(), source, content, pmDomain(), nil)
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if failure.Layer != LayerIdentify {
		t.Errorf("expected layer 2 failure, got %d", failure.Layer)
	}
}

func TestExtractor_GapFocusesPrompt(t *testing.T) {
	completer := &fakeCompleter{reply: "entity: x | X | role | 0.9"}
	e := New(completer, zap.NewNop().Sugar())
	source, content := testSource()

	gap := &model.GapReport{MissingCapabilities: []string{"plan_sprint"}}
	if _, err := e.Extract(context.Background(), source, content, pmDomain(), gap); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(completer.prompts) != 1 || !strings.Contains(completer.prompts[0], "plan_sprint") {
		t.Error("gap report not reflected in identification prompt")
	}
}

func TestToBatch_TranslatesRecord(t *testing.T) {
	record := &model.ExtractionRecord{
		Domain:           "pm",
		Source:           model.Source{Hash: "abc123"},
		ExtractorVersion: Version,
		Entities: []model.Entity{
			{ID: "pmgr", Label: "Product Manager", Type: "role", Confidence: 0.9},
		},
		Relationships: []model.Relationship{
			{SubjectID: "pmgr", Predicate: "owns", ObjectID: "backlog", Confidence: 0.8},
		},
	}

	batch := ToBatch(record)
	if len(batch.Facts) != 3 { // is_a + labeled + relationship
		t.Fatalf("expected 3 facts, got %d", len(batch.Facts))
	}
	for _, f := range batch.Facts {
		if f.Provenance.SourceHash != "abc123" || f.Provenance.Extractor != Version {
			t.Errorf("fact missing provenance: %+v", f)
		}
	}
	if batch.IdempotencyKey() == "" {
		t.Error("batch has no idempotency key")
	}

	// Same record, same key: retried extractions replay instead of duplicating.
	if batch.IdempotencyKey() != ToBatch(record).IdempotencyKey() {
		t.Error("idempotency key not deterministic")
	}
}

func TestGapFocusedStrategy(t *testing.T) {
	spec := pmDomain()
	consumed := []string{"a.txt"}

	s := GapFocused{}

	// First plan, no gap yet: everything the domain lists.
	if got := s.Plan(spec, nil, nil, false); len(got) != 3 {
		t.Errorf("initial plan should cover all sources, got %v", got)
	}

	gap := &model.GapReport{MissingCapabilities: []string{"x"}}

	// Progress on the same sources: stay with them.
	if got := s.Plan(spec, gap, consumed, true); len(got) != 1 || got[0] != "a.txt" {
		t.Errorf("progressed plan should re-read consumed sources, got %v", got)
	}

	// No progress: widen to untouched sources too.
	got := s.Plan(spec, gap, consumed, false)
	if len(got) != 3 {
		t.Errorf("stalled plan should widen, got %v", got)
	}
}
