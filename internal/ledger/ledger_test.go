package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testEntry(factID, domain, source string) Entry {
	return Entry{
		FactID:      factID,
		Domain:      domain,
		Subject:     "subject",
		Predicate:   "is_a",
		Object:      "thing",
		SourceHash:  source,
		Extractor:   "catchfish/0.1",
		Confidence:  0.9,
		CommittedAt: time.Now().UTC(),
	}
}

func TestLedger_AppendAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provenance.jsonl")
	l, err := Open(path, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = l.Close() }()

	if err := l.Append(
		testEntry("f1", "pm", "src-a"),
		testEntry("f2", "pm", "src-b"),
		testEntry("f3", "clinical", "src-a"),
	); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	byDomain, err := l.ByDomain("pm")
	if err != nil {
		t.Fatalf("ByDomain failed: %v", err)
	}
	if len(byDomain) != 2 {
		t.Errorf("expected 2 pm entries, got %d", len(byDomain))
	}
	if byDomain[0].FactID != "f1" || byDomain[1].FactID != "f2" {
		t.Errorf("entries out of commit order: %v", byDomain)
	}

	bySource, err := l.BySource("src-a")
	if err != nil {
		t.Fatalf("BySource failed: %v", err)
	}
	if len(bySource) != 2 {
		t.Errorf("expected 2 src-a entries, got %d", len(bySource))
	}
}

func TestLedger_EmptyQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provenance.jsonl")
	l, err := Open(path, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = l.Close() }()

	entries, err := l.ByDomain("nothing")
	if err != nil {
		t.Fatalf("ByDomain failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}
