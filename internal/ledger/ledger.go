// Package ledger is the append-only provenance record. One entry is written
// per committed fact; entries are never rewritten or removed, so the file is
// the audit trail for every artifact the factory produces.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry records who/what/when for a single committed fact.
type Entry struct {
	FactID      string    `json:"fact_id"`
	Domain      string    `json:"domain"`
	Subject     string    `json:"subject"`
	Predicate   string    `json:"predicate"`
	Object      string    `json:"object"`
	SourceHash  string    `json:"source_hash"`
	Extractor   string    `json:"extractor"`
	Confidence  float64   `json:"confidence"`
	CommittedAt time.Time `json:"committed_at"`
}

// Ledger appends provenance entries to a JSONL file under a mutex and
// answers domain/source queries by scanning it.
type Ledger struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	logger *zap.SugaredLogger
}

// Open opens (or creates) the ledger file in append-only mode.
func Open(path string, logger *zap.SugaredLogger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Ledger{path: path, file: f, logger: logger}, nil
}

// Append writes entries in order and syncs them to disk before returning.
func (l *Ledger) Append(entries ...Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := bufio.NewWriter(l.file)
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal ledger entry: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write ledger entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}

	l.logger.Debugw("Ledger appended", "entries", len(entries), "path", l.path)
	return nil
}

// ByDomain returns all entries for a domain in commit order.
func (l *Ledger) ByDomain(domain string) ([]Entry, error) {
	return l.scan(func(e Entry) bool { return e.Domain == domain })
}

// BySource returns all entries derived from the given source hash.
func (l *Ledger) BySource(sourceHash string) ([]Entry, error) {
	return l.scan(func(e Entry) bool { return e.SourceHash == sourceHash })
}

func (l *Ledger) scan(keep func(Entry) bool) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger for scan: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// A torn trailing line can follow a crash; skip it.
			continue
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return out, nil
}

// Close closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
