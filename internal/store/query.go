package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/trawler/internal/model"
)

// Pattern selects facts by any combination of fields. Empty fields match
// everything; PredicatePrefix matches a namespace (e.g. "trust.").
type Pattern struct {
	Domain          string
	Subject         string
	Predicate       string
	PredicatePrefix string
	Object          string
}

func (p Pattern) build() (string, []any) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if p.Domain != "" {
		add("domain = ?", p.Domain)
	}
	if p.Subject != "" {
		add("subject = ?", p.Subject)
	}
	if p.Predicate != "" {
		add("predicate = ?", p.Predicate)
	}
	if p.PredicatePrefix != "" {
		add("predicate LIKE ?", p.PredicatePrefix+"%")
	}
	if p.Object != "" {
		add("object = ?", p.Object)
	}

	q := "SELECT id, domain, subject, predicate, object, source_hash, extractor, confidence, committed_at FROM facts"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY committed_at, id"
	return q, args
}

// Cursor is a lazy, finite, restartable walk over the facts a pattern
// matches. Reset re-runs the query from the beginning.
type Cursor struct {
	store   *Store
	pattern Pattern
	rows    *sql.Rows
	current model.Fact
	err     error
}

// Query opens a cursor over the facts matching the pattern.
func (s *Store) Query(ctx context.Context, p Pattern) (*Cursor, error) {
	c := &Cursor{store: s, pattern: p}
	if err := c.Reset(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reset restarts the cursor from the first matching fact.
func (c *Cursor) Reset(ctx context.Context) error {
	if c.rows != nil {
		_ = c.rows.Close()
	}
	q, args := c.pattern.build()
	rows, err := c.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query facts: %w", err)
	}
	c.rows = rows
	c.err = nil
	return nil
}

// Next advances to the next fact, returning false at the end of the result.
func (c *Cursor) Next() bool {
	if c.rows == nil || !c.rows.Next() {
		return false
	}
	var f model.Fact
	var committed time.Time
	c.err = c.rows.Scan(
		&f.ID, &f.Domain, &f.Subject, &f.Predicate, &f.Object,
		&f.Provenance.SourceHash, &f.Provenance.Extractor, &f.Provenance.Confidence, &committed,
	)
	if c.err != nil {
		return false
	}
	f.Provenance.CommittedAt = committed
	c.current = f
	return true
}

// Fact returns the fact at the cursor's position.
func (c *Cursor) Fact() model.Fact { return c.current }

// Err reports the first error hit during iteration.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if c.rows != nil {
		return c.rows.Err()
	}
	return nil
}

// Close releases the cursor's result set.
func (c *Cursor) Close() error {
	if c.rows == nil {
		return nil
	}
	return c.rows.Close()
}

// All drains a fresh cursor into a slice. Convenience for callers that
// want the finite result materialized.
func (s *Store) All(ctx context.Context, p Pattern) ([]model.Fact, error) {
	c, err := s.Query(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()

	var facts []model.Fact
	for c.Next() {
		facts = append(facts, c.Fact())
	}
	return facts, c.Err()
}
