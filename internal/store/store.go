package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ppiankov/trawler/internal/ledger"
	"github.com/ppiankov/trawler/internal/model"
)

var (
	// ErrUnknownReceipt is returned when Commit is handed a receipt that
	// was never enqueued (or already consumed).
	ErrUnknownReceipt = errors.New("unknown write receipt")

	// ErrUnknownDomain is returned for batches whose domain has no
	// registered vocabulary.
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrLockTimeout is returned after the lock requeue budget is spent.
	// The batch stays enqueued; Commit may be called again.
	ErrLockTimeout = errors.New("entity lock timeout")
)

// sleepFunc is the backoff sleep between lock requeue attempts
// (injectable for tests).
var sleepFunc = time.Sleep

// Options tune commit behavior.
type Options struct {
	LockTimeout    time.Duration // Per-attempt wait for the batch's entity locks
	MaxLockRetries int           // Requeue attempts before ErrLockTimeout
}

// Store is the queued, schema-validated writer over the fact graph.
type Store struct {
	db      *sql.DB
	ledger  *ledger.Ledger
	logger  *zap.SugaredLogger
	locks   *entityLocks
	opts    Options
	clock   func() time.Time

	mu      sync.Mutex
	pending map[string]*Batch          // receipt id -> batch
	domains map[string]model.DomainSpec
}

// Open opens the SQLite-backed store, creating the schema if needed.
// WAL mode keeps readers unblocked during batch commits.
func Open(path string, led *ledger.Ledger, logger *zap.SugaredLogger, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if opts.MaxLockRetries <= 0 {
		opts.MaxLockRetries = 4
	}

	logger.Debugw("Knowledge store opened", "path", path, "wal", true)

	return &Store{
		db:      db,
		ledger:  led,
		logger:  logger,
		locks:   newEntityLocks(),
		opts:    opts,
		clock:   func() time.Time { return time.Now().UTC() },
		pending: make(map[string]*Batch),
		domains: make(map[string]model.DomainSpec),
	}, nil
}

// RegisterDomain makes a domain's vocabulary available for validation.
// Registering the same domain again replaces the vocabulary.
func (s *Store) RegisterDomain(spec model.DomainSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[spec.Domain] = spec
}

// Enqueue accepts a batch for later commit and returns its receipt.
func (s *Store) Enqueue(b *Batch) (WriteReceipt, error) {
	if b.Domain == "" {
		return WriteReceipt{}, fmt.Errorf("enqueue: batch has no domain")
	}
	receipt := WriteReceipt{
		ID:             uuid.NewString(),
		IdempotencyKey: b.IdempotencyKey(),
	}

	s.mu.Lock()
	s.pending[receipt.ID] = b
	s.mu.Unlock()

	s.logger.Debugw("Batch enqueued",
		"receipt", receipt.ID,
		"domain", b.Domain,
		"facts", len(b.Facts),
		"entities", len(b.EntityIDs()),
	)
	return receipt, nil
}

// Commit applies an enqueued batch: idempotency check, schema validation,
// per-entity locking, atomic insert, one ledger entry per fact. A batch
// that times out on locks is requeued with exponential backoff up to the
// retry budget and is never silently dropped.
func (s *Store) Commit(ctx context.Context, receipt WriteReceipt) (CommitResult, error) {
	s.mu.Lock()
	batch, ok := s.pending[receipt.ID]
	var spec model.DomainSpec
	var haveSpec bool
	if ok {
		spec, haveSpec = s.domains[batch.Domain]
	}
	s.mu.Unlock()

	if !ok {
		return CommitResult{}, ErrUnknownReceipt
	}
	// Trust-only batches commit without a registered vocabulary: registry
	// updates target domains this process may never have run an expedition
	// for, and trust facts skip the vocabulary checks anyway.
	if !haveSpec && !batch.TrustOnly() {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrUnknownDomain, batch.Domain)
	}

	// Replay check first: a retried extraction must not re-apply.
	if prior, found, err := s.lookupCommit(ctx, receipt.IdempotencyKey); err != nil {
		return CommitResult{}, err
	} else if found {
		s.forget(receipt.ID)
		s.logger.Debugw("Batch replayed from idempotency record",
			"key", receipt.IdempotencyKey, "facts", len(prior.FactIDs))
		return prior, nil
	}

	// Validation is deterministic over batch content plus committed state,
	// so rejections are recomputed on retry rather than recorded.
	violations, err := s.validate(ctx, batch, spec)
	if err != nil {
		return CommitResult{}, err
	}
	if len(violations) > 0 {
		result := CommitResult{Accepted: false, Violations: violations}
		s.logger.Warnw("Batch rejected by schema validation",
			"domain", batch.Domain, "violations", len(violations))
		return result, nil
	}

	entities := batch.EntityIDs()
	backoff := 100 * time.Millisecond
	for attempt := 0; ; attempt++ {
		got, err := s.locks.acquire(ctx, entities, s.opts.LockTimeout)
		if err != nil {
			return CommitResult{}, err
		}
		if got {
			break
		}
		if attempt+1 >= s.opts.MaxLockRetries {
			s.logger.Warnw("Batch lock budget exhausted, left enqueued",
				"receipt", receipt.ID, "entities", len(entities))
			return CommitResult{}, ErrLockTimeout
		}
		s.logger.Debugw("Lock contention, requeueing batch",
			"receipt", receipt.ID, "attempt", attempt+1, "backoff", backoff)
		sleepFunc(backoff)
		backoff *= 2
	}
	defer s.locks.release(entities)

	// Second replay check, now under the entity locks: two concurrent
	// commits of the same key can both miss the first lookup, and the
	// loser must receive the recorded result rather than collide on the
	// commits table.
	if prior, found, err := s.lookupCommit(ctx, receipt.IdempotencyKey); err != nil {
		return CommitResult{}, err
	} else if found {
		s.forget(receipt.ID)
		return prior, nil
	}

	result, err := s.apply(ctx, batch, receipt.IdempotencyKey)
	if err != nil {
		return CommitResult{}, err
	}
	s.forget(receipt.ID)
	return result, nil
}

// apply inserts the batch's facts and its idempotency record in one
// transaction, then appends the provenance entries.
func (s *Store) apply(ctx context.Context, batch *Batch, key string) (CommitResult, error) {
	now := s.clock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CommitResult{}, fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	factIDs := make([]string, len(batch.Facts))
	entries := make([]ledger.Entry, len(batch.Facts))
	for i, f := range batch.Facts {
		id := f.ID
		if id == "" {
			id = uuid.NewString()
		}
		factIDs[i] = id

		if _, err := tx.ExecContext(ctx, factInsertSQL,
			id, batch.Domain, f.Subject, f.Predicate, f.Object,
			f.Provenance.SourceHash, f.Provenance.Extractor, f.Provenance.Confidence, now,
		); err != nil {
			return CommitResult{}, fmt.Errorf("insert fact %s: %w", f.Subject, err)
		}

		entries[i] = ledger.Entry{
			FactID:      id,
			Domain:      batch.Domain,
			Subject:     f.Subject,
			Predicate:   f.Predicate,
			Object:      f.Object,
			SourceHash:  f.Provenance.SourceHash,
			Extractor:   f.Provenance.Extractor,
			Confidence:  f.Provenance.Confidence,
			CommittedAt: now,
		}
	}

	idsJSON, err := json.Marshal(factIDs)
	if err != nil {
		return CommitResult{}, fmt.Errorf("marshal fact ids: %w", err)
	}
	if _, err := tx.ExecContext(ctx, commitInsertSQL, key, batch.Domain, string(idsJSON), now); err != nil {
		return CommitResult{}, fmt.Errorf("record commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return CommitResult{}, fmt.Errorf("commit batch: %w", err)
	}

	if err := s.ledger.Append(entries...); err != nil {
		return CommitResult{}, fmt.Errorf("append provenance: %w", err)
	}

	s.logger.Infow("Batch committed",
		"domain", batch.Domain, "facts", len(factIDs), "key", key)
	return CommitResult{Accepted: true, FactIDs: factIDs}, nil
}

func (s *Store) validate(ctx context.Context, batch *Batch, spec model.DomainSpec) ([]Violation, error) {
	return validateBatch(batch, spec, func(entityID string) (bool, error) {
		var exists bool
		err := s.db.QueryRowContext(ctx, entityExistsSQL, batch.Domain, entityID, model.PredicateIsA).Scan(&exists)
		if err != nil {
			return false, err
		}
		return exists, nil
	})
}

func (s *Store) lookupCommit(ctx context.Context, key string) (CommitResult, bool, error) {
	var idsJSON string
	err := s.db.QueryRowContext(ctx, commitLookupSQL, key).Scan(&idsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return CommitResult{}, false, nil
	}
	if err != nil {
		return CommitResult{}, false, fmt.Errorf("lookup commit: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return CommitResult{}, false, fmt.Errorf("decode commit record: %w", err)
	}
	return CommitResult{Accepted: true, FactIDs: ids}, true, nil
}

func (s *Store) forget(receiptID string) {
	s.mu.Lock()
	delete(s.pending, receiptID)
	s.mu.Unlock()
}

// Close closes the database. The provenance ledger is owned by the caller.
func (s *Store) Close() error {
	return s.db.Close()
}
