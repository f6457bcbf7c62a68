// Package badger wraps dgraph-io/badger/v4 with the open/configure/GC
// lifecycle the persistence store (internal/store) needs, without leaking
// badger's own API surface any further than necessary.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// Config controls how the embedded store is opened.
type Config struct {
	// InMemory runs badger with no on-disk files. Path is ignored.
	InMemory bool

	// Path is the directory badger stores its SST/value-log files in.
	// Required unless InMemory is true.
	Path string

	// SyncWrites forces an fsync on every commit. The store commits each
	// StoreDelta and each WAL row in its own transaction, so with this on
	// every delta write is fsynced.
	SyncWrites bool

	// NumVersionsToKeep bounds MVCC history; this store never reads old
	// versions, so 1 is the right default (no version bloat).
	NumVersionsToKeep int

	// GCInterval is the value-log GC period this configuration carries
	// (zero for InMemoryConfig, where badger keeps no value log to
	// collect). Open and OpenDB do not start a GC loop; a GCRunner has to
	// be created and started separately.
	GCInterval time.Duration
}

// DefaultConfig returns production defaults: durable, synchronous writes,
// periodic GC.
func DefaultConfig() Config {
	return Config{
		InMemory:          false,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
	}
}

// InMemoryConfig returns defaults suited to tests: no durability, no GC
// loop (there is no value log to reclaim).
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		SyncWrites:        false,
		NumVersionsToKeep: 1,
		GCInterval:        0,
	}
}

// Open opens a raw *badger.DB per cfg. Most callers want OpenDB instead,
// which adds context-aware transaction helpers.
func Open(cfg Config) (*dgbadger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent store")
	}

	opts := dgbadger.DefaultOptions(cfg.Path)
	opts.InMemory = cfg.InMemory
	opts.SyncWrites = cfg.SyncWrites
	if cfg.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = cfg.NumVersionsToKeep
	}
	opts.Logger = nil // badger's default logger is noisy; callers use their own.

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	return db, nil
}

// OpenInMemory is a convenience wrapper for Open(InMemoryConfig()).
func OpenInMemory() (*dgbadger.DB, error) {
	return Open(InMemoryConfig())
}

// OpenWithPath is a convenience wrapper for Open with an otherwise-default
// persistent configuration at path.
func OpenWithPath(path string) (*dgbadger.DB, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	return Open(cfg)
}

// DB wraps a *badger.DB with context-aware transaction helpers and keeps
// the configuration it was opened with.
type DB struct {
	*dgbadger.DB
	cfg Config
}

// OpenDB opens a managed DB per cfg.
func OpenDB(cfg Config) (*DB, error) {
	raw, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &DB{DB: raw, cfg: cfg}, nil
}

// WithTxn runs fn inside a read-write transaction, committing on success
// and rolling back on error. It aborts early if ctx is already cancelled.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("badger: context cancelled: %w", err)
	}
	return d.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("badger: context cancelled: %w", err)
	}
	return d.View(fn)
}

// GCRunner periodically invokes badger's value-log garbage collector. This
// is storage-engine housekeeping distinct from the store's delta-compaction
// policy (which stays event-driven, triggered on room close); badger's
// value-log GC reclaims space behind deleted/overwritten keys regardless of
// who deleted them.
type GCRunner struct {
	db       *dgbadger.DB
	interval time.Duration
	ratio    float64
	logger   Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Logger is the minimal logging surface GCRunner needs; *slog.Logger
// satisfies it via pkg/logging.
type Logger interface {
	Warn(msg string, args ...any)
}

// NewGCRunner validates its arguments and returns a runner that has not
// yet started. A nil logger is replaced with a no-op logger.
func NewGCRunner(db *dgbadger.DB, interval time.Duration, ratio float64, logger Logger) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("badger: GC runner: db must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("badger: GC runner: interval must be positive")
	}
	if ratio <= 0 || ratio > 1 {
		return nil, errors.New("badger: GC runner: ratio must be between 0 and 1")
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start launches the GC loop in a background goroutine.
func (r *GCRunner) Start() {
	go r.loop()
}

// Stop signals the loop to exit and waits for it to finish. Safe to call
// once; subsequent calls are no-ops.
func (r *GCRunner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}

func (r *GCRunner) loop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing to
			// reclaim; that is the expected steady state, not a failure.
			for {
				err := r.db.RunValueLogGC(r.ratio)
				if err != nil {
					if !errors.Is(err, dgbadger.ErrNoRewrite) {
						r.logger.Warn("badger value-log GC failed", "error", err)
					}
					break
				}
			}
		}
	}
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// TempDir creates a temporary directory for tests with the given prefix.
func TempDir(prefix string) (string, error) {
	return os.MkdirTemp("", prefix)
}

// CleanupDir removes a directory tree created by TempDir. An empty path is
// a no-op rather than an error, so defer-style cleanup is safe even when
// the directory was never created.
func CleanupDir(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}
