// Package store persists frame records in a hierarchical key-value file.
//
// A store is a single SQLite file holding a tree of groups and datasets
// addressed by slash-separated paths. A clip-level store is laid out as
// emotion/frame_index/{landmarks,mel,phoneme}; a merged corpus adds a
// leading clip level. A store can also hold links: named references to other
// store files, which are never followed implicitly and must be dereferenced
// with [Store.Resolve].
//
// Frame index keys are strings in the tree but always sort numerically; use
// [SortNumeric] or [Store.FrameKeys] rather than the lexical child order.
//
// A Store opened read-only is safe for concurrent reads. Write modes buffer
// all changes in one transaction that is committed by [Store.Flush] and
// [Store.Close]; they are meant for a single writer.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/maastricht-university/emocorpus/phoneme"
)

// Ext is the file extension of store files.
const Ext = ".sqlite"

var (
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrNotFound is matched by [*NotFoundError].
	ErrNotFound = errors.New("not found")

	// ErrReadOnly is returned by writes on a store opened with [ReadOnly].
	ErrReadOnly = errors.New("store is read-only")

	// ErrFormat marks files that are not record stores.
	ErrFormat = errors.New("malformed store")
)

// NotFoundError reports a missing key and the first path segment that does
// not exist.
type NotFoundError struct {
	Path    string
	Segment string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %q not found: missing %q", e.Path, e.Segment)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Mode selects how [Open] treats the backing file.
type Mode int

const (
	// ReadOnly opens an existing store for reading.
	ReadOnly Mode = iota

	// ReadWrite opens a store for writing, creating it if absent.
	ReadWrite

	// Create truncates any existing file and starts an empty store.
	Create
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case Create:
		return "create"
	default:
		return "unknown"
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		path   TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		name   TEXT NOT NULL,
		kind   INTEGER NOT NULL,
		dtype  TEXT NOT NULL DEFAULT '',
		shape  TEXT NOT NULL DEFAULT '',
		data   BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS nodes_parent ON nodes(parent, name)`,
	`CREATE TABLE IF NOT EXISTS links (
		name   TEXT PRIMARY KEY,
		target TEXT NOT NULL
	)`,
}

type options struct {
	codec *phoneme.Codec
	log   logrus.FieldLogger
}

// Option configures a [Store].
type Option func(*options)

// WithCodec sets the phoneme codec used by [Store.Append]. Default: [phoneme.Default].
func WithCodec(c *phoneme.Codec) Option { return func(o *options) { o.codec = c } }

// WithLogger sets the logger. Default: logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store is an open record store.
type Store struct {
	path string
	mode Mode
	opts options
	log  logrus.FieldLogger

	mu     sync.RWMutex
	db     *sql.DB
	tx     *sql.Tx
	closed bool
}

// Open acquires the store at path. Callers must Close it; [With] does so on
// every exit path.
func Open(path string, mode Mode, opts ...Option) (*Store, error) {
	o := options{codec: phoneme.Default(), log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	switch mode {
	case ReadOnly:
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("store: open %q: %w", path, err)
		}
	case Create:
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("store: truncate %q: %w", path, err)
		}
	case ReadWrite:
	default:
		return nil, fmt.Errorf("store: unknown mode %d", mode)
	}
	if mode != ReadOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: open %q: %w", path, err)
		}
	}

	dsn := "file:" + filepath.ToSlash(path)
	if mode == ReadOnly {
		dsn += "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if mode != ReadOnly {
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		path: path,
		mode: mode,
		opts: o,
		log:  o.log.WithFields(logrus.Fields{"path": path}),
		db:   db,
	}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if s.mode == ReadOnly {
		var n int
		err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('nodes', 'links')`).Scan(&n)
		if err != nil {
			return fmt.Errorf("store: %q: %w: %v", s.path, ErrFormat, err)
		}
		if n != 2 {
			return fmt.Errorf("store: %q: %w: missing tables", s.path, ErrFormat)
		}
		return nil
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init %q: %w", s.path, err)
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin %q: %w", s.path, err)
	}
	s.tx = tx
	return nil
}

// With opens the store, runs fn, and flushes and closes the store afterwards,
// including when fn fails or panics. A close error is returned only if fn
// succeeded.
func With(path string, mode Mode, fn func(*Store) error, opts ...Option) (err error) {
	s, err := Open(path, mode, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && !errors.Is(cerr, ErrClosed) && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// Path is the file backing the store.
func (s *Store) Path() string { return s.path }

// Mode is the mode the store was opened with.
func (s *Store) Mode() Mode { return s.mode }

// Flush commits buffered writes. It is a no-op for read-only stores.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("store: flush %q: %w", s.path, err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.tx = nil
		return fmt.Errorf("store: begin %q: %w", s.path, err)
	}
	s.tx = tx
	return nil
}

// Close flushes and releases the file. Further calls, including a second
// Close, return [ErrClosed].
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	var errs []error
	if s.tx != nil {
		if err := s.tx.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("store: flush %q: %w", s.path, err))
		}
		s.tx = nil
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: close %q: %w", s.path, err))
	}
	return errors.Join(errs...)
}

// reader returns the querier for a read and the matching unlock.
func (s *Store) reader() (querier, func(), error) {
	if s.mode == ReadOnly {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			return nil, nil, ErrClosed
		}
		return s.db, s.mu.RUnlock, nil
	}
	// Write modes read through the pending transaction, which has one
	// connection and must not be shared.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrClosed
	}
	if s.tx == nil {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("store: %q has no open transaction", s.path)
	}
	return s.tx, s.mu.Unlock, nil
}

// writer is like reader but rejects read-only stores.
func (s *Store) writer() (querier, func(), error) {
	if s.mode == ReadOnly {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			return nil, nil, ErrClosed
		}
		return nil, nil, fmt.Errorf("store: %q: %w", s.path, ErrReadOnly)
	}
	return s.reader()
}
