package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SQLite implements Store on the documents table. Writes are serialised so
// that every write at a path is atomic and change notifications go out in
// commit order.
type SQLite struct {
	db   *sql.DB
	feed *feed

	mu          sync.Mutex
	lastVersion int64

	obsMu     sync.RWMutex
	observers []func(Snapshot)

	now func() time.Time
}

// NewSQLite wraps an open, migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{
		db:   db,
		feed: newFeed(),
		now:  time.Now,
	}
}

// Observe registers fn to receive every committed change, across all paths.
// fn runs while the write lock is held and must not block or write back.
func (s *SQLite) Observe(fn func(Snapshot)) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

func (s *SQLite) Get(ctx context.Context, path string) (Document, error) {
	snap, err := s.read(ctx, s.db, path)
	if err != nil {
		return nil, err
	}
	return snap.Data, nil
}

func (s *SQLite) Set(ctx context.Context, path string, doc Document) error {
	return s.write(ctx, path, func(Document) (Document, bool, error) {
		return doc, true, nil
	})
}

func (s *SQLite) Merge(ctx context.Context, path string, patch Document) error {
	return s.write(ctx, path, func(current Document) (Document, bool, error) {
		next := current
		if next == nil {
			next = Document{}
		}
		DeepMerge(next, patch)
		return next, true, nil
	})
}

func (s *SQLite) Update(ctx context.Context, path string, fn UpdateFunc) error {
	return s.write(ctx, path, func(current Document) (Document, bool, error) {
		patch, err := fn(Clone(current))
		if err != nil {
			return nil, false, err
		}
		if patch == nil {
			return nil, false, nil
		}
		next := current
		if next == nil {
			next = Document{}
		}
		DeepMerge(next, patch)
		return next, true, nil
	})
}

func (s *SQLite) Create(ctx context.Context, path string, doc Document) (bool, error) {
	created := false
	err := s.write(ctx, path, func(current Document) (Document, bool, error) {
		if current != nil {
			return nil, false, nil
		}
		created = true
		return doc, true, nil
	})
	return created, err
}

func (s *SQLite) Delete(ctx context.Context, path string) error {
	return s.write(ctx, path, func(current Document) (Document, bool, error) {
		return nil, current != nil, nil
	})
}

// Subscribe registers a subscription on path and delivers the current state
// as its first snapshot.
func (s *SQLite) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	if _, err := Path(Split(path)...); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read(ctx, s.db, path)
	if err != nil {
		return nil, err
	}
	sub := s.feed.add(ctx, path)
	sub.offer(snap)
	return sub, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) read(ctx context.Context, q queryer, path string) (Snapshot, error) {
	snap := Snapshot{Path: path}
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT data, version, updated_at FROM documents WHERE path = ?`, path,
	).Scan(&raw, &snap.Version, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("read document %s: %w", path, err)
	}
	if err := json.Unmarshal([]byte(raw), &snap.Data); err != nil {
		return snap, fmt.Errorf("decode document %s: %w", path, err)
	}
	if snap.Data == nil {
		snap.Data = Document{}
	}
	snap.Exists = true
	return snap, nil
}

// write runs a read-modify-write at path. fn receives the current document
// and returns the next one (nil deletes) and whether to write at all.
func (s *SQLite) write(ctx context.Context, path string, fn func(current Document) (Document, bool, error)) error {
	if _, err := Path(Split(path)...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := s.read(ctx, tx, path)
	if err != nil {
		return err
	}

	next, ok, err := fn(current.Data)
	if err != nil || !ok {
		return err
	}

	now := s.now().UTC()
	version := s.nextVersion(now)
	snap := Snapshot{Path: path, Version: version, UpdatedAt: now}

	if next == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
			return fmt.Errorf("delete document %s: %w", path, err)
		}
	} else {
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode document %s: %w", path, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (path, parent, data, version, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`,
			path, Parent(path), string(raw), version, now,
		); err != nil {
			return fmt.Errorf("write document %s: %w", path, err)
		}
		// Subscribers see the canonical JSON shapes, not the caller's types.
		if err := json.Unmarshal(raw, &snap.Data); err != nil {
			return fmt.Errorf("decode document %s: %w", path, err)
		}
		snap.Exists = true
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document %s: %w", path, err)
	}

	s.feed.publish(snap)
	s.notifyObservers(snap)
	return nil
}

// nextVersion returns a store-wide, strictly increasing version so that a
// document deleted and recreated never goes backwards.
func (s *SQLite) nextVersion(now time.Time) int64 {
	v := now.UnixNano()
	if v <= s.lastVersion {
		v = s.lastVersion + 1
	}
	s.lastVersion = v
	return v
}

func (s *SQLite) notifyObservers(snap Snapshot) {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	for _, fn := range s.observers {
		c := snap
		c.Data = Clone(snap.Data)
		fn(c)
	}
}
