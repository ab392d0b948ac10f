// Package session is one client's view of a household: it owns the
// subscriptions to the household profile and the selected week, applies their
// snapshots, and routes mutations to the stores.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/choreweek/internal/apperr"
	"github.com/dukerupert/choreweek/internal/chore"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/household"
	"github.com/dukerupert/choreweek/internal/model"
	"github.com/dukerupert/choreweek/internal/rotation"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

type Option func(*Session)

// WithLocation sets the zone that decides the current week.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithActor sets the identity used for uploads and completions.
func WithActor(name string) Option {
	return func(s *Session) { s.actor = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session follows one household and one week at a time. Snapshots are
// applied whole and last-update-wins; a snapshot whose version is not newer
// than the one already applied is dropped.
type Session struct {
	docs   docstore.Store
	repo   *household.Repository
	chores *chore.Store
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	changes chan struct{}

	mu          sync.Mutex
	actor       string
	local       *household.Local
	hhVersion   int64
	hhCancel    context.CancelFunc
	week        *model.WeekRecord
	weekVersion int64
	weekCancel  context.CancelFunc
	closed      bool
}

// Open ensures the household exists and subscribes to it and to the current
// week. Close releases both subscriptions.
func Open(ctx context.Context, docs docstore.Store, chores *chore.Store, id string, opts ...Option) (*Session, error) {
	s := &Session{
		docs:    docs,
		repo:    household.NewRepository(docs),
		chores:  chores,
		loc:     time.UTC,
		now:     time.Now,
		logger:  slog.Default(),
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.SwitchHousehold(ctx, id); err != nil {
		s.cancel()
		return nil, err
	}
	return s, nil
}

// Close cancels both subscriptions and waits for their readers to exit.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Changes signals that the household or week was updated. Signals coalesce;
// read the current state with Household, Week or Board.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// SwitchHousehold replaces the followed household and resets the week to the
// current one.
func (s *Session) SwitchHousehold(ctx context.Context, raw string) error {
	id, err := household.SanitizeID(raw)
	if err != nil {
		return err
	}
	h, err := s.repo.Ensure(ctx, id, household.Defaults())
	if err != nil {
		return fmt.Errorf("open household %s: %w", id, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.hhCancel != nil {
		s.hhCancel()
	}
	s.local = household.NewLocal(s.repo, *h)
	s.hhVersion = 0
	subCtx, cancel := context.WithCancel(s.ctx)
	s.hhCancel = cancel
	s.mu.Unlock()

	sub, err := s.repo.Subscribe(subCtx, id)
	if err != nil {
		cancel()
		return err
	}
	s.follow(sub, func(snap docstore.Snapshot) { s.applyHousehold(snap) })

	return s.SetWeek(ctx, rotation.WeekKey(s.now().In(s.loc)))
}

// SetWeek switches the followed week.
func (s *Session) SetWeek(ctx context.Context, key string) error {
	if !rotation.ValidWeekKey(key) {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set week", Err: fmt.Errorf("bad week %q", key)}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.weekCancel != nil {
		s.weekCancel()
	}
	s.week = model.NewWeekRecord(key)
	s.weekVersion = 0
	id := s.local.Snapshot().ID
	subCtx, cancel := context.WithCancel(s.ctx)
	s.weekCancel = cancel
	s.mu.Unlock()

	path, _ := chore.WeekPath(id, key)
	sub, err := s.docs.Subscribe(subCtx, path)
	if err != nil {
		cancel()
		return apperr.Storage("subscribe week", err)
	}
	s.follow(sub, func(snap docstore.Snapshot) { s.applyWeek(key, snap) })
	s.notify()
	return nil
}

// ShiftWeek moves the followed week by n weeks.
func (s *Session) ShiftWeek(ctx context.Context, n int) error {
	monday, err := rotation.ParseWeekKey(s.WeekKey())
	if err != nil {
		return err
	}
	return s.SetWeek(ctx, rotation.WeekKey(monday.AddDate(0, 0, 7*n)))
}

// CurrentWeek follows the week containing now.
func (s *Session) CurrentWeek(ctx context.Context) error {
	return s.SetWeek(ctx, rotation.WeekKey(s.now().In(s.loc)))
}

func (s *Session) follow(sub *docstore.Subscription, apply func(docstore.Snapshot)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for snap := range sub.Events() {
			apply(snap)
		}
	}()
}

// applyHousehold merges a profile snapshot. A missing document leaves the
// local profile as it was.
func (s *Session) applyHousehold(snap docstore.Snapshot) {
	s.mu.Lock()
	if s.closed || !s.following(snap.Path, true) || !snap.Exists || snap.Version <= s.hhVersion {
		s.mu.Unlock()
		return
	}
	s.hhVersion = snap.Version
	changed := s.local.Apply(snap.Data)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// applyWeek replaces the week record with the snapshot. A missing document
// is an empty week.
func (s *Session) applyWeek(key string, snap docstore.Snapshot) {
	s.mu.Lock()
	if s.closed || !s.following(snap.Path, false) || s.week.Key != key || (snap.Version != 0 && snap.Version <= s.weekVersion) {
		s.mu.Unlock()
		return
	}
	s.weekVersion = snap.Version
	s.week = model.DecodeWeek(key, snap.Data)
	s.mu.Unlock()

	s.notify()
}

// following reports whether path is still the followed household or week
// document. Snapshots from a replaced subscription fail this check. Callers
// hold s.mu.
func (s *Session) following(path string, isHousehold bool) bool {
	id := s.local.Snapshot().ID
	if isHousehold {
		want, _ := household.Path(id)
		return path == want
	}
	want, _ := chore.WeekPath(id, s.week.Key)
	return path == want
}

// Actor returns the identity used for uploads and completions.
func (s *Session) Actor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

func (s *Session) SetActor(name string) {
	s.mu.Lock()
	s.actor = name
	s.mu.Unlock()
}

// Household returns a copy of the local profile.
func (s *Session) Household() model.Household {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local.Snapshot()
}

// WeekKey returns the followed week.
func (s *Session) WeekKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.week.Key
}

// Entry returns the synced state of chore on day, nil when pending.
func (s *Session) Entry(choreName string, day int) *model.DayEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.week.Entry(choreName, day)
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// Board lays out the followed week.
func (s *Session) Board() (*chore.Board, error) {
	s.mu.Lock()
	h := s.local.Snapshot()
	week := s.week
	s.mu.Unlock()
	return chore.BuildBoard(h, week)
}

func (s *Session) ref(choreName string, day int) chore.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chore.Ref{Household: s.local.Snapshot().ID, Week: s.week.Key, Chore: choreName, Day: day}
}

func (s *Session) localProfile() *household.Local {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *Session) SetMember(ctx context.Context, idx int, name string) error {
	err := s.localProfile().SetMember(ctx, idx, name)
	s.notify()
	return err
}

func (s *Session) SetChores(ctx context.Context, chores []string) error {
	err := s.localProfile().SetChores(ctx, chores)
	s.notify()
	return err
}

func (s *Session) SetEmail(ctx context.Context, idx int, email string) error {
	err := s.localProfile().SetEmail(ctx, idx, email)
	s.notify()
	return err
}

func (s *Session) UploadProof(ctx context.Context, choreName string, day int, image []byte) error {
	return s.chores.UploadProof(ctx, s.ref(choreName, day), image, s.Actor())
}

func (s *Session) RemoveProof(ctx context.Context, choreName string, day int) error {
	return s.chores.RemoveProof(ctx, s.ref(choreName, day))
}

// SetDone marks or unmarks completion. The proof check runs against the
// stored entry, not the synced copy.
func (s *Session) SetDone(ctx context.Context, choreName string, day int, done bool) error {
	return s.chores.SetDone(ctx, s.ref(choreName, day), done, s.Actor())
}

func (s *Session) FetchProof(ctx context.Context, choreName string, day int) ([]byte, error) {
	return s.chores.FetchProofBytes(ctx, s.ref(choreName, day))
}
