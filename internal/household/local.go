package household

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dukerupert/choreweek/internal/apperr"
	"github.com/dukerupert/choreweek/internal/model"
	"github.com/dukerupert/choreweek/internal/rotation"
)

// Remote is the write side of a Repository.
type Remote interface {
	SetMembers(ctx context.Context, id string, members []string) error
	SetChores(ctx context.Context, id string, chores []string) error
	SetEmails(ctx context.Context, id string, emails []string) error
}

// Local is a client's copy of one household profile. Setters apply locally
// first, then write through; a failed write restores the touched field unless
// a remote snapshot has replaced it in the meantime.
type Local struct {
	remote Remote

	mu sync.Mutex
	h  model.Household
}

// NewLocal starts from initial, usually the result of Repository.Ensure.
func NewLocal(remote Remote, initial model.Household) *Local {
	return &Local{remote: remote, h: initial.Clone()}
}

// Snapshot returns a copy of the current local profile.
func (l *Local) Snapshot() model.Household {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.Clone()
}

// Apply merges a remote document field by field. Fields that are missing or
// malformed leave local state untouched. It reports whether anything changed.
func (l *Local) Apply(doc map[string]any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	remote, fields := model.DecodeHousehold(l.h.ID, doc)
	changed := false
	if fields.Members {
		l.h.Members, changed = remote.Members, true
	}
	if fields.Chores {
		l.h.Chores, changed = remote.Chores, true
	}
	if fields.Emails {
		l.h.Emails, changed = remote.Emails, true
	}
	if remote.CreatedAt != nil {
		l.h.CreatedAt = remote.CreatedAt
	}
	return changed
}

// SetMember names whoever is responsible on weekday idx.
func (l *Local) SetMember(ctx context.Context, idx int, name string) error {
	if err := validateIndex(idx); err != nil {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set member", Err: err}
	}
	name = strings.TrimSpace(name)

	l.mu.Lock()
	prev := l.h.Members
	next := pad(prev, idx)
	next[idx] = name
	l.h.Members = next
	id := l.h.ID
	l.mu.Unlock()

	if err := l.remote.SetMembers(ctx, id, next); err != nil {
		l.mu.Lock()
		if slices.Equal(l.h.Members, next) {
			l.h.Members = prev
		}
		l.mu.Unlock()
		return err
	}
	return nil
}

// SetChores replaces the chore list. Blank and duplicate names (by chore key)
// are dropped.
func (l *Local) SetChores(ctx context.Context, chores []string) error {
	next := CleanChores(chores)

	l.mu.Lock()
	prev := l.h.Chores
	l.h.Chores = next
	id := l.h.ID
	l.mu.Unlock()

	if err := l.remote.SetChores(ctx, id, next); err != nil {
		l.mu.Lock()
		if slices.Equal(l.h.Chores, next) {
			l.h.Chores = prev
		}
		l.mu.Unlock()
		return err
	}
	return nil
}

// SetEmail sets the notification address for weekday idx, padding the list
// with empty addresses as needed. An empty address clears it.
func (l *Local) SetEmail(ctx context.Context, idx int, email string) error {
	if err := validateIndex(idx); err != nil {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set email", Err: err}
	}
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set email", Err: err}
	}

	l.mu.Lock()
	prev := l.h.Emails
	next := pad(prev, idx)
	next[idx] = email
	l.h.Emails = next
	id := l.h.ID
	l.mu.Unlock()

	if err := l.remote.SetEmails(ctx, id, next); err != nil {
		l.mu.Lock()
		if slices.Equal(l.h.Emails, next) {
			l.h.Emails = prev
		}
		l.mu.Unlock()
		return err
	}
	return nil
}

// CleanChores trims names and drops blanks and names that share a chore key
// with an earlier entry.
func CleanChores(chores []string) []string {
	out := make([]string, 0, len(chores))
	seen := make(map[string]bool, len(chores))
	for _, c := range chores {
		c = strings.TrimSpace(c)
		key := rotation.NormalizeChore(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// pad returns a copy of list long enough to index idx.
func pad(list []string, idx int) []string {
	n := len(list)
	if n <= idx {
		n = idx + 1
	}
	next := make([]string, n)
	copy(next, list)
	return next
}
