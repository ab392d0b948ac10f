// Package household manages household profiles: the member rotation, the
// chore list and the per-weekday notification addresses.
package household

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dukerupert/choreweek/internal/apperr"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/model"
	"github.com/dukerupert/choreweek/internal/rotation"
)

// DefaultMembers seeds a newly created household.
var DefaultMembers = []string{"Abhay", "Rakesh", "Chethan", "Darshan", "Suchethan", "Shashank", "Hari"}

// DefaultChores seeds a newly created household.
var DefaultChores = []string{"Kitchen"}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Defaults returns the profile written when a household is first accessed.
func Defaults() model.Household {
	return model.Household{
		Members: append([]string(nil), DefaultMembers...),
		Chores:  append([]string(nil), DefaultChores...),
		Emails:  []string{},
	}
}

// SanitizeID trims whitespace and any surrounding quote characters left over
// from shell or CI variable expansion.
func SanitizeID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	for {
		trimmed := strings.TrimSpace(strings.Trim(id, "'\"`"))
		if trimmed == id {
			break
		}
		id = trimmed
	}
	if _, err := docstore.Path(id); err != nil {
		return "", &apperr.OpError{Kind: apperr.ErrInvalid, Op: "household id", Err: fmt.Errorf("%q is not a usable identifier", raw)}
	}
	return id, nil
}

// Path is the document path of a household profile.
func Path(id string) (string, error) {
	return docstore.Path("households", id)
}

// ValidateEmail accepts an empty address (notifications off for that day)
// or a plausible mailbox.
func ValidateEmail(email string) error {
	return validation.Validate(email, validation.Match(emailPattern).Error("must be a valid email address"))
}

func validateIndex(idx int) error {
	return validation.Validate(idx, validation.Min(0), validation.Max(rotation.DaysPerWeek-1))
}

// Repository reads and writes household profiles.
type Repository struct {
	docs docstore.Store
	now  func() time.Time
}

// NewRepository creates a repository on docs.
func NewRepository(docs docstore.Store) *Repository {
	return &Repository{docs: docs, now: time.Now}
}

// Ensure creates the household with defaults when it does not exist and
// returns the stored profile. An existing profile is never overwritten.
func (r *Repository) Ensure(ctx context.Context, id string, defaults model.Household) (*model.Household, error) {
	path, err := Path(id)
	if err != nil {
		return nil, &apperr.OpError{Kind: apperr.ErrInvalid, Op: "ensure household", Err: err}
	}
	now := r.now().UTC()
	defaults.CreatedAt = &now
	if _, err := r.docs.Create(ctx, path, defaults.Document()); err != nil {
		return nil, apperr.Storage("ensure household", err)
	}
	h, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.Storage("ensure household", errors.New("household vanished after create"))
	}
	return h, nil
}

// Load returns the profile, or nil when the household does not exist.
func (r *Repository) Load(ctx context.Context, id string) (*model.Household, error) {
	path, err := Path(id)
	if err != nil {
		return nil, &apperr.OpError{Kind: apperr.ErrInvalid, Op: "load household", Err: err}
	}
	doc, err := r.docs.Get(ctx, path)
	if err != nil {
		return nil, apperr.Storage("load household", err)
	}
	if doc == nil {
		return nil, nil
	}
	h, _ := model.DecodeHousehold(id, doc)
	return &h, nil
}

// Subscribe follows the household document.
func (r *Repository) Subscribe(ctx context.Context, id string) (*docstore.Subscription, error) {
	path, err := Path(id)
	if err != nil {
		return nil, &apperr.OpError{Kind: apperr.ErrInvalid, Op: "subscribe household", Err: err}
	}
	sub, err := r.docs.Subscribe(ctx, path)
	if err != nil {
		return nil, apperr.Storage("subscribe household", err)
	}
	return sub, nil
}

func (r *Repository) SetMembers(ctx context.Context, id string, members []string) error {
	return r.setField(ctx, id, model.FieldMembers, members)
}

func (r *Repository) SetChores(ctx context.Context, id string, chores []string) error {
	return r.setField(ctx, id, model.FieldChores, chores)
}

func (r *Repository) SetEmails(ctx context.Context, id string, emails []string) error {
	return r.setField(ctx, id, model.FieldEmails, emails)
}

func (r *Repository) setField(ctx context.Context, id, field string, list []string) error {
	path, err := Path(id)
	if err != nil {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set " + field, Err: err}
	}
	if list == nil {
		list = []string{}
	}
	if err := r.docs.Merge(ctx, path, docstore.Document{field: list}); err != nil {
		return apperr.Storage("set "+field, err)
	}
	return nil
}

// SetMember names whoever is responsible on weekday idx. The stored list is
// read, padded and written in one atomic update.
func (r *Repository) SetMember(ctx context.Context, id string, idx int, name string) error {
	if err := validateIndex(idx); err != nil {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set member", Err: err}
	}
	return r.setIndex(ctx, id, model.FieldMembers, idx, strings.TrimSpace(name))
}

// SetEmail sets the notification address of weekday idx; empty clears it.
func (r *Repository) SetEmail(ctx context.Context, id string, idx int, email string) error {
	if err := validateIndex(idx); err != nil {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set email", Err: err}
	}
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set email", Err: err}
	}
	return r.setIndex(ctx, id, model.FieldEmails, idx, email)
}

func (r *Repository) setIndex(ctx context.Context, id, field string, idx int, value string) error {
	op := "set " + field
	path, err := Path(id)
	if err != nil {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: op, Err: err}
	}
	err = r.docs.Update(ctx, path, func(current docstore.Document) (docstore.Document, error) {
		if current == nil {
			return nil, &apperr.OpError{Kind: apperr.ErrNotFound, Op: op, Err: fmt.Errorf("household %q", id)}
		}
		h, _ := model.DecodeHousehold(id, current)
		list := h.Members
		if field == model.FieldEmails {
			list = h.Emails
		}
		next := pad(list, idx)
		next[idx] = value
		return docstore.Document{field: next}, nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Storage(op, err)
	}
	return nil
}
