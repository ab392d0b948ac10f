package chore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/choreweek/internal/apperr"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/model"
	"github.com/dukerupert/choreweek/internal/proof"
	"github.com/dukerupert/choreweek/internal/rotation"
)

// DefaultMaxProofBytes caps an uploaded proof image.
const DefaultMaxProofBytes = 1 << 20

var (
	// ErrNoProof is the cause of a precondition failure when marking done.
	ErrNoProof = errors.New("proof must be uploaded before marking done")
	// ErrTooLarge is the cause when a proof image exceeds the size cap.
	ErrTooLarge = errors.New("proof image too large")
)

// Ref addresses one chore on one weekday of one household week.
type Ref struct {
	Household string
	Week      string
	Chore     string
	Day       int
}

// Key returns the normalized chore key.
func (r Ref) Key() string {
	return rotation.NormalizeChore(r.Chore)
}

// Validate rejects refs that cannot address a day entry.
func (r Ref) Validate() error {
	switch {
	case r.Household == "":
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "chore ref", Err: errors.New("household is required")}
	case !rotation.ValidWeekKey(r.Week):
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "chore ref", Err: fmt.Errorf("bad week %q", r.Week)}
	case r.Key() == "":
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "chore ref", Err: fmt.Errorf("bad chore %q", r.Chore)}
	case r.Day < 0 || r.Day >= rotation.DaysPerWeek:
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "chore ref", Err: fmt.Errorf("day %d out of range", r.Day)}
	}
	return nil
}

func (r Ref) weekPath() (string, error) {
	return WeekPath(r.Household, r.Week)
}

func (r Ref) proofPath() (string, error) {
	return docstore.Path("households", r.Household, "weeks", r.Week, "proofs", r.Key()+"-"+strconv.Itoa(r.Day))
}

// WeekPath is the document path of a household week.
func WeekPath(household, week string) (string, error) {
	return docstore.Path("households", household, "weeks", week)
}

// Store enforces proof-gating on top of the document store.
type Store struct {
	docs     docstore.Store
	blobs    proof.BlobStore
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithBlobStore keeps proof bytes in blobs instead of inline in the artifact.
func WithBlobStore(blobs proof.BlobStore) Option {
	return func(s *Store) { s.blobs = blobs }
}

// WithMaxProofBytes overrides DefaultMaxProofBytes.
func WithMaxProofBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithClock overrides time.Now for completion and upload timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a chore store.
func NewStore(docs docstore.Store, opts ...Option) *Store {
	s := &Store{
		docs:     docs,
		maxBytes: DefaultMaxProofBytes,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxProofBytes returns the upload size cap.
func (s *Store) MaxProofBytes() int64 {
	return s.maxBytes
}

// LoadWeek returns the week record, empty when nothing has been stored yet.
func (s *Store) LoadWeek(ctx context.Context, household, week string) (*model.WeekRecord, error) {
	path, err := WeekPath(household, week)
	if err != nil {
		return nil, &apperr.OpError{Kind: apperr.ErrInvalid, Op: "load week", Err: err}
	}
	doc, err := s.docs.Get(ctx, path)
	if err != nil {
		return nil, apperr.Storage("load week", err)
	}
	return model.DecodeWeek(week, doc), nil
}

// UploadProof stores a new proof image and resets the entry to
// proof-uploaded. A previous completion is cleared so that the new proof has
// to be confirmed again.
func (s *Store) UploadProof(ctx context.Context, ref Ref, image []byte, actor string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if len(image) == 0 {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "upload proof", Err: errors.New("empty image")}
	}
	if int64(len(image)) > s.maxBytes {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "upload proof", Err: fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(image), s.maxBytes)}
	}
	proofPath, _ := ref.proofPath()
	weekPath, _ := ref.weekPath()

	artifact := model.ProofArtifact{
		ContentType: http.DetectContentType(image),
		Size:        int64(len(image)),
		UploadedBy:  actor,
		UploadedAt:  s.now().UTC(),
	}
	if s.blobs != nil {
		key := proof.ObjectKey(ref.Household, ref.Week, ref.Key(), ref.Day)
		if err := s.blobs.Put(ctx, key, image, artifact.ContentType); err != nil {
			return apperr.Storage("upload proof: write artifact", err)
		}
		artifact.ObjectKey = key
	} else {
		artifact.B64 = base64.StdEncoding.EncodeToString(image)
	}
	if err := s.docs.Set(ctx, proofPath, artifact.Document()); err != nil {
		return apperr.Storage("upload proof: write artifact", err)
	}

	patch := model.EntryPatch(ref.Key(), ref.Day, map[string]any{
		model.FieldProofExists: true,
		model.FieldCompletedBy: nil,
		model.FieldCompletedAt: nil,
	})
	if err := s.docs.Merge(ctx, weekPath, patch); err != nil {
		s.logger.Warn("proof stored but entry not updated", "household", ref.Household, "week", ref.Week, "chore", ref.Key(), "day", ref.Day, "error", err)
		return apperr.Storage("upload proof: merge entry", err)
	}
	return nil
}

// RemoveProof deletes the artifact and returns the entry to pending, clearing
// any completion.
func (s *Store) RemoveProof(ctx context.Context, ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	proofPath, _ := ref.proofPath()
	weekPath, _ := ref.weekPath()

	if s.blobs != nil {
		key := proof.ObjectKey(ref.Household, ref.Week, ref.Key(), ref.Day)
		if err := s.blobs.Delete(ctx, key); err != nil {
			return apperr.Storage("remove proof: delete artifact", err)
		}
	}
	if err := s.docs.Delete(ctx, proofPath); err != nil {
		return apperr.Storage("remove proof: delete artifact", err)
	}

	patch := model.EntryPatch(ref.Key(), ref.Day, map[string]any{
		model.FieldProofExists: false,
		model.FieldCompletedBy: nil,
		model.FieldCompletedAt: nil,
	})
	if err := s.docs.Merge(ctx, weekPath, patch); err != nil {
		return apperr.Storage("remove proof: merge entry", err)
	}
	return nil
}

// SetDone marks or unmarks completion. The proof check runs against the
// stored entry inside the same atomic update as the write.
func (s *Store) SetDone(ctx context.Context, ref Ref, done bool, actor string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if done && actor == "" {
		return &apperr.OpError{Kind: apperr.ErrInvalid, Op: "set done", Err: errors.New("actor is required")}
	}
	weekPath, _ := ref.weekPath()

	err := s.docs.Update(ctx, weekPath, func(current docstore.Document) (docstore.Document, error) {
		entry := model.DecodeWeek(ref.Week, current).Entry(ref.Key(), ref.Day)
		if done {
			if entry == nil || !entry.ProofExists {
				return nil, &apperr.OpError{Kind: apperr.ErrPrecondition, Op: "set done", Err: ErrNoProof}
			}
			return model.EntryPatch(ref.Key(), ref.Day, map[string]any{
				model.FieldCompletedBy: actor,
				model.FieldCompletedAt: s.now().UTC().Format(time.RFC3339Nano),
			}), nil
		}
		if entry == nil {
			return nil, nil
		}
		return model.EntryPatch(ref.Key(), ref.Day, map[string]any{
			model.FieldCompletedBy: nil,
			model.FieldCompletedAt: nil,
		}), nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrPrecondition) {
			return err
		}
		return apperr.Storage("set done", err)
	}
	return nil
}

// FetchProof returns the artifact and its bytes, or (nil, nil, nil) when no
// artifact exists. The entry's proofExists flag is not consulted.
func (s *Store) FetchProof(ctx context.Context, ref Ref) (*model.ProofArtifact, []byte, error) {
	if err := ref.Validate(); err != nil {
		return nil, nil, err
	}
	proofPath, _ := ref.proofPath()

	doc, err := s.docs.Get(ctx, proofPath)
	if err != nil {
		return nil, nil, apperr.Storage("fetch proof", err)
	}
	if doc == nil {
		return nil, nil, nil
	}
	artifact := model.DecodeProofArtifact(doc)

	switch {
	case artifact.B64 != "":
		data, err := base64.StdEncoding.DecodeString(artifact.B64)
		if err != nil {
			return nil, nil, apperr.Storage("fetch proof", fmt.Errorf("decode inline image: %w", err))
		}
		return &artifact, data, nil
	case artifact.ObjectKey != "" && s.blobs != nil:
		data, err := s.blobs.Get(ctx, artifact.ObjectKey)
		if err != nil {
			return nil, nil, apperr.Storage("fetch proof", err)
		}
		if data == nil {
			return nil, nil, nil
		}
		return &artifact, data, nil
	default:
		s.logger.Warn("proof artifact has no readable image", "path", proofPath, "object_key", artifact.ObjectKey)
		return nil, nil, nil
	}
}

// FetchProofBytes returns the proof image, or nil when there is none.
func (s *Store) FetchProofBytes(ctx context.Context, ref Ref) ([]byte, error) {
	_, data, err := s.FetchProof(ctx, ref)
	return data, err
}
