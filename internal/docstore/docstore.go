// Package docstore is a hierarchical JSON document store: documents are
// addressed by slash-separated paths, written whole or field-merged, and
// observed through subscriptions that re-deliver the full document on every
// change.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPath is returned for empty or malformed path segments.
var ErrInvalidPath = errors.New("invalid document path")

// Document is a decoded JSON object. Values are the encoding/json shapes:
// map[string]any, []any, string, float64, bool and nil.
type Document map[string]any

// Snapshot is the full state of one document at one version.
type Snapshot struct {
	Path      string
	Exists    bool
	Data      Document
	Version   int64
	UpdatedAt time.Time
}

// UpdateFunc inspects the current document (nil when absent) and returns a
// patch to merge into it. A nil patch skips the write; an error aborts it.
type UpdateFunc func(current Document) (Document, error)

// Store is the persistence capability used by every collaborator.
// Get returns (nil, nil) for an absent document.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, doc Document) error
	Merge(ctx context.Context, path string, patch Document) error
	Update(ctx context.Context, path string, fn UpdateFunc) error
	Create(ctx context.Context, path string, doc Document) (bool, error)
	Delete(ctx context.Context, path string) error
	Subscribe(ctx context.Context, path string) (*Subscription, error)
}

// Path joins segments into a document path, rejecting segments that are
// empty, contain a slash, or are dot entries.
func Path(segments ...string) (string, error) {
	if len(segments) == 0 {
		return "", ErrInvalidPath
	}
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, "/") {
			return "", fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
		}
	}
	return strings.Join(segments, "/"), nil
}

// Parent returns the path without its last segment ("" for a root document).
func Parent(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Split returns the segments of path.
func Split(path string) []string {
	return strings.Split(path, "/")
}

// DeepMerge merges src into dst. Nested objects merge recursively; every
// other value, including nil, replaces what dst holds.
func DeepMerge(dst, src Document) {
	for k, v := range src {
		if sv, ok := asObject(v); ok {
			if dv, ok := asObject(dst[k]); ok {
				DeepMerge(dv, sv)
				dst[k] = dv
				continue
			}
			dst[k] = Clone(sv)
			continue
		}
		dst[k] = cloneValue(v)
	}
}

// Clone returns a deep copy of doc.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return Clone(t)
	case map[string]any:
		return map[string]any(Clone(Document(t)))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func asObject(v any) (Document, bool) {
	switch t := v.(type) {
	case Document:
		return t, true
	case map[string]any:
		return Document(t), true
	}
	return nil, false
}
