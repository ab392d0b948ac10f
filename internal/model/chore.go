package model

import (
	"strconv"
	"time"

	"github.com/dukerupert/choreweek/internal/rotation"
)

// Day entry field names.
const (
	FieldProofExists = "proofExists"
	FieldCompletedBy = "completedBy"
	FieldCompletedAt = "completedAt"
)

// DayEntry is the state of one chore on one weekday. CompletedBy is only ever
// set while ProofExists is true.
type DayEntry struct {
	ProofExists bool       `json:"proof_exists"`
	CompletedBy *string    `json:"completed_by"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Completed reports whether the entry has been marked done.
func (e *DayEntry) Completed() bool {
	return e != nil && e.CompletedBy != nil
}

// WeekRecord holds every day entry of one household week, keyed by
// normalized chore key and weekday index.
type WeekRecord struct {
	Key    string                      `json:"week"`
	Chores map[string]map[int]DayEntry `json:"chores"`
}

// NewWeekRecord returns an empty record for key.
func NewWeekRecord(key string) *WeekRecord {
	return &WeekRecord{Key: key, Chores: make(map[string]map[int]DayEntry)}
}

// Entry returns the entry for a chore (display name or key) on day, or nil
// when nothing has been recorded.
func (w *WeekRecord) Entry(chore string, day int) *DayEntry {
	if w == nil {
		return nil
	}
	days, ok := w.Chores[rotation.NormalizeChore(chore)]
	if !ok {
		return nil
	}
	e, ok := days[day]
	if !ok {
		return nil
	}
	return &e
}

// DecodeWeek reads a week document of the shape
// {"chores": {key: {"0": {...}, ...}}}. Malformed parts are skipped.
func DecodeWeek(key string, doc map[string]any) *WeekRecord {
	w := NewWeekRecord(key)
	chores, ok := object(doc["chores"])
	if !ok {
		return w
	}
	for choreKey, rawDays := range chores {
		days, ok := object(rawDays)
		if !ok {
			continue
		}
		entries := make(map[int]DayEntry)
		for dayKey, rawEntry := range days {
			day, err := strconv.Atoi(dayKey)
			if err != nil || day < 0 || day >= rotation.DaysPerWeek {
				continue
			}
			fields, ok := object(rawEntry)
			if !ok {
				continue
			}
			entries[day] = decodeDayEntry(fields)
		}
		w.Chores[choreKey] = entries
	}
	return w
}

func decodeDayEntry(fields map[string]any) DayEntry {
	var e DayEntry
	e.ProofExists, _ = fields[FieldProofExists].(bool)
	if by, ok := fields[FieldCompletedBy].(string); ok {
		e.CompletedBy = &by
	}
	e.CompletedAt = timeValue(fields[FieldCompletedAt])
	return e
}

// EntryPatch builds the week-document merge patch for one day entry.
func EntryPatch(choreKey string, day int, fields map[string]any) map[string]any {
	return map[string]any{
		"chores": map[string]any{
			choreKey: map[string]any{
				strconv.Itoa(day): fields,
			},
		},
	}
}

// ProofArtifact is the out-of-line proof image record. Bytes are either
// inline (B64) or held in object storage under ObjectKey.
type ProofArtifact struct {
	B64         string    `json:"b64,omitempty"`
	ObjectKey   string    `json:"objectKey,omitempty"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// DecodeProofArtifact reads an artifact document.
func DecodeProofArtifact(doc map[string]any) ProofArtifact {
	var a ProofArtifact
	a.B64, _ = doc["b64"].(string)
	a.ObjectKey, _ = doc["objectKey"].(string)
	a.ContentType, _ = doc["contentType"].(string)
	if size, ok := doc["size"].(float64); ok {
		a.Size = int64(size)
	}
	a.UploadedBy, _ = doc["uploadedBy"].(string)
	if at := timeValue(doc["uploadedAt"]); at != nil {
		a.UploadedAt = *at
	}
	return a
}

// Document encodes the artifact for storage.
func (a ProofArtifact) Document() map[string]any {
	doc := map[string]any{
		"contentType": a.ContentType,
		"size":        a.Size,
		"uploadedBy":  a.UploadedBy,
		"uploadedAt":  a.UploadedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.B64 != "" {
		doc["b64"] = a.B64
	}
	if a.ObjectKey != "" {
		doc["objectKey"] = a.ObjectKey
	}
	return doc
}
