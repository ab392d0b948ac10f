package model

import "time"

// ReminderRecord marks a reminder type as sent for one household day. Its
// existence is the only dedupe signal.
type ReminderRecord struct {
	DedupeKey    string    `json:"dedupeKey"`
	ReminderType string    `json:"reminderType"`
	SentAt       time.Time `json:"sentAt"`
	WeekKey      string    `json:"weekKey"`
	DayIndex     int       `json:"dayIndex"`
	Hour         int       `json:"hour"`
	Assignee     string    `json:"assignee"`
	EmailSent    string    `json:"emailSent"`
	Chores       []string  `json:"chores"`
}

// Document encodes the record for storage.
func (r ReminderRecord) Document() map[string]any {
	return map[string]any{
		"dedupeKey":    r.DedupeKey,
		"reminderType": r.ReminderType,
		"sentAt":       r.SentAt.UTC().Format(time.RFC3339Nano),
		"weekKey":      r.WeekKey,
		"dayIndex":     r.DayIndex,
		"hour":         r.Hour,
		"assignee":     r.Assignee,
		"emailSent":    r.EmailSent,
		"chores":       nonNil(r.Chores),
		"choresCount":  len(r.Chores),
	}
}
