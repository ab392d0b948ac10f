package chore

import (
	"time"

	"github.com/dukerupert/choreweek/internal/model"
	"github.com/dukerupert/choreweek/internal/rotation"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusProofUploaded Status = "proof_uploaded"
	StatusCompleted     Status = "completed"
)

// StatusOf maps an entry onto the three reachable states. A nil entry is
// pending. Completion without proof is not a reachable state and reads as
// pending.
func StatusOf(e *model.DayEntry) Status {
	switch {
	case e == nil || !e.ProofExists:
		return StatusPending
	case e.CompletedBy != nil:
		return StatusCompleted
	default:
		return StatusProofUploaded
	}
}

// DayStatus is one cell of the board.
type DayStatus struct {
	Day         int        `json:"day"`
	Status      Status     `json:"status"`
	ProofExists bool       `json:"proof_exists"`
	CompletedBy *string    `json:"completed_by"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Cell describes entry e on day; a nil entry is pending.
func Cell(day int, e *model.DayEntry) DayStatus {
	cell := DayStatus{Day: day, Status: StatusOf(e)}
	if e != nil {
		cell.ProofExists = e.ProofExists
		cell.CompletedBy = e.CompletedBy
		cell.CompletedAt = e.CompletedAt
	}
	return cell
}

// ChoreRow is one chore across the seven days of a week.
type ChoreRow struct {
	Name string      `json:"name"`
	Key  string      `json:"key"`
	Days []DayStatus `json:"days"`
}

// Board is a week laid out for display: who is responsible each day and the
// state of every chore on every day.
type Board struct {
	Household string                `json:"household"`
	Week      string                `json:"week"`
	Days      []rotation.Assignment `json:"days"`
	Chores    []ChoreRow            `json:"chores"`
}

// BuildBoard combines a household profile with its week record.
func BuildBoard(h model.Household, week *model.WeekRecord) (*Board, error) {
	monday, err := rotation.ParseWeekKey(week.Key)
	if err != nil {
		return nil, err
	}
	b := &Board{
		Household: h.ID,
		Week:      week.Key,
		Days:      rotation.Assignments(monday, h.Members),
		Chores:    make([]ChoreRow, 0, len(h.Chores)),
	}
	for _, name := range h.Chores {
		row := ChoreRow{Name: name, Key: rotation.NormalizeChore(name), Days: make([]DayStatus, rotation.DaysPerWeek)}
		for day := range row.Days {
			row.Days[day] = Cell(day, week.Entry(name, day))
		}
		b.Chores = append(b.Chores, row)
	}
	return b, nil
}

// PendingOn returns the chores whose entry on day is missing or not yet
// completed, in household order. Blank names are ignored.
func PendingOn(chores []string, week *model.WeekRecord, day int) []string {
	var pending []string
	for _, name := range chores {
		if rotation.NormalizeChore(name) == "" {
			continue
		}
		if !week.Entry(name, day).Completed() {
			pending = append(pending, name)
		}
	}
	return pending
}
