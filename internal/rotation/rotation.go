// Package rotation maps calendar dates to ISO week keys and to the fixed
// Monday-to-Sunday assignment of household members.
package rotation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DaysPerWeek is the number of weekday slots in a rotation.
const DaysPerWeek = 7

// Unassigned is shown for a day when the household has no members.
const Unassigned = "—"

var weekKeyPattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// Assignment is one weekday slot of a week.
type Assignment struct {
	Day      int       `json:"day"`
	Date     time.Time `json:"date"`
	Assignee string    `json:"assignee"`
}

// WeekStart returns midnight of the Monday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -DayIndex(t))
}

// WeekKey returns "{ISO week-year}-W{week}" for the Monday-start week
// containing t. The year is the ISO week-numbering year, which differs from
// the calendar year around New Year.
func WeekKey(t time.Time) string {
	year, week := WeekStart(t).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// ParseWeekKey returns the Monday (UTC midnight) of the week named by key.
func ParseWeekKey(key string) (time.Time, error) {
	m := weekKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid week key %q", key)
	}
	year, _ := strconv.Atoi(m[1])
	week, _ := strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("invalid week number in %q", key)
	}

	// January 4th is always in ISO week 1.
	monday := WeekStart(time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)).AddDate(0, 0, (week-1)*DaysPerWeek)
	if WeekKey(monday) != key {
		return time.Time{}, fmt.Errorf("week %d does not exist in %d", week, year)
	}
	return monday, nil
}

// ValidWeekKey reports whether key names an existing ISO week.
func ValidWeekKey(key string) bool {
	_, err := ParseWeekKey(key)
	return err == nil
}

// DayIndex returns the Monday-based weekday index of t (Monday=0..Sunday=6).
func DayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % DaysPerWeek
}

// Assignments lays members over the seven days starting at the Monday of
// weekStart. Fewer than seven members wrap around.
func Assignments(weekStart time.Time, members []string) []Assignment {
	monday := WeekStart(weekStart)
	out := make([]Assignment, DaysPerWeek)
	for i := range out {
		out[i] = Assignment{
			Day:      i,
			Date:     monday.AddDate(0, 0, i),
			Assignee: AssigneeFor(members, i),
		}
	}
	return out
}

// AssigneeFor returns the member responsible for day, or Unassigned.
func AssigneeFor(members []string, day int) string {
	if len(members) == 0 {
		return Unassigned
	}
	return members[day%len(members)]
}

// NormalizeChore derives the storage key for a chore name: lower-case, runs
// of anything outside [a-z0-9] collapsed to one hyphen, hyphens trimmed.
// "Living Room!" and "living   room" both become "living-room".
func NormalizeChore(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}
