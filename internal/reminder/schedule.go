// Package reminder decides when a chore reminder is due and sends it at most
// once per household, day and reminder type.
package reminder

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

//go:embed slots.yaml
var defaultSlots []byte

var slotTypePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Slot is one strategic reminder hour.
type Slot struct {
	Hour    int    `yaml:"hour" json:"hour"`
	Type    string `yaml:"type" json:"type"`
	Message string `yaml:"message" json:"message"`
}

// Validate validates the slot.
func (s *Slot) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Hour, validation.Min(0), validation.Max(23)),
		validation.Field(&s.Type, validation.Required, validation.Match(slotTypePattern)),
		validation.Field(&s.Message, validation.Required),
	)
}

// Schedule is the static table of strategic hours.
type Schedule struct {
	slots  []Slot
	byHour map[int]Slot
}

type scheduleFile struct {
	Slots []Slot `yaml:"slots"`
}

// ParseSchedule decodes a YAML slot table. Hours and types must be unique.
func ParseSchedule(data []byte) (*Schedule, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reminder slots: %w", err)
	}
	if len(f.Slots) == 0 {
		return nil, fmt.Errorf("parse reminder slots: no slots defined")
	}

	s := &Schedule{byHour: make(map[int]Slot, len(f.Slots))}
	types := make(map[string]bool, len(f.Slots))
	for i := range f.Slots {
		slot := f.Slots[i]
		if err := slot.Validate(); err != nil {
			return nil, fmt.Errorf("reminder slot %d: %w", i, err)
		}
		if _, dup := s.byHour[slot.Hour]; dup {
			return nil, fmt.Errorf("reminder slot %d: hour %d listed twice", i, slot.Hour)
		}
		if types[slot.Type] {
			return nil, fmt.Errorf("reminder slot %d: type %q listed twice", i, slot.Type)
		}
		types[slot.Type] = true
		s.byHour[slot.Hour] = slot
		s.slots = append(s.slots, slot)
	}
	sort.Slice(s.slots, func(i, j int) bool { return s.slots[i].Hour < s.slots[j].Hour })
	return s, nil
}

// DefaultSchedule returns the built-in table: 9, 12, 15, 18, 20 and 21.
func DefaultSchedule() *Schedule {
	s, err := ParseSchedule(defaultSlots)
	if err != nil {
		panic(err)
	}
	return s
}

// LoadSchedule reads a slot table from path, or returns the default table
// when path is empty.
func LoadSchedule(path string) (*Schedule, error) {
	if path == "" {
		return DefaultSchedule(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reminder slots: %w", err)
	}
	return ParseSchedule(data)
}

// Slots returns the table in ascending hour order.
func (s *Schedule) Slots() []Slot {
	return append([]Slot(nil), s.slots...)
}

// Classify returns the slot configured for exactly hour.
func (s *Schedule) Classify(hour int) (Slot, bool) {
	slot, ok := s.byHour[hour]
	return slot, ok
}

// Level orders urgencies from lowest to highest.
type Level int

const (
	LevelLowest Level = iota
	LevelLowMedium
	LevelMedium
	LevelHigh
	LevelHighest
)

func (l Level) String() string {
	switch l {
	case LevelLowMedium:
		return "low-medium"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelHighest:
		return "highest"
	default:
		return "lowest"
	}
}

// Urgency describes how pressing a reminder at a given hour is.
type Urgency struct {
	Level Level
	Label string
	Icon  string
	// Note is appended to the slot message in the evening.
	Note string
}

// Urgency grades hour on a fixed staircase. It does not depend on the slot
// table and is defined for every hour.
func (s *Schedule) Urgency(hour int) Urgency {
	return UrgencyAt(hour)
}

// UrgencyAt is Schedule.Urgency without a schedule.
func UrgencyAt(hour int) Urgency {
	switch {
	case hour >= 21:
		return Urgency{Level: LevelHighest, Label: "URGENT", Icon: "🚨", Note: "The day is almost over!"}
	case hour >= 18:
		return Urgency{Level: LevelHigh, Label: "Important", Icon: "⏰", Note: "Evening is a great time to wrap up tasks."}
	case hour >= 15:
		return Urgency{Level: LevelMedium, Label: "Reminder", Icon: "📋"}
	case hour >= 12:
		return Urgency{Level: LevelLowMedium, Label: "Friendly Reminder", Icon: "☀️"}
	default:
		return Urgency{Level: LevelLowest, Label: "Morning Reminder", Icon: "🌅"}
	}
}
