package model

import "time"

// Household document field names.
const (
	FieldMembers   = "members"
	FieldChores    = "chores"
	FieldEmails    = "emails"
	FieldCreatedAt = "createdAt"
)

// Household is the shared configuration of one rotation. Members and Emails
// are addressed by weekday index (Monday=0): index i is whoever is responsible
// on weekday i, not a stable person.
type Household struct {
	ID        string     `json:"id"`
	Members   []string   `json:"members"`
	Chores    []string   `json:"chores"`
	Emails    []string   `json:"emails"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// HouseholdFields records which fields of a remote payload passed the shape
// check and may overwrite local state.
type HouseholdFields struct {
	Members bool
	Chores  bool
	Emails  bool
}

// DecodeHousehold reads a household document. Fields that are missing or not
// arrays of strings are left empty and reported as absent.
func DecodeHousehold(id string, doc map[string]any) (Household, HouseholdFields) {
	h := Household{ID: id}
	var f HouseholdFields
	if doc == nil {
		return h, f
	}
	h.Members, f.Members = stringList(doc[FieldMembers])
	h.Chores, f.Chores = stringList(doc[FieldChores])
	h.Emails, f.Emails = stringList(doc[FieldEmails])
	h.CreatedAt = timeValue(doc[FieldCreatedAt])
	return h, f
}

// Document encodes the household for storage.
func (h Household) Document() map[string]any {
	doc := map[string]any{
		FieldMembers: nonNil(h.Members),
		FieldChores:  nonNil(h.Chores),
		FieldEmails:  nonNil(h.Emails),
	}
	if h.CreatedAt != nil {
		doc[FieldCreatedAt] = h.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return doc
}

// Clone returns a copy that shares no slices with h.
func (h Household) Clone() Household {
	c := h
	c.Members = append([]string(nil), h.Members...)
	c.Chores = append([]string(nil), h.Chores...)
	c.Emails = append([]string(nil), h.Emails...)
	return c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
