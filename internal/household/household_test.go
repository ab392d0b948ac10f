package household

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/choreweek/internal/apperr"
	"github.com/dukerupert/choreweek/internal/database"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/model"
)

func setupRepo(t *testing.T) (*Repository, *docstore.SQLite) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	docs := docstore.NewSQLite(db)
	return NewRepository(docs), docs
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"demo-household", "demo-household"},
		{"  demo  ", "demo"},
		{`"demo"`, "demo"},
		{`'demo'`, "demo"},
		{"`demo`", "demo"},
		{` "'demo'" `, "demo"},
		{`"demo`, "demo"},
	}
	for _, tt := range tests {
		got, err := SanitizeID(tt.in)
		if err != nil {
			t.Errorf("SanitizeID(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "  ", `""`, "a/b", ".."} {
		if _, err := SanitizeID(bad); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("SanitizeID(%q) err = %v, want ErrInvalid", bad, err)
		}
	}
}

func TestEnsureCreatesDefaults(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	h, err := repo.Ensure(ctx, "demo", Defaults())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(h.Members) != 7 || h.Members[0] != "Abhay" {
		t.Errorf("members = %v", h.Members)
	}
	if len(h.Chores) != 1 || h.Chores[0] != "Kitchen" {
		t.Errorf("chores = %v", h.Chores)
	}
	if len(h.Emails) != 0 {
		t.Errorf("emails = %v, want empty", h.Emails)
	}
	if h.CreatedAt == nil {
		t.Error("createdAt should be set")
	}
}

func TestEnsureNeverClobbers(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	repo.Ensure(ctx, "demo", Defaults())
	if err := repo.SetMembers(ctx, "demo", []string{"A", "B"}); err != nil {
		t.Fatalf("set members: %v", err)
	}
	h, err := repo.Ensure(ctx, "demo", Defaults())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(h.Members) != 2 || h.Members[0] != "A" {
		t.Errorf("members = %v, want [A B]", h.Members)
	}
}

func TestLoadAbsent(t *testing.T) {
	repo, _ := setupRepo(t)
	h, err := repo.Load(context.Background(), "nobody")
	if err != nil || h != nil {
		t.Errorf("load absent = %v, %v; want nil, nil", h, err)
	}
}

func TestSetFieldsMergeOnly(t *testing.T) {
	repo, docs := setupRepo(t)
	ctx := context.Background()
	repo.Ensure(ctx, "demo", Defaults())

	repo.SetChores(ctx, "demo", []string{"Kitchen", "Trash"})
	repo.SetEmails(ctx, "demo", []string{"a@example.com"})

	doc, _ := docs.Get(ctx, "households/demo")
	h, f := model.DecodeHousehold("demo", doc)
	if !f.Members || len(h.Members) != 7 {
		t.Errorf("members changed: %v", h.Members)
	}
	if len(h.Chores) != 2 || len(h.Emails) != 1 {
		t.Errorf("chores = %v, emails = %v", h.Chores, h.Emails)
	}
	if _, ok := doc[model.FieldCreatedAt]; !ok {
		t.Error("createdAt lost by field merge")
	}
}

func TestValidateEmail(t *testing.T) {
	for _, ok := range []string{"", "a@example.com", "first.last+tag@mail.example.org"} {
		if err := ValidateEmail(ok); err != nil {
			t.Errorf("ValidateEmail(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"nope", "a@b", "a b@example.com", "@example.com"} {
		if err := ValidateEmail(bad); err == nil {
			t.Errorf("ValidateEmail(%q) should fail", bad)
		}
	}
}

func TestSetMemberAndEmailByIndex(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	repo.Ensure(ctx, "demo", Defaults())

	if err := repo.SetMember(ctx, "demo", 2, "  Priya "); err != nil {
		t.Fatalf("set member: %v", err)
	}
	if err := repo.SetEmail(ctx, "demo", 3, "d@example.com"); err != nil {
		t.Fatalf("set email: %v", err)
	}

	h, _ := repo.Load(ctx, "demo")
	if h.Members[2] != "Priya" || len(h.Members) != 7 {
		t.Errorf("members = %v", h.Members)
	}
	want := []string{"", "", "", "d@example.com"}
	if len(h.Emails) != len(want) {
		t.Fatalf("emails = %q, want %q", h.Emails, want)
	}
	for i := range want {
		if h.Emails[i] != want[i] {
			t.Errorf("emails[%d] = %q, want %q", i, h.Emails[i], want[i])
		}
	}
}

func TestSetIndexErrors(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	if err := repo.SetMember(ctx, "ghost", 0, "A"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("absent household err = %v, want ErrNotFound", err)
	}
	repo.Ensure(ctx, "demo", Defaults())
	if err := repo.SetMember(ctx, "demo", 7, "A"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("index 7 err = %v, want ErrInvalid", err)
	}
	if err := repo.SetEmail(ctx, "demo", 0, "not-an-email"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("bad email err = %v, want ErrInvalid", err)
	}
}
