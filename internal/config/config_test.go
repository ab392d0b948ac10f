package config

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/choreweek/internal/apperr"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(envOf(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "choreweek.db" || cfg.HTTP.Port != 8080 || cfg.Household.DefaultID != "demo-household" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.HTTP.BaseURL != "http://localhost:8080" {
		t.Errorf("base url = %q", cfg.HTTP.BaseURL)
	}
	if cfg.Reminder.HouseholdTimeout != 30*time.Second || cfg.Reminder.Concurrency != 1 {
		t.Errorf("reminder = %+v", cfg.Reminder)
	}
	if cfg.Reminder.Location == nil {
		t.Error("location should be resolved")
	}
	if got := cfg.BatchHouseholds(); len(got) != 1 || got[0] != "demo-household" {
		t.Errorf("batch = %v", got)
	}
	if cfg.Proof.MaxBytes != 1<<20 {
		t.Errorf("max proof bytes = %d", cfg.Proof.MaxBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(envOf(map[string]string{
		"CHOREWEEK_PORT":                 "9090",
		"CHOREWEEK_HOUSEHOLD_ID":         ` "walnut-6" `,
		"CHOREWEEK_HOUSEHOLD_IDS":        "a, 'b' ,,c",
		"CHOREWEEK_TZ":                   "UTC",
		"CHOREWEEK_HOUSEHOLD_TIMEOUT":    "5s",
		"CHOREWEEK_CONCURRENCY":          "4",
		"CHOREWEEK_NOW":                  "2025-08-18T09:15:00-04:00",
		"CHOREWEEK_BASE_URL":             "https://chores.example.com/",
		"CHOREWEEK_DEFAULT_NOTIFY_EMAIL": "house@example.com",
		"CHOREWEEK_LOG_FORMAT":           "JSON",
		"CHOREWEEK_SCHEDULER":            "true",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.HTTP.Address() != ":9090" {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Household.DefaultID != "walnut-6" {
		t.Errorf("default id = %q, want sanitised", cfg.Household.DefaultID)
	}
	if got := cfg.BatchHouseholds(); len(got) != 3 || got[1] != "'b'" {
		t.Errorf("batch = %q, want raw ids for per-household sanitising", got)
	}
	if cfg.Reminder.HouseholdTimeout != 5*time.Second || cfg.Reminder.Concurrency != 4 || !cfg.Reminder.InProcess {
		t.Errorf("reminder = %+v", cfg.Reminder)
	}
	want := time.Date(2025, time.August, 18, 13, 15, 0, 0, time.UTC)
	if !cfg.Now().Equal(want) {
		t.Errorf("now = %s, want %s", cfg.Now(), want)
	}
	if cfg.HTTP.BaseURL != "https://chores.example.com" {
		t.Errorf("base url = %q", cfg.HTTP.BaseURL)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"bad port":          {"CHOREWEEK_PORT": "eighty"},
		"port out of range": {"CHOREWEEK_PORT": "70000"},
		"bad timeout":       {"CHOREWEEK_HOUSEHOLD_TIMEOUT": "soon"},
		"short timeout":     {"CHOREWEEK_HOUSEHOLD_TIMEOUT": "10ms"},
		"zero concurrency":  {"CHOREWEEK_CONCURRENCY": "0"},
		"bad now":           {"CHOREWEEK_NOW": "yesterday"},
		"bad zone":          {"CHOREWEEK_TZ": "Mars/Olympus"},
		"bad email":         {"CHOREWEEK_DEFAULT_NOTIFY_EMAIL": "house"},
		"bad household":     {"CHOREWEEK_HOUSEHOLD_ID": `""`},
		"bad log level":     {"CHOREWEEK_LOG_LEVEL": "loud"},
		"partial s3":        {"CHOREWEEK_S3_BUCKET": "proofs"},
		"bad scheduler":     {"CHOREWEEK_SCHEDULER": "sometimes"},
		"bad retention":     {"CHOREWEEK_BACKUP_RETENTION": "a month"},
		"retention < 0":     {"CHOREWEEK_BACKUP_RETENTION": "-1h"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(envOf(vars))
			if !errors.Is(err, apperr.ErrConfiguration) {
				t.Errorf("err = %v, want configuration error", err)
			}
		})
	}
}

func TestRequireMail(t *testing.T) {
	cfg, _ := Load(envOf(nil))
	if err := cfg.RequireMail(); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("err = %v, want configuration error", err)
	}
	cfg.Mail.PostmarkToken = "token"
	cfg.Mail.FromEmail = "chores@example.com"
	if err := cfg.RequireMail(); err != nil {
		t.Errorf("err = %v", err)
	}
}

func TestS3Enabled(t *testing.T) {
	cfg, err := Load(envOf(map[string]string{
		"CHOREWEEK_S3_BUCKET":     "proofs",
		"CHOREWEEK_S3_ACCESS_KEY": "ak",
		"CHOREWEEK_S3_SECRET_KEY": "sk",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Proof.S3.Enabled() {
		t.Error("expected S3 enabled")
	}
	if err := cfg.RequireBackup(); err != nil {
		t.Errorf("require backup: %v", err)
	}
}

func TestBackupConfig(t *testing.T) {
	cfg, err := Load(envOf(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backup.Retention != 30*24*time.Hour || cfg.Backup.Prefix != "backups/" {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if err := cfg.RequireBackup(); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("err = %v, want configuration error without a bucket", err)
	}

	cfg, err = Load(envOf(map[string]string{
		"CHOREWEEK_BACKUP_PASSPHRASE": "walnut",
		"CHOREWEEK_BACKUP_RETENTION":  "0s",
		"CHOREWEEK_BACKUP_PREFIX":     "archive/",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backup.Passphrase != "walnut" || cfg.Backup.Retention != 0 || cfg.Backup.Prefix != "archive/" {
		t.Errorf("backup = %+v", cfg.Backup)
	}
}
