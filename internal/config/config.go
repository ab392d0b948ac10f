// Package config reads choreweek settings from CHOREWEEK_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dukerupert/choreweek/internal/apperr"
	"github.com/dukerupert/choreweek/internal/chore"
	"github.com/dukerupert/choreweek/internal/household"
	"github.com/dukerupert/choreweek/internal/proof"
)

const prefix = "CHOREWEEK_"

// Config represents the application configuration.
type Config struct {
	Log       LogConfig
	DBPath    string
	HTTP      HTTPConfig
	Household HouseholdConfig
	Mail      MailConfig
	Reminder  ReminderConfig
	Proof     ProofConfig
	Backup    BackupConfig
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&c.Format, validation.In("text", "json")),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port    int
	BaseURL string
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// HouseholdConfig names the households a process works on.
type HouseholdConfig struct {
	DefaultID string
	BatchIDs  []string
}

// Validate validates the household configuration.
func (c *HouseholdConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultID, validation.Required, validation.By(validID)),
	)
}

// MailConfig holds Postmark credentials and the recipient fallback.
type MailConfig struct {
	PostmarkToken string
	FromEmail     string
	DefaultNotify string
}

// Validate checks address syntax only. Credentials are required by
// RequireMail.
func (c *MailConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FromEmail, validation.By(validEmail)),
		validation.Field(&c.DefaultNotify, validation.By(validEmail)),
	)
}

// ReminderConfig controls the reminder batch.
type ReminderConfig struct {
	TZ               string
	Location         *time.Location
	SlotsFile        string
	HouseholdTimeout time.Duration
	Concurrency      int
	Now              *time.Time
	InProcess        bool
}

// Validate validates the reminder configuration.
func (c *ReminderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TZ, validation.Required),
		validation.Field(&c.HouseholdTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// ProofConfig controls proof uploads.
type ProofConfig struct {
	MaxBytes int64
	S3       proof.S3Config
}

// Validate validates the proof configuration.
func (c *ProofConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
	); err != nil {
		return err
	}
	s3 := c.S3
	if s3.Endpoint == "" && s3.Bucket == "" && s3.AccessKey == "" && s3.SecretKey == "" {
		return nil
	}
	if !s3.Enabled() {
		return errors.New("s3: bucket, access key and secret key are all required once any S3 setting is given")
	}
	return nil
}

// BackupConfig controls database archives. Archives share the proof bucket.
type BackupConfig struct {
	Passphrase string
	Retention  time.Duration
	Prefix     string
}

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Retention, validation.Min(time.Duration(0))),
		validation.Field(&c.Prefix, validation.Required),
	)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db path is required")
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.Household.Validate(); err != nil {
		return fmt.Errorf("household: %w", err)
	}
	if err := c.Mail.Validate(); err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	if err := c.Reminder.Validate(); err != nil {
		return fmt.Errorf("reminder: %w", err)
	}
	if err := c.Proof.Validate(); err != nil {
		return fmt.Errorf("proof: %w", err)
	}
	if err := c.Backup.Validate(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}

// RequireMail fails when reminders cannot be sent.
func (c *Config) RequireMail() error {
	var missing []string
	if c.Mail.PostmarkToken == "" {
		missing = append(missing, prefix+"POSTMARK_TOKEN")
	}
	if c.Mail.FromEmail == "" {
		missing = append(missing, prefix+"FROM_EMAIL")
	}
	if len(missing) > 0 {
		return apperr.Configuration("mail", fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	return nil
}

// RequireBackup fails when there is no bucket to archive to.
func (c *Config) RequireBackup() error {
	if !c.Proof.S3.Enabled() {
		return apperr.Configuration("backup", fmt.Errorf("missing %sS3_BUCKET, %sS3_ACCESS_KEY or %sS3_SECRET_KEY", prefix, prefix, prefix))
	}
	return nil
}

// BatchHouseholds returns the households a reminder run covers: the explicit
// list when given, otherwise the default household.
func (c *Config) BatchHouseholds() []string {
	if len(c.Household.BatchIDs) > 0 {
		return append([]string(nil), c.Household.BatchIDs...)
	}
	return []string{c.Household.DefaultID}
}

// NewDefaultConfig returns a new Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		DBPath:    "choreweek.db",
		HTTP:      HTTPConfig{Port: 8080},
		Household: HouseholdConfig{DefaultID: "demo-household"},
		Reminder: ReminderConfig{
			TZ:               "America/New_York",
			HouseholdTimeout: 30 * time.Second,
			Concurrency:      1,
		},
		Proof:  ProofConfig{MaxBytes: chore.DefaultMaxProofBytes},
		Backup: BackupConfig{Retention: 30 * 24 * time.Hour, Prefix: "backups/"},
	}
}

// Load reads the environment through getenv on top of the defaults and
// validates the result.
func Load(getenv func(string) string) (*Config, error) {
	cfg := NewDefaultConfig()
	env := func(name string) string {
		return strings.TrimSpace(getenv(prefix + name))
	}
	var errs []error
	set := func(name string, apply func(string) error) {
		v := env(name)
		if v == "" {
			return
		}
		if err := apply(v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", prefix, name, err))
		}
	}
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}

	set("LOG_LEVEL", func(v string) error { cfg.Log.Level = strings.ToLower(v); return nil })
	set("LOG_FORMAT", func(v string) error { cfg.Log.Format = strings.ToLower(v); return nil })
	set("DB_PATH", str(&cfg.DBPath))
	set("PORT", func(v string) error {
		n, err := strconv.Atoi(v)
		cfg.HTTP.Port = n
		return err
	})
	set("BASE_URL", str(&cfg.HTTP.BaseURL))
	set("HOUSEHOLD_ID", func(v string) error {
		id, err := household.SanitizeID(v)
		cfg.Household.DefaultID = id
		return err
	})
	set("HOUSEHOLD_IDS", func(v string) error {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Household.BatchIDs = append(cfg.Household.BatchIDs, id)
			}
		}
		return nil
	})
	set("DEFAULT_NOTIFY_EMAIL", str(&cfg.Mail.DefaultNotify))
	set("POSTMARK_TOKEN", str(&cfg.Mail.PostmarkToken))
	set("FROM_EMAIL", str(&cfg.Mail.FromEmail))
	set("TZ", str(&cfg.Reminder.TZ))
	set("REMINDER_SLOTS_FILE", str(&cfg.Reminder.SlotsFile))
	set("HOUSEHOLD_TIMEOUT", func(v string) error {
		d, err := time.ParseDuration(v)
		cfg.Reminder.HouseholdTimeout = d
		return err
	})
	set("CONCURRENCY", func(v string) error {
		n, err := strconv.Atoi(v)
		cfg.Reminder.Concurrency = n
		return err
	})
	set("NOW", func(v string) error {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return err
		}
		cfg.Reminder.Now = &t
		return nil
	})
	set("SCHEDULER", func(v string) error {
		b, err := strconv.ParseBool(v)
		cfg.Reminder.InProcess = b
		return err
	})
	set("MAX_PROOF_BYTES", func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		cfg.Proof.MaxBytes = n
		return err
	})
	set("S3_ENDPOINT", str(&cfg.Proof.S3.Endpoint))
	set("S3_BUCKET", str(&cfg.Proof.S3.Bucket))
	set("S3_REGION", str(&cfg.Proof.S3.Region))
	set("S3_ACCESS_KEY", str(&cfg.Proof.S3.AccessKey))
	set("S3_SECRET_KEY", str(&cfg.Proof.S3.SecretKey))
	set("BACKUP_PASSPHRASE", str(&cfg.Backup.Passphrase))
	set("BACKUP_PREFIX", str(&cfg.Backup.Prefix))
	set("BACKUP_RETENTION", func(v string) error {
		d, err := time.ParseDuration(v)
		cfg.Backup.Retention = d
		return err
	})

	if len(errs) > 0 {
		return nil, apperr.Configuration("load config", errors.Join(errs...))
	}

	if cfg.HTTP.BaseURL == "" {
		cfg.HTTP.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.HTTP.Port)
	}
	cfg.HTTP.BaseURL = strings.TrimRight(cfg.HTTP.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, apperr.Configuration("validate config", err)
	}
	loc, err := time.LoadLocation(cfg.Reminder.TZ)
	if err != nil {
		return nil, apperr.Configuration("validate config", fmt.Errorf("reminder: tz: %w", err))
	}
	cfg.Reminder.Location = loc
	return cfg, nil
}

// Now returns the configured invocation time, or the clock's.
func (c *Config) Now() time.Time {
	if c.Reminder.Now != nil {
		return *c.Reminder.Now
	}
	return time.Now()
}

func validID(v interface{}) error {
	s, _ := v.(string)
	_, err := household.SanitizeID(s)
	return err
}

func validEmail(v interface{}) error {
	s, _ := v.(string)
	return household.ValidateEmail(s)
}
