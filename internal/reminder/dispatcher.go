package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/choreweek/internal/apperr"
	"github.com/dukerupert/choreweek/internal/chore"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/email"
	"github.com/dukerupert/choreweek/internal/household"
	"github.com/dukerupert/choreweek/internal/model"
	"github.com/dukerupert/choreweek/internal/rotation"
)

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// Outcome is the per-household result of a run.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeErrored   Outcome = "errored"
)

// Result describes what happened to one household.
type Result struct {
	Household string   `json:"household"`
	Outcome   Outcome  `json:"outcome"`
	Reason    string   `json:"reason,omitempty"`
	Err       error    `json:"-"`
	Sent      bool     `json:"sent"`
	Recipient string   `json:"recipient,omitempty"`
	Assignee  string   `json:"assignee,omitempty"`
	Pending   []string `json:"pending,omitempty"`
}

// Report summarises one run. Slot is nil when the hour is not strategic and
// nothing was attempted.
type Report struct {
	At      time.Time `json:"at"`
	Slot    *Slot     `json:"slot,omitempty"`
	Week    string    `json:"week,omitempty"`
	Day     int       `json:"day"`
	Results []Result  `json:"results"`
}

// Count returns how many households ended with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Dispatcher runs one reminder pass over a batch of households.
type Dispatcher struct {
	docs       docstore.Store
	households *household.Repository
	chores     *chore.Store
	mailer     Mailer
	schedule   *Schedule
	logger     *slog.Logger

	location         *time.Location
	defaultRecipient string
	baseURL          string
	timeout          time.Duration
	concurrency      int
	recordRetries    uint64
	recordBackoff    time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLocation sets the zone strategic hours are read in.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.location = loc
		}
	}
}

// WithDefaultRecipient sets the address used when the weekday has none.
func WithDefaultRecipient(addr string) Option {
	return func(d *Dispatcher) { d.defaultRecipient = strings.TrimSpace(addr) }
}

// WithBaseURL adds a link to the board in every reminder.
func WithBaseURL(url string) Option {
	return func(d *Dispatcher) { d.baseURL = strings.TrimRight(url, "/") }
}

// WithHouseholdTimeout bounds the work done for a single household.
func WithHouseholdTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithConcurrency sets how many households are processed at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithRecordRetry sets how the dedupe record write is retried after a send.
func WithRecordRetry(retries uint64, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		d.recordRetries = retries
		if backoff > 0 {
			d.recordBackoff = backoff
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher reading households and weeks from docs.
func NewDispatcher(docs docstore.Store, mailer Mailer, schedule *Schedule, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		docs:          docs,
		households:    household.NewRepository(docs),
		chores:        chore.NewStore(docs),
		mailer:        mailer,
		schedule:      schedule,
		logger:        slog.Default(),
		location:      time.UTC,
		timeout:       30 * time.Second,
		concurrency:   1,
		recordRetries: 3,
		recordBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Location returns the zone strategic hours are read in.
func (d *Dispatcher) Location() *time.Location {
	return d.location
}

type configurable interface {
	Configured() bool
}

// Run sends due reminders for now. It only fails for configuration
// problems; per-household failures are reported in the Report.
func (d *Dispatcher) Run(ctx context.Context, now time.Time, householdIDs []string) (*Report, error) {
	if d.mailer == nil {
		return nil, apperr.Configuration("run reminders", errors.New("no mailer"))
	}
	if c, ok := d.mailer.(configurable); ok && !c.Configured() {
		return nil, apperr.Configuration("run reminders", email.ErrNotConfigured)
	}
	if d.schedule == nil {
		return nil, apperr.Configuration("run reminders", errors.New("no reminder schedule"))
	}
	if len(householdIDs) == 0 {
		return nil, apperr.Configuration("run reminders", errors.New("no households to process"))
	}

	local := now.In(d.location)
	report := &Report{At: local, Day: rotation.DayIndex(local)}

	slot, ok := d.schedule.Classify(local.Hour())
	if !ok {
		d.logger.Info("not a strategic reminder hour", "hour", local.Hour(), "time", local.Format(time.RFC3339))
		return report, nil
	}
	report.Slot = &slot
	report.Week = rotation.WeekKey(local)
	d.logger.Info("strategic reminder hour", "type", slot.Type, "hour", slot.Hour, "week", report.Week, "day", report.Day, "households", len(householdIDs))

	report.Results = make([]Result, len(householdIDs))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, raw := range householdIDs {
		g.Go(func() error {
			report.Results[i] = d.runHousehold(ctx, raw, local, slot, report.Week, report.Day)
			return nil
		})
	}
	g.Wait()

	for _, res := range report.Results {
		attrs := []any{"household", res.Household, "outcome", res.Outcome}
		if res.Reason != "" {
			attrs = append(attrs, "reason", res.Reason)
		}
		if res.Err != nil {
			attrs = append(attrs, "error", res.Err)
		}
		if res.Outcome == OutcomeErrored {
			d.logger.Error("reminder household failed", attrs...)
			continue
		}
		d.logger.Info("reminder household done", attrs...)
	}
	d.logger.Info("reminder run complete",
		"processed", report.Count(OutcomeProcessed),
		"skipped", report.Count(OutcomeSkipped),
		"errored", report.Count(OutcomeErrored),
	)
	return report, nil
}

// runHousehold isolates one household behind a timeout. Work that ignores
// cancellation is abandoned and reported as errored.
// Abandoned work may still send its mail, so such a result can report Sent
// false for a household that was in fact reminded.
func (d *Dispatcher) runHousehold(ctx context.Context, raw string, now time.Time, slot Slot, week string, day int) Result {
	id, err := household.SanitizeID(raw)
	if err != nil {
		return Result{Household: raw, Outcome: OutcomeErrored, Reason: "invalid household id", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- d.processHousehold(ctx, id, now, slot, week, day)
	}()
	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Result{Household: id, Outcome: OutcomeErrored, Reason: "timed out", Err: fmt.Errorf("process household %s: %w", id, ctx.Err())}
	}
}

func (d *Dispatcher) processHousehold(ctx context.Context, id string, now time.Time, slot Slot, week string, day int) Result {
	res := Result{Household: id}
	skip := func(reason string) Result {
		res.Outcome, res.Reason = OutcomeSkipped, reason
		return res
	}
	fail := func(reason string, err error) Result {
		res.Outcome, res.Reason, res.Err = OutcomeErrored, reason, err
		return res
	}

	h, err := d.households.Load(ctx, id)
	if err != nil {
		return fail("load household", err)
	}
	if h == nil {
		return skip("household not found")
	}
	if len(household.CleanChores(h.Chores)) == 0 {
		return skip("no chores configured")
	}

	weekRecord, err := d.chores.LoadWeek(ctx, id, week)
	if err != nil {
		return fail("load week", err)
	}
	res.Pending = chore.PendingOn(h.Chores, weekRecord, day)
	if len(res.Pending) == 0 {
		return skip("nothing pending")
	}

	dedupeKey := DedupeKey(now, slot)
	recordPath, err := RecordPath(id, dedupeKey)
	if err != nil {
		return fail("dedupe key", err)
	}
	existing, err := d.docs.Get(ctx, recordPath)
	if err != nil {
		return fail("check dedupe record", apperr.Storage("check dedupe record", err))
	}
	if existing != nil {
		return skip("already sent")
	}

	res.Assignee = Assignee(h.Members, day)
	res.Recipient = Recipient(h.Emails, day, d.defaultRecipient)
	if res.Recipient == "" {
		res.Outcome, res.Reason = OutcomeSkipped, "no recipient"
		res.Err = &apperr.OpError{Kind: apperr.ErrNoRecipient, Op: "resolve recipient"}
		return res
	}

	content := Content{
		Household: id,
		Week:      week,
		Assignee:  res.Assignee,
		Slot:      slot,
		Urgency:   d.schedule.Urgency(now.Hour()),
		Chores:    res.Pending,
		At:        now,
	}
	if d.baseURL != "" {
		content.Link = d.baseURL + "/api/households/" + id + "/weeks/" + week
	}
	text, html, err := content.Render()
	if err != nil {
		return fail("render", err)
	}
	msg := email.Message{
		To:       res.Recipient,
		Subject:  content.Subject(),
		TextBody: text,
		HTMLBody: html,
		Tag:      "reminder-" + slot.Type,
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return fail("send", err)
	}
	res.Sent = true

	record := model.ReminderRecord{
		DedupeKey:    dedupeKey,
		ReminderType: slot.Type,
		SentAt:       now,
		WeekKey:      week,
		DayIndex:     day,
		Hour:         now.Hour(),
		Assignee:     res.Assignee,
		EmailSent:    res.Recipient,
		Chores:       res.Pending,
	}
	// The email is already out. If the record never lands the next run at
	// this slot sends it again.
	backoff := retry.WithMaxRetries(d.recordRetries, retry.NewExponential(d.recordBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := d.docs.Create(ctx, recordPath, record.Document()); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fail("record reminder", apperr.Storage("record reminder", err))
	}

	res.Outcome = OutcomeProcessed
	return res
}

// DedupeKey is "{YYYY-MM-DD}-{type}" for the local date of now.
func DedupeKey(now time.Time, slot Slot) string {
	return now.Format("2006-01-02") + "-" + slot.Type
}

// RecordPath is the document path of a reminder record.
func RecordPath(household, dedupeKey string) (string, error) {
	return docstore.Path("households", household, "reminders", dedupeKey)
}

// Assignee names the member stored for weekday day, falling back to
// "Person N" when that entry is missing or blank. Unlike the board it does
// not wrap short member lists.
func Assignee(members []string, day int) string {
	if day >= 0 && day < len(members) {
		if name := strings.TrimSpace(members[day]); name != "" {
			return name
		}
	}
	return fmt.Sprintf("Person %d", day+1)
}

// Recipient picks the weekday's address, then the default address, then the
// first non-empty address on file.
func Recipient(emails []string, day int, fallback string) string {
	if day >= 0 && day < len(emails) {
		if addr := strings.TrimSpace(emails[day]); addr != "" {
			return addr
		}
	}
	if fallback != "" {
		return fallback
	}
	for _, addr := range emails {
		if addr = strings.TrimSpace(addr); addr != "" {
			return addr
		}
	}
	return ""
}
