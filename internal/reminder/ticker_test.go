package reminder

import (
	"context"
	"testing"
	"time"
)

func TestTickerRunsOncePerHour(t *testing.T) {
	docs := setupDocs(t)
	mailer := &fakeMailer{}
	d := newTestDispatcher(docs, mailer)
	seedHousehold(t, docs, "walnut-6", sevenMembers())

	now := monday9
	tk := NewTicker(d, []string{"walnut-6"}, d.logger)
	tk.now = func() time.Time { return now }
	ctx := context.Background()

	if !tk.tick(ctx) {
		t.Fatal("first tick in an hour should run")
	}
	now = now.Add(20 * time.Minute)
	if tk.tick(ctx) {
		t.Error("second tick in the same hour should not run")
	}
	now = now.Add(time.Hour)
	if !tk.tick(ctx) {
		t.Error("tick in a new hour should run")
	}
	if mailer.count() != 1 {
		t.Errorf("sent = %d, want 1 (10:00 is not strategic)", mailer.count())
	}
}

func TestTickerStartStop(t *testing.T) {
	docs := setupDocs(t)
	d := newTestDispatcher(docs, &fakeMailer{})
	tk := NewTicker(d, []string{"walnut-6"}, d.logger)
	tk.now = func() time.Time { return monday9 }

	tk.Start(context.Background())
	tk.Stop()
}
