package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Ticker triggers the dispatcher from inside a long-running process: once per
// clock hour, on the first tick that falls in that hour.
type Ticker struct {
	mu         sync.RWMutex
	dispatcher *Dispatcher
	households []string
	interval   time.Duration
	now        func() time.Time
	logger     *slog.Logger
	lastHour   time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewTicker creates a ticker for the given households.
func NewTicker(d *Dispatcher, households []string, logger *slog.Logger) *Ticker {
	return &Ticker{
		dispatcher: d,
		households: households,
		interval:   time.Minute,
		now:        time.Now,
		logger:     logger,
	}
}

// Start begins the ticker loop.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	t.mu.RLock()
	cancel := t.cancel
	done := t.done
	t.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// tick runs the dispatcher if this clock hour has not been handled yet.
func (t *Ticker) tick(ctx context.Context) bool {
	now := t.now().In(t.dispatcher.Location())
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	if hour.Equal(t.lastHour) {
		return false
	}
	t.lastHour = hour

	if _, err := t.dispatcher.Run(ctx, now, t.households); err != nil {
		t.logger.Error("reminder run failed", "error", err)
	}
	return true
}
