// Package scheduler holds the single periodic task that purges inference
// history on a cron trigger.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultExpression fires the purge daily at noon.
const DefaultExpression = "0 0 12 * * *"

// ParseExpression checks a six-field (seconds-first) cron expression.
func ParseExpression(expr string) (cron.Schedule, error) {
	return cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	).Parse(expr)
}

// Purger deletes all inference history.
type Purger interface {
	PurgeHistory(ctx context.Context) error
}

// Cleaner runs at most one active cron-triggered purge task. Reconfigure
// swaps the schedule under a lock so overlapping reconfigurations can never
// leave two tasks registered.
type Cleaner struct {
	purger  Purger
	timeout time.Duration

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	expr  string
}

// NewCleaner creates a Cleaner. The cron runner is not started until Start.
func NewCleaner(purger Purger, timeout time.Duration) *Cleaner {
	return &Cleaner{
		purger:  purger,
		timeout: timeout,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start registers the default schedule and begins triggering.
func (c *Cleaner) Start() error {
	if err := c.Reconfigure(DefaultExpression); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Reconfigure cancels the active schedule, if any, and installs expr in its
// place. An in-flight purge run is allowed to finish.
func (c *Cleaner) Reconfigure(expr string) error {
	if _, err := ParseExpression(expr); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry != 0 {
		c.cron.Remove(c.entry)
		c.entry = 0
	}
	entry, err := c.cron.AddFunc(expr, c.runPurge)
	if err != nil {
		return err
	}
	c.entry = entry
	c.expr = expr

	slog.Info("history purge schedule updated", "cron", expr)
	return nil
}

// Expression returns the currently active cron expression.
func (c *Cleaner) Expression() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expr
}

// Stop cancels the active schedule and waits for an in-flight run.
func (c *Cleaner) Stop() {
	<-c.cron.Stop().Done()
}

func (c *Cleaner) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.purger.PurgeHistory(ctx); err != nil {
		slog.Error("history purge failed", "error", err)
		return
	}
	slog.Info("history purged")
}
