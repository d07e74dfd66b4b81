package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/metrics"
)

// cleanupTimeout bounds undo and cleanup work that runs after the caller's
// context may already be done.
const cleanupTimeout = 30 * time.Second

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// Compensator records the undo action of every completed step of a
// multi-step write and runs them in reverse when a later step fails.
// It is not safe for concurrent use.
type Compensator struct {
	steps   []compensation
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCompensator creates an empty compensation list.
func NewCompensator(m *metrics.Metrics, logger zerolog.Logger) *Compensator {
	return &Compensator{
		metrics: m,
		logger:  logger,
	}
}

// Add records the undo action for a step that has just succeeded.
func (c *Compensator) Add(name string, undo func(ctx context.Context) error) {
	c.steps = append(c.steps, compensation{name: name, undo: undo})
}

// Len returns the number of recorded steps.
func (c *Compensator) Len() int {
	return len(c.steps)
}

// Rollback runs every undo action in reverse order and clears the list.
// Undo failures are logged and counted, never returned: the caller reports
// its original error. The undo actions run even if ctx is cancelled.
func (c *Compensator) Rollback(ctx context.Context) (failed int) {
	if len(c.steps) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		err := step.undo(ctx)
		c.metrics.ObserveCompensation(err)
		if err != nil {
			failed++
			c.logger.Error().Err(err).Str("step", step.name).Msg("compensation failed")
			continue
		}
		c.logger.Debug().Str("step", step.name).Msg("compensation applied")
	}

	c.logger.Warn().
		Int("steps", len(c.steps)).
		Int("failed", failed).
		Msg("rolled back partial write")

	c.steps = nil
	return failed
}

// Discard forgets every recorded step after the operation committed.
func (c *Compensator) Discard() {
	c.steps = nil
}
