// Package clock provides the shared simulation clock.
//
// A Clock holds one logical "now" and a list of step granularities
// (e.g. hourly narrative steps and ten-minute tactical steps). Every entity
// in a simulation reads time through the same Clock, so memory timestamps
// stay ordered no matter which granularity triggered an advance.
package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInvalidGranularity is returned when Advance is called with an index
	// outside the configured step sizes.
	ErrInvalidGranularity = errors.New("invalid granularity")

	// ErrInvalidStepSize is returned when a clock is constructed without step
	// sizes or with a non-positive step.
	ErrInvalidStepSize = errors.New("invalid step size")
)

// Interval is a half-open window of simulated time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// String renders the interval for logs and prompts.
func (i Interval) String() string {
	return fmt.Sprintf("%s - %s", i.Start.Format(time.DateTime), i.End.Format(time.DateTime))
}

// Clock is a multi-interval clock. It is safe for concurrent use; advances
// are serialized.
type Clock struct {
	mu    sync.RWMutex
	now   time.Time
	steps []time.Duration
}

// New creates a clock starting at start with the given step sizes, coarsest
// first by convention. At least one step is required and every step must be
// positive.
func New(start time.Time, steps ...time.Duration) (*Clock, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: at least one step size is required", ErrInvalidStepSize)
	}
	for i, s := range steps {
		if s <= 0 {
			return nil, fmt.Errorf("%w: step %d is %s", ErrInvalidStepSize, i, s)
		}
	}

	return &Clock{
		now:   start,
		steps: append([]time.Duration(nil), steps...),
	}, nil
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by the step at index and returns the new time.
func (c *Clock) Advance(index int) (time.Time, error) {
	if index < 0 || index >= len(c.steps) {
		return time.Time{}, fmt.Errorf("%w: index %d, have %d step sizes", ErrInvalidGranularity, index, len(c.steps))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.steps[index])
	return c.now, nil
}

// StepSize returns the duration of the step at index.
func (c *Clock) StepSize(index int) (time.Duration, error) {
	if index < 0 || index >= len(c.steps) {
		return 0, fmt.Errorf("%w: index %d, have %d step sizes", ErrInvalidGranularity, index, len(c.steps))
	}
	return c.steps[index], nil
}

// StepSizes returns a copy of the configured step sizes.
func (c *Clock) StepSizes() []time.Duration {
	return append([]time.Duration(nil), c.steps...)
}

// CurrentInterval returns [now, now+step) for the step at index.
func (c *Clock) CurrentInterval(index int) (Interval, error) {
	step, err := c.StepSize(index)
	if err != nil {
		return Interval{}, err
	}
	now := c.Now()
	return Interval{Start: now, End: now.Add(step)}, nil
}
