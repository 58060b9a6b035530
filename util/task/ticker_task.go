package task

import (
	"time"

	"github.com/benbjohnson/clock"
)

type Runner interface {
	Run() error
}

type TickerTask struct {
	interval       time.Duration
	runner         Runner
	skipInitialRun bool
	clock          clock.Clock
	done           chan struct{}
}

func NewTickerTask(interval time.Duration, runner Runner) *TickerTask {
	return NewTickerTaskWithOptions(Options{
		Interval: interval,
		Runner:   runner,
	})
}

type Options struct {
	Interval       time.Duration
	Runner         Runner
	SkipInitialRun bool
	Clock          clock.Clock
}

func NewTickerTaskWithOptions(opt Options) *TickerTask {
	c := opt.Clock
	if c == nil {
		c = clock.New()
	}

	return &TickerTask{
		interval:       opt.Interval,
		runner:         opt.Runner,
		skipInitialRun: opt.SkipInitialRun,
		clock:          c,
		done:           make(chan struct{}),
	}
}

// Start runs the task immediately and then schedules the task to run periodically
// if a positive interval has been specified.
func (t *TickerTask) Start() {
	if !t.skipInitialRun {
		t.runner.Run()
	}

	if t.interval > 0 {
		go t.runRecurring()
	}
}

// Stop stops the periodic task but the task runner maintains state
func (t *TickerTask) Stop() {
	close(t.done)
}

// Done exports readonly done channel
func (t *TickerTask) Done() <-chan struct{} {
	return t.done
}

func (t *TickerTask) runRecurring() {
	ticker := t.clock.Ticker(t.interval)

	for {
		select {
		case <-ticker.C:
			t.runner.Run()
		case <-t.done:
			ticker.Stop()
			return
		}
	}
}
