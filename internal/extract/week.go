package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickjm/staffcount/internal/table"
)

const WeekHeader = "Day"

type State int

const (
	Idle State = iota
	Waiting
	Sampling
	Advancing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Sampling:
		return "sampling"
	case Advancing:
		return "advancing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Week walks Monday..Sunday. Page change notifications on the date label
// are funnelled into a single-slot queue, so a burst of mutations for one
// transition counts as one event.
type Week struct {
	Sampler Sampler
	// Settle is slept after each change notification before sampling.
	Settle time.Duration
	// NavTimeout bounds every wait for a change notification. Zero uses
	// DefaultNavTimeout.
	NavTimeout time.Duration
	// Prime queues one event up front so the day already on screen is
	// sampled without waiting for the page to change.
	Prime bool
	// Sleep replaces the settle delay, mainly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// Export receives the finished table exactly once, on Done.
	Export func(table.Table) error
	// OnState observes every transition.
	OnState func(state State, day int)
	// Logger falls back to the sampler's logger.
	Logger *zap.Logger
}

func (w Week) Run(ctx context.Context) (table.Table, error) {
	log := w.logger()
	page := w.Sampler.Page
	sel := w.Sampler.Selectors

	w.enter(Idle, 0)
	events := make(chan struct{}, 1)
	notify := func() {
		select {
		case events <- struct{}{}:
		default:
		}
	}
	stop, err := page.Observe(sel.DateLabel, notify)
	if err != nil {
		return table.Table{}, fmt.Errorf("observe %q: %w", sel.DateLabel, err)
	}
	subscribed := true
	unsubscribe := func() {
		if !subscribed {
			return
		}
		subscribed = false
		if err := stop(); err != nil {
			log.Warn("unsubscribe failed", zap.Error(err))
		}
	}
	defer unsubscribe()

	if w.Prime {
		notify()
	}

	t := table.New(WeekHeader)
	for day := 0; day < len(DayNames); {
		name := DayNames[day]
		w.enter(Waiting, day)
		if err := w.await(ctx, events); err != nil {
			return table.Table{}, fmt.Errorf("waiting for %s: %w", name, err)
		}
		if err := w.sleep(ctx, w.Settle); err != nil {
			return table.Table{}, err
		}
		drain(events)

		w.enter(Sampling, day)
		counts, err := w.Sampler.Sample(ctx)
		if err != nil {
			return table.Table{}, fmt.Errorf("sampling %s: %w", name, err)
		}
		if err := t.Append(name, counts); err != nil {
			return table.Table{}, err
		}
		log.Info("day sampled", zap.String("day", name), zap.Ints("counts", counts))

		w.enter(Advancing, day)
		day++
		if day == len(DayNames) {
			unsubscribe()
			break
		}
		// anything queued now came from our own slot clicks
		drain(events)
		if err := page.Click(sel.NextButton); err != nil {
			return table.Table{}, fmt.Errorf("next day after %s: %w", name, err)
		}
	}

	w.enter(Done, len(DayNames))
	if w.Export != nil {
		if err := w.Export(t); err != nil {
			return table.Table{}, err
		}
	}
	return t, nil
}

func (w Week) enter(state State, day int) {
	w.logger().Debug("week state", zap.Stringer("state", state), zap.Int("day", day))
	if w.OnState != nil {
		w.OnState(state, day)
	}
}

func (w Week) logger() *zap.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return w.Sampler.logger()
}

func (w Week) await(ctx context.Context, events <-chan struct{}) error {
	timeout := w.NavTimeout
	if timeout <= 0 {
		timeout = DefaultNavTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-events:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: %q did not change within %s", ErrNavigationTimeout, w.Sampler.Selectors.DateLabel, timeout)
	}
}

func (w Week) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleep != nil {
		return w.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(events <-chan struct{}) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}
