package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/patrickjm/staffcount/internal/browser"
	"github.com/patrickjm/staffcount/internal/table"
)

func weekDays() [][]int {
	days := make([][]int, 7)
	for d := range days {
		days[d] = make([]int, 24)
		for h := range days[d] {
			days[d][h] = d*10 + h%5
		}
	}
	return days
}

func weekPage() *browser.FakePage {
	return &browser.FakePage{Slots: 24, Days: weekDays(), NextSelector: DefaultSelectors().NextButton}
}

func wantWeek(days [][]int) table.Table {
	want := table.New("Day")
	for d, name := range DayNames {
		want.Rows = append(want.Rows, table.Row{Label: name, Counts: days[d]})
	}
	return want
}

type exportRecorder struct {
	calls  int
	tables []table.Table
	err    error
}

func (r *exportRecorder) export(t table.Table) error {
	r.calls++
	r.tables = append(r.tables, t)
	return r.err
}

func TestWeekPrimedRun(t *testing.T) {
	page := weekPage()
	rec := &exportRecorder{}
	var states []State
	w := Week{
		Sampler:    fakeSampler(page),
		NavTimeout: time.Second,
		Prime:      true,
		Export:     rec.export,
		OnState:    func(s State, _ int) { states = append(states, s) },
	}
	got, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(wantWeek(page.Days), got); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
	if got.Len() != 8 {
		t.Fatalf("expected 8 rows, got %d", got.Len())
	}
	if rec.calls != 1 {
		t.Fatalf("expected one export, got %d", rec.calls)
	}
	if page.Stopped != 1 {
		t.Fatalf("expected observer to be stopped once, got %d", page.Stopped)
	}
	nexts := 0
	for _, c := range page.Clicks {
		if c == page.NextSelector {
			nexts++
		}
	}
	if nexts != 6 {
		t.Fatalf("expected 6 next-day clicks, got %d", nexts)
	}
	if states[0] != Idle || states[len(states)-1] != Done {
		t.Fatalf("unexpected state walk: %v", states)
	}
	sampling := 0
	for _, s := range states {
		if s == Sampling {
			sampling++
		}
	}
	if sampling != 7 {
		t.Fatalf("expected 7 sampling states, got %d", sampling)
	}
}

func TestWeekUsesOwnLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sampler := fakeSampler(weekPage())
	sampler.Logger = zap.NewNop()
	w := Week{
		Sampler:    sampler,
		NavTimeout: time.Second,
		Prime:      true,
		Logger:     zap.New(core),
	}
	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	sampled := logs.FilterMessage("day sampled").All()
	if len(sampled) != 7 {
		t.Fatalf("expected 7 day entries on the week logger, got %d", len(sampled))
	}
	if day := sampled[0].ContextMap()["day"]; day != "Monday" {
		t.Fatalf("expected first entry for Monday, got %v", day)
	}
}

func TestWeekDrivenByNotifications(t *testing.T) {
	page := weekPage()
	rec := &exportRecorder{}
	w := Week{
		Sampler:    fakeSampler(page),
		NavTimeout: time.Second,
		Export:     rec.export,
		OnState: func(s State, day int) {
			// the operator opens Monday; later days come from next clicks
			if s == Waiting && day == 0 {
				page.Notify()
			}
		},
	}
	got, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(wantWeek(page.Days), got); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
	if rec.calls != 1 {
		t.Fatalf("expected one export, got %d", rec.calls)
	}
}

func TestWeekSpuriousAttachDoesNotDoubleSample(t *testing.T) {
	page := weekPage()
	page.SpuriousOnObserve = true
	rec := &exportRecorder{}
	w := Week{Sampler: fakeSampler(page), NavTimeout: time.Second, Prime: true, Export: rec.export}
	got, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(page.Activated) != 7*24 {
		t.Fatalf("expected %d activations, got %d", 7*24, len(page.Activated))
	}
	if diff := cmp.Diff(wantWeek(page.Days), got); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestWeekCoalescesNotificationsDuringSettle(t *testing.T) {
	page := weekPage()
	settles := 0
	w := Week{
		Sampler:    fakeSampler(page),
		Settle:     time.Second,
		NavTimeout: time.Second,
		Prime:      true,
		Sleep: func(_ context.Context, d time.Duration) error {
			if d != time.Second {
				t.Errorf("unexpected settle %s", d)
			}
			settles++
			// the re-render keeps mutating the label
			page.Notify()
			page.Notify()
			return nil
		},
	}
	got, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if settles != 7 {
		t.Fatalf("expected 7 settles, got %d", settles)
	}
	if got.Len() != 8 {
		t.Fatalf("expected 8 rows, got %d", got.Len())
	}
}

func TestWeekNavigationTimeout(t *testing.T) {
	page := weekPage()
	page.SilentNext = true
	rec := &exportRecorder{}
	w := Week{Sampler: fakeSampler(page), NavTimeout: 20 * time.Millisecond, Prime: true, Export: rec.export}
	got, err := w.Run(context.Background())
	if !errors.Is(err, ErrNavigationTimeout) {
		t.Fatalf("expected ErrNavigationTimeout, got %v", err)
	}
	if rec.calls != 0 {
		t.Fatalf("expected no export, got %d", rec.calls)
	}
	if got.Len() != 1 {
		t.Fatalf("expected discarded table, got %d rows", got.Len())
	}
	if page.Stopped != 1 {
		t.Fatalf("expected observer stopped, got %d", page.Stopped)
	}
}

func TestWeekNeverNotifiedWithoutPrime(t *testing.T) {
	page := weekPage()
	w := Week{Sampler: fakeSampler(page), NavTimeout: 10 * time.Millisecond}
	_, err := w.Run(context.Background())
	if !errors.Is(err, ErrNavigationTimeout) {
		t.Fatalf("expected ErrNavigationTimeout, got %v", err)
	}
	if len(page.Activated) != 0 {
		t.Fatalf("expected no sampling, got %d activations", len(page.Activated))
	}
}

func TestWeekSamplingFailureIsTerminal(t *testing.T) {
	page := weekPage()
	page.Slots = 12
	rec := &exportRecorder{}
	w := Week{Sampler: fakeSampler(page), NavTimeout: time.Second, Prime: true, Export: rec.export}
	_, err := w.Run(context.Background())
	if !errors.Is(err, ErrSlotCountMismatch) {
		t.Fatalf("expected ErrSlotCountMismatch, got %v", err)
	}
	if rec.calls != 0 || len(page.Clicks) != 0 {
		t.Fatalf("expected no export and no navigation, got %d exports %v clicks", rec.calls, page.Clicks)
	}
}

func TestWeekExportFailure(t *testing.T) {
	page := weekPage()
	rec := &exportRecorder{err: errors.New("disk full")}
	w := Week{Sampler: fakeSampler(page), NavTimeout: time.Second, Prime: true, Export: rec.export}
	if _, err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected export error")
	}
	if rec.calls != 1 {
		t.Fatalf("expected one export attempt, got %d", rec.calls)
	}
}

func TestWeekCanceled(t *testing.T) {
	page := weekPage()
	ctx, cancel := context.WithCancel(context.Background())
	w := Week{
		Sampler:    fakeSampler(page),
		NavTimeout: time.Minute,
		Prime:      true,
		OnState: func(s State, day int) {
			if s == Waiting && day == 1 {
				cancel()
			}
		},
	}
	page.SilentNext = true
	_, err := w.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{Idle: "idle", Waiting: "waiting", Sampling: "sampling", Advancing: "advancing", Done: "done", State(9): "state(9)"} {
		if got := state.String(); got != want {
			t.Fatalf("%d: want %s, got %s", int(state), want, got)
		}
	}
}
