package daemon

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickjm/staffcount/internal/browser"
	"github.com/patrickjm/staffcount/internal/extract"
	"github.com/patrickjm/staffcount/internal/table"
)

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", path, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errors.New("socket not ready")
}

func schedulePage() *browser.FakePage {
	days := make([][]int, 7)
	for d := range days {
		days[d] = make([]int, table.Hours)
		for h := range days[d] {
			days[d][h] = d + h%3
		}
	}
	return &browser.FakePage{
		Slots:        table.Hours,
		Days:         days,
		NextSelector: extract.DefaultSelectors().NextButton,
		HTML:         `<div class="calendarDateLabel">Mon</div>`,
	}
}

func startServer(t *testing.T, engine *browser.FakeEngine) (*Client, chan error) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "daemon.sock")
	errCh := make(chan error, 1)
	go func() {
		errCh <- ServeProfile(ServeOptions{
			Socket:   socket,
			Profile:  "test",
			Engine:   engine,
			Start:    browser.StartOptions{Headless: true},
			StartURL: "https://rota.example/schedule",
		})
	}()
	if err := waitForSocket(socket, 2*time.Second); err != nil {
		t.Fatalf("wait socket: %v", err)
	}
	client, err := NewClient(socket)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, errCh
}

func stopServer(t *testing.T, client *Client, errCh chan error) {
	t.Helper()
	if err := client.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server error: %v", err)
	}
}

func TestServerTabLifecycle(t *testing.T) {
	engine := &browser.FakeEngine{}
	client, errCh := startServer(t, engine)

	tabs, err := client.TabList()
	if err != nil {
		t.Fatalf("tab list: %v", err)
	}
	if len(tabs) != 1 {
		t.Fatalf("expected 1 tab, got %d", len(tabs))
	}
	if tabs[0].URL != "https://rota.example/schedule" {
		t.Fatalf("expected start url, got %s", tabs[0].URL)
	}
	newTab, err := client.TabNew("")
	if err != nil {
		t.Fatalf("tab new: %v", err)
	}
	if newTab.ID == 0 {
		t.Fatalf("expected tab id")
	}
	if err := client.Goto(newTab.ID, "https://example.com", 1000); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if err := client.Goto(99, "https://example.com", 0); err == nil {
		t.Fatalf("expected error for unknown tab")
	}
	stopServer(t, client, errCh)
	if engine.Session == nil || len(engine.Session.Pages) < 2 {
		t.Fatalf("expected pages to be created")
	}
	if !engine.Session.Closed {
		t.Fatalf("expected session closed on stop")
	}
}

func TestServerDayAndWeek(t *testing.T) {
	engine := &browser.FakeEngine{Session: &browser.FakeSession{Template: schedulePage()}}
	client, errCh := startServer(t, engine)
	out := t.TempDir()

	day, err := client.Day(RunParams{Path: filepath.Join(out, "day.csv")})
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	if day.Rows != 2 || day.Table.Rows[0].Label != "Amount" {
		t.Fatalf("unexpected day result: %+v", day)
	}
	b, err := os.ReadFile(day.Path)
	if err != nil {
		t.Fatalf("read day.csv: %v", err)
	}
	parsed, err := table.ParseCSV(b)
	if err != nil {
		t.Fatalf("parse day.csv: %v", err)
	}
	if parsed.Label != "Index" || parsed.Len() != 2 {
		t.Fatalf("unexpected day.csv: %+v", parsed)
	}

	week, err := client.Week(RunParams{Path: filepath.Join(out, "week.csv"), NavTimeoutMs: 1000})
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if week.Rows != 8 {
		t.Fatalf("expected 8 rows, got %d", week.Rows)
	}
	for i, row := range week.Table.Rows {
		if row.Label != extract.DayNames[i] {
			t.Fatalf("row %d: want %s, got %s", i, extract.DayNames[i], row.Label)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "week.csv")); err != nil {
		t.Fatalf("week.csv: %v", err)
	}

	probe, err := client.Probe(ProbeParams{})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if probe.DateLabels != 1 || probe.DateText != "Mon" || probe.Ready {
		t.Fatalf("unexpected probe: %+v", probe)
	}
	stopServer(t, client, errCh)
}

func TestServerRunErrorsKeepKind(t *testing.T) {
	page := schedulePage()
	page.Slots = 10
	engine := &browser.FakeEngine{Session: &browser.FakeSession{Template: page}}
	client, errCh := startServer(t, engine)

	_, err := client.Day(RunParams{Path: filepath.Join(t.TempDir(), "day.csv")})
	if !errors.Is(err, extract.ErrSlotCountMismatch) {
		t.Fatalf("expected ErrSlotCountMismatch, got %v", err)
	}
	if _, err := client.Day(RunParams{Path: "day.csv"}); err == nil {
		t.Fatalf("expected relative path to be rejected")
	}
	stopServer(t, client, errCh)
}
