package app

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickjm/staffcount/internal/config"
	"github.com/patrickjm/staffcount/internal/export"
	"github.com/patrickjm/staffcount/internal/extract"
)

func TestResolveOutputDefaults(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveOutput(dir, "", extract.WeekFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != filepath.Join(dir, "week.csv") {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestResolveOutputKeepsAbsolute(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "out.xlsx")
	got, err := resolveOutput("/somewhere/else", abs, extract.DayFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != abs {
		t.Fatalf("expected %q, got %q", abs, got)
	}
}

func TestResolveOutputRelativeDir(t *testing.T) {
	got, err := resolveOutput(".", "reports/day.csv", extract.DayFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Fatalf("expected absolute path, got %q", got)
	}
	if !strings.HasSuffix(got, filepath.Join("reports", "day.csv")) {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("hour 3: %w", extract.ErrIndicatorQuery), exitExtract},
		{extract.ErrSlotCountMismatch, exitExtract},
		{fmt.Errorf("day 2: %w", extract.ErrNavigationTimeout), exitExtract},
		{fmt.Errorf("%w: disk full", export.ErrSave), exitSave},
		{export.ErrUnsupportedFormat, exitSave},
		{fmt.Errorf("socket closed"), exitFailure},
	}
	for _, tc := range cases {
		if got := exitCodeFor(tc.err); got != tc.code {
			t.Fatalf("%v: expected exit %d, got %d", tc.err, tc.code, got)
		}
	}
}

func TestRunParamsFlagsWin(t *testing.T) {
	cfg := config.Default()
	params := runParams(cfg, RunFlags{Settle: 250 * time.Millisecond, SettleSet: true, NoPrime: true}, 2, "/tmp/week.csv", 5000)
	if params.SettleMs != 250 {
		t.Fatalf("expected settle 250ms, got %d", params.SettleMs)
	}
	if params.NavTimeoutMs != int(cfg.NavTimeout.Milliseconds()) {
		t.Fatalf("expected config nav timeout, got %d", params.NavTimeoutMs)
	}
	if !params.NoPrime || params.Tab != 2 || params.Path != "/tmp/week.csv" || params.TimeoutMs != 5000 {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.Selectors != cfg.Selectors {
		t.Fatalf("expected config selectors, got %+v", params.Selectors)
	}
}

func TestRunParamsExplicitZeroSettle(t *testing.T) {
	cfg := config.Default()
	cfg.Settle = 3 * time.Second
	params := runParams(cfg, RunFlags{Settle: 0, SettleSet: true}, 1, "/tmp/week.csv", 0)
	if params.SettleMs != 0 {
		t.Fatalf("expected --settle 0 to disable the settle delay, got %dms", params.SettleMs)
	}
	params = runParams(cfg, RunFlags{}, 1, "/tmp/week.csv", 0)
	if params.SettleMs != 3000 {
		t.Fatalf("expected config settle without the flag, got %dms", params.SettleMs)
	}
}

func TestMarkChangedSeesExplicitZero(t *testing.T) {
	var run RunFlags
	cmd := &cobra.Command{Use: "week"}
	cmd.Flags().DurationVar(&run.Settle, "settle", 0, "")
	cmd.Flags().DurationVar(&run.NavTimeout, "nav-timeout", 0, "")
	if err := cmd.Flags().Parse([]string{"--settle", "0"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := markChanged(cmd, run)
	if !got.SettleSet || got.Settle != 0 {
		t.Fatalf("expected explicit zero settle, got %+v", got)
	}
	if got.NavTimeoutSet {
		t.Fatalf("nav-timeout was not given")
	}
}

func TestOverridesFromFlags(t *testing.T) {
	o, err := overridesFromFlags(GlobalFlags{Engine: "rod", Headless: true, TTL: "48h"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Engine != "rod" || o.Headless == nil || !*o.Headless || o.TTL == nil || *o.TTL != 48*time.Hour {
		t.Fatalf("unexpected overrides %+v", o)
	}
	if _, err := overridesFromFlags(GlobalFlags{Engine: "netscape"}); err == nil {
		t.Fatalf("expected unknown engine error")
	}
	if _, err := overridesFromFlags(GlobalFlags{Headless: true, Headed: true}); err == nil {
		t.Fatalf("expected conflicting flags error")
	}
}

func TestExecuteVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Execute([]string{"--version"}, &out, &errOut); code != exitSuccess {
		t.Fatalf("expected success, got %d", code)
	}
	if strings.TrimSpace(out.String()) != Version {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestExecuteRejectsUnsupportedOutput(t *testing.T) {
	t.Setenv("STAFFCOUNT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	var out, errOut bytes.Buffer
	code := Execute([]string{"-D", t.TempDir(), "-p", "work", "-N", "day", "-o", "day.json"}, &out, &errOut)
	if code != exitUsage {
		t.Fatalf("expected usage exit, got %d (%s)", code, errOut.String())
	}
	if !strings.Contains(errOut.String(), "unsupported") {
		t.Fatalf("expected unsupported format message, got %q", errOut.String())
	}
}

func TestExecuteNoStartFails(t *testing.T) {
	t.Setenv("STAFFCOUNT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	var out, errOut bytes.Buffer
	code := Execute([]string{"-D", t.TempDir(), "-p", "work", "-N", "week"}, &out, &errOut)
	if code != exitFailure {
		t.Fatalf("expected failure exit, got %d", code)
	}
	if !strings.Contains(errOut.String(), "not running") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestExecuteStartRequiresProfile(t *testing.T) {
	t.Setenv("STAFFCOUNT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	var out, errOut bytes.Buffer
	if code := Execute([]string{"-D", t.TempDir(), "start"}, &out, &errOut); code != exitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
}
