package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/patrickjm/staffcount/internal/browser"
	"github.com/patrickjm/staffcount/internal/config"
	"github.com/patrickjm/staffcount/internal/daemon"
	"github.com/patrickjm/staffcount/internal/export"
	"github.com/patrickjm/staffcount/internal/extract"
	"github.com/patrickjm/staffcount/internal/profile"
)

type GlobalFlags struct {
	Profile    string
	ProfileDir string
	OutputDir  string
	JSON       bool
	Quiet      bool
	Verbose    bool
	NoStart    bool
	Engine     string
	Browser    string
	Channel    string
	Headless   bool
	Headed     bool
	Tab        int
	TTL        string
	Timeout    string
}

// RunFlags are the per-command knobs of day and week. The *Set fields record
// whether the flag was given, so an explicit zero still wins over config.
type RunFlags struct {
	Output        string
	Settle        time.Duration
	SettleSet     bool
	NavTimeout    time.Duration
	NavTimeoutSet bool
	NoPrime       bool
}

type App struct {
	Out io.Writer
	Err io.Writer
	Log *zap.Logger
}

func (a App) prepare(flags GlobalFlags) (config.Config, profile.Store, daemon.Manager, error) {
	cfg, err := config.Load(config.Overrides{ProfileDir: flags.ProfileDir, OutputDir: flags.OutputDir})
	if err != nil {
		return config.Config{}, profile.Store{}, daemon.Manager{}, err
	}
	store := profile.Store{Root: cfg.ProfileDir, DefaultTTL: cfg.DefaultTTL}
	if err := daemon.EnsureProfileDir(cfg.ProfileDir); err != nil {
		return config.Config{}, profile.Store{}, daemon.Manager{}, err
	}
	mgr := daemon.Manager{ProfileDir: cfg.ProfileDir}
	return cfg, store, mgr, nil
}

const (
	exitSuccess  = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
	exitExtract  = 4
	exitSave     = 5
)

// exitCodeFor maps run failures to distinct exit codes so wrappers can tell
// a changed page apart from a full disk.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, extract.ErrSlotCountMismatch),
		errors.Is(err, extract.ErrIndicatorQuery),
		errors.Is(err, extract.ErrNavigationTimeout):
		return exitExtract
	case errors.Is(err, export.ErrSave), errors.Is(err, export.ErrUnsupportedFormat):
		return exitSave
	default:
		return exitFailure
	}
}

func (a App) runInstall(flags GlobalFlags) int {
	browsers := []string{}
	if flags.Browser != "" {
		browsers = append(browsers, flags.Browser)
	}
	opts := &playwright.RunOptions{}
	if len(browsers) > 0 {
		opts.Browsers = browsers
	}
	if err := playwright.Install(opts); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		if len(browsers) == 0 {
			fmt.Fprintln(a.Out, "Playwright installed")
		} else {
			fmt.Fprintf(a.Out, "Playwright installed: %s\n", strings.Join(browsers, ", "))
		}
	}
	return exitSuccess
}

func (a App) runDoctor(cfg config.Config, flags GlobalFlags) int {
	type result struct {
		ProfileDirWritable bool              `json:"profile_dir_writable"`
		ProfileDir         string            `json:"profile_dir"`
		OutputDir          string            `json:"output_dir"`
		PlaywrightOK       bool              `json:"playwright_ok"`
		BrowsersPath       string            `json:"browsers_path"`
		Settle             string            `json:"settle"`
		NavTimeout         string            `json:"nav_timeout"`
		Selectors          extract.Selectors `json:"selectors"`
	}
	res := result{
		ProfileDir:   cfg.ProfileDir,
		OutputDir:    cfg.OutputDir,
		BrowsersPath: os.Getenv("PLAYWRIGHT_BROWSERS_PATH"),
		Settle:       cfg.Settle.String(),
		NavTimeout:   cfg.NavTimeout.String(),
		Selectors:    cfg.Selectors,
	}
	if err := os.MkdirAll(cfg.ProfileDir, 0o755); err == nil {
		res.ProfileDirWritable = true
	}
	if pw, err := playwright.Run(); err == nil {
		res.PlaywrightOK = true
		pw.Stop()
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "profile_dir=%s\n", res.ProfileDir)
	fmt.Fprintf(a.Out, "profile_dir_writable=%t\n", res.ProfileDirWritable)
	fmt.Fprintf(a.Out, "output_dir=%s\n", res.OutputDir)
	fmt.Fprintf(a.Out, "playwright_ok=%t\n", res.PlaywrightOK)
	if res.BrowsersPath != "" {
		fmt.Fprintf(a.Out, "browsers_path=%s\n", res.BrowsersPath)
	}
	fmt.Fprintf(a.Out, "settle=%s nav_timeout=%s\n", res.Settle, res.NavTimeout)
	fmt.Fprintf(a.Out, "slot=%s\n", cfg.Selectors.Slot)
	fmt.Fprintf(a.Out, "indicator=%s\n", cfg.Selectors.Indicator)
	fmt.Fprintf(a.Out, "date_label=%s\n", cfg.Selectors.DateLabel)
	fmt.Fprintf(a.Out, "next_button=%s\n", cfg.Selectors.NextButton)
	return exitSuccess
}

func (a App) runStart(store profile.Store, mgr daemon.Manager, flags GlobalFlags, startURL string) int {
	name := flags.Profile
	if name == "" {
		fmt.Fprintln(a.Err, "-p/--profile is required")
		return exitUsage
	}
	overrides, err := overridesFromFlags(flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	overrides.StartURL = startURL
	p, _, err := store.Upsert(name, overrides)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if err := mgr.Start(p.Name); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	_, _ = store.Touch(p.Name)
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "started %s\n", p.Name)
	}
	return exitSuccess
}

func (a App) runStop(mgr daemon.Manager, flags GlobalFlags) int {
	name := flags.Profile
	if name == "" {
		fmt.Fprintln(a.Err, "-p/--profile is required")
		return exitUsage
	}
	if err := mgr.Stop(profile.SafeName(name)); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "stopped %s\n", name)
	}
	return exitSuccess
}

func (a App) runPs(mgr daemon.Manager, flags GlobalFlags) int {
	infos, err := mgr.RunningProfiles()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(infos, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, info := range infos {
		fmt.Fprintf(a.Out, "pid=%d socket=%s started_at=%s\n", info.PID, info.Socket, info.StartedAt.Format(time.RFC3339))
	}
	return exitSuccess
}

func (a App) runList(store profile.Store, flags GlobalFlags) int {
	profiles, err := store.List()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(profiles, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, p := range profiles {
		fmt.Fprintf(a.Out, "%s engine=%s last_used=%s ttl=%s\n", p.Name, p.Engine, p.LastUsed.Format(time.RFC3339), profile.FormatTTL(p.TTL))
	}
	return exitSuccess
}

func (a App) runShow(store profile.Store, flags GlobalFlags, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(a.Err, "profile name required")
		return exitUsage
	}
	p, err := store.Load(args[0])
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitNotFound
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(p, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "name=%s\n", p.Name)
	fmt.Fprintf(a.Out, "engine=%s browser=%s channel=%s\n", p.Engine, p.Browser, p.Channel)
	fmt.Fprintf(a.Out, "headless=%t\n", p.Headless)
	if p.StartURL != "" {
		fmt.Fprintf(a.Out, "start_url=%s\n", p.StartURL)
	}
	fmt.Fprintf(a.Out, "created_at=%s\n", p.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(a.Out, "last_used=%s\n", p.LastUsed.Format(time.RFC3339))
	fmt.Fprintf(a.Out, "ttl=%s\n", profile.FormatTTL(p.TTL))
	return exitSuccess
}

func (a App) runRemove(store profile.Store, mgr daemon.Manager, flags GlobalFlags, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(a.Err, "profile name required")
		return exitUsage
	}
	for _, name := range args {
		running, _, err := mgr.IsRunning(profile.SafeName(name))
		if err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		if running {
			fmt.Fprintf(a.Err, "%s is running; stop first\n", name)
			return exitFailure
		}
		if err := store.Remove(name); err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		if !flags.Quiet {
			fmt.Fprintf(a.Out, "removed %s\n", name)
		}
	}
	return exitSuccess
}

func (a App) runPrune(store profile.Store, mgr daemon.Manager, flags GlobalFlags, dryRun bool, force bool) int {
	profiles, err := store.List()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	removed := []profile.Profile{}
	for _, p := range profiles {
		if !store.IsExpired(p) {
			continue
		}
		running, _, err := mgr.IsRunning(p.Name)
		if err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		if running && !force {
			continue
		}
		if !dryRun {
			if err := store.Remove(p.Name); err != nil {
				fmt.Fprintln(a.Err, err)
				return exitFailure
			}
		}
		removed = append(removed, p)
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(removed, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, p := range removed {
		fmt.Fprintf(a.Out, "pruned %s\n", p.Name)
	}
	return exitSuccess
}

func (a App) runTabNew(store profile.Store, mgr daemon.Manager, flags GlobalFlags, url string) int {
	client, err := a.prepareClientNoTab(store, mgr, flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()

	tab, err := client.TabNew(url)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	fmt.Fprintf(a.Out, "%d\n", tab.ID)
	return exitSuccess
}

func (a App) runTabList(store profile.Store, mgr daemon.Manager, flags GlobalFlags) int {
	client, err := a.prepareClientNoTab(store, mgr, flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()
	tabs, err := client.TabList()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(tabs, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, tab := range tabs {
		marker := ""
		if tab.Active {
			marker = "*"
		}
		fmt.Fprintf(a.Out, "%d%s %s\n", tab.ID, marker, tab.URL)
	}
	return exitSuccess
}

func (a App) runGoto(store profile.Store, mgr daemon.Manager, flags GlobalFlags, url string) int {
	client, tabID, err := a.prepareClient(store, mgr, flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()
	timeoutMs, err := actionTimeoutMs(flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	if err := client.Goto(tabID, url, timeoutMs); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	_, _ = store.Touch(flags.Profile)
	return exitSuccess
}

func (a App) runProbe(cfg config.Config, store profile.Store, mgr daemon.Manager, flags GlobalFlags) int {
	client, tabID, err := a.prepareClient(store, mgr, flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()
	timeoutMs, err := actionTimeoutMs(flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	res, err := client.Probe(daemon.ProbeParams{Tab: tabID, Selectors: cfg.Selectors, TimeoutMs: timeoutMs})
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(a.Out, string(b))
	} else {
		fmt.Fprintf(a.Out, "slots=%d indicators=%d date_labels=%d next_buttons=%d\n", res.Slots, res.Indicators, res.DateLabels, res.NextButtons)
		if res.DateText != "" {
			fmt.Fprintf(a.Out, "date=%s\n", res.DateText)
		}
		for _, problem := range res.Problems {
			fmt.Fprintf(a.Out, "problem: %s\n", problem)
		}
	}
	if !res.Ready {
		return exitExtract
	}
	return exitSuccess
}

func (a App) runDay(cfg config.Config, store profile.Store, mgr daemon.Manager, flags GlobalFlags, run RunFlags) int {
	return a.runExtraction("Day", extract.DayFile, cfg, store, mgr, flags, run)
}

func (a App) runWeek(cfg config.Config, store profile.Store, mgr daemon.Manager, flags GlobalFlags, run RunFlags) int {
	return a.runExtraction("Week", extract.WeekFile, cfg, store, mgr, flags, run)
}

func (a App) runExtraction(method string, defaultFile string, cfg config.Config, store profile.Store, mgr daemon.Manager, flags GlobalFlags, run RunFlags) int {
	path, err := resolveOutput(cfg.OutputDir, run.Output, defaultFile)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	if err := export.CheckFormat(path); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	timeoutMs, err := actionTimeoutMs(flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	client, tabID, err := a.prepareClient(store, mgr, flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()

	params := runParams(cfg, run, tabID, path, timeoutMs)
	a.logger().Debug("extraction starting", zap.String("method", method), zap.String("path", path),
		zap.Int("settle_ms", params.SettleMs), zap.Int("nav_timeout_ms", params.NavTimeoutMs))
	var res daemon.RunResult
	if method == "Day" {
		res, err = client.Day(params)
	} else {
		res, err = client.Week(params)
	}
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitCodeFor(err)
	}
	_, _ = store.Touch(flags.Profile)
	if flags.JSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "wrote %s (%d rows)\n", res.Path, res.Rows)
	}
	return exitSuccess
}

func runParams(cfg config.Config, run RunFlags, tabID int, path string, timeoutMs int) daemon.RunParams {
	settle := cfg.Settle
	if run.SettleSet {
		settle = run.Settle
	}
	navTimeout := cfg.NavTimeout
	if run.NavTimeoutSet {
		navTimeout = run.NavTimeout
	}
	return daemon.RunParams{
		Tab:          tabID,
		Path:         path,
		Selectors:    cfg.Selectors,
		StableMs:     int(cfg.Stable.Milliseconds()),
		SettleMs:     int(settle.Milliseconds()),
		NavTimeoutMs: int(navTimeout.Milliseconds()),
		NoPrime:      run.NoPrime,
		TimeoutMs:    timeoutMs,
	}
}

// resolveOutput turns the -o value into an absolute path for the daemon.
func resolveOutput(dir string, output string, defaultFile string) (string, error) {
	if strings.TrimSpace(output) == "" {
		output = defaultFile
	}
	if !filepath.IsAbs(output) && dir != "" {
		output = filepath.Join(dir, output)
	}
	return filepath.Abs(output)
}

func (a App) runEval(store profile.Store, mgr daemon.Manager, flags GlobalFlags, js string) int {
	client, tabID, err := a.prepareClient(store, mgr, flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()
	timeoutMs, err := actionTimeoutMs(flags)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	result, err := client.Eval(tabID, js, timeoutMs)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	fmt.Fprintln(a.Out, string(result))
	_, _ = store.Touch(flags.Profile)
	return exitSuccess
}

func (a App) prepareClient(store profile.Store, mgr daemon.Manager, flags GlobalFlags) (*daemon.Client, int, error) {
	client, err := a.prepareClientNoTab(store, mgr, flags)
	if err != nil {
		return nil, 0, err
	}
	tabID, err := resolveTabID(client, flags.Tab)
	if err != nil {
		_ = client.Close()
		return nil, 0, err
	}
	return client, tabID, nil
}

func (a App) prepareClientNoTab(store profile.Store, mgr daemon.Manager, flags GlobalFlags) (*daemon.Client, error) {
	name := flags.Profile
	if name == "" {
		return nil, errors.New("-p/--profile is required")
	}
	if _, _, err := store.Upsert(name, profile.Overrides{}); err != nil {
		return nil, err
	}
	if err := ensureRunning(mgr, profile.SafeName(name), flags.NoStart); err != nil {
		return nil, err
	}
	return daemon.NewClient(mgr.SocketPath(profile.SafeName(name)))
}

func actionTimeoutMs(flags GlobalFlags) (int, error) {
	if strings.TrimSpace(flags.Timeout) == "" {
		return int((20 * time.Second).Milliseconds()), nil
	}
	d, err := time.ParseDuration(flags.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	if d <= 0 {
		return 0, nil
	}
	return int(d.Milliseconds()), nil
}

func (a App) runServe(store profile.Store, mgr daemon.Manager, flags GlobalFlags) int {
	name := flags.Profile
	if name == "" {
		fmt.Fprintln(a.Err, "-p/--profile is required")
		return exitUsage
	}
	p, err := store.Load(name)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	engine, err := browser.EngineByName(p.Engine)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	log, err := daemonLogger(store.LogPath(p.Name), flags.Verbose)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer log.Sync()

	socket := mgr.SocketPath(p.Name)
	info := daemon.Info{PID: os.Getpid(), Socket: socket, StartedAt: daemon.NowUTC()}
	if path, modTime, err := daemon.CurrentBinaryInfo(); err == nil {
		info.BinaryPath = path
		info.BinaryModTime = modTime
	}
	if err := mgr.SaveInfo(p.Name, info); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	err = daemon.ServeProfile(daemon.ServeOptions{
		Socket:   socket,
		Profile:  p.Name,
		Engine:   engine,
		Start:    p.StartOptions(store.StorageStatePath(p.Name)),
		StartURL: p.StartURL,
		Logger:   log,
	})
	if err != nil {
		log.Error("serve failed", zap.Error(err))
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	return exitSuccess
}

func ensureRunning(mgr daemon.Manager, name string, noStart bool) error {
	running, _, err := mgr.IsRunning(name)
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	if noStart {
		return errors.New("profile is not running")
	}
	return mgr.Start(name)
}

func resolveTabID(client *daemon.Client, requested int) (int, error) {
	if requested != 0 {
		return requested, nil
	}
	status, err := client.Status()
	if err != nil {
		return 0, err
	}
	return resolveTabIDFromStatus(status)
}

func resolveTabIDFromStatus(status daemon.StatusResult) (int, error) {
	if len(status.Tabs) == 1 {
		return status.Tabs[0].ID, nil
	}
	if len(status.Tabs) == 0 {
		return 0, errors.New("no tabs available")
	}
	return 0, errors.New("multiple tabs; use --tab")
}

func overridesFromFlags(flags GlobalFlags) (profile.Overrides, error) {
	var overrides profile.Overrides
	if flags.Engine != "" {
		if _, err := browser.EngineByName(flags.Engine); err != nil {
			return overrides, err
		}
		overrides.Engine = flags.Engine
	}
	if flags.Browser != "" {
		overrides.Browser = flags.Browser
	}
	if flags.Channel != "" {
		overrides.Channel = flags.Channel
	}
	if flags.Headless && flags.Headed {
		return overrides, errors.New("cannot set both --headless and --headed")
	}
	if flags.Headless {
		headless := true
		overrides.Headless = &headless
	}
	if flags.Headed {
		headless := false
		overrides.Headless = &headless
	}
	if flags.TTL != "" {
		d, err := time.ParseDuration(flags.TTL)
		if err != nil {
			return overrides, fmt.Errorf("invalid ttl: %w", err)
		}
		overrides.TTL = &d
	}
	return overrides, nil
}
