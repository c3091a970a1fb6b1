package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/patrickjm/staffcount/internal/extract"
)

type Config struct {
	ProfileDir string
	DefaultTTL time.Duration
	OutputDir  string
	Settle     time.Duration
	NavTimeout time.Duration
	Stable     time.Duration
	Selectors  extract.Selectors
}

type rawConfig struct {
	ProfileDir string            `toml:"profile_dir"`
	DefaultTTL string            `toml:"default_ttl"`
	OutputDir  string            `toml:"output_dir"`
	Timing     rawTiming         `toml:"timing"`
	Selectors  extract.Selectors `toml:"selectors"`
}

type rawTiming struct {
	Settle     string `toml:"settle"`
	NavTimeout string `toml:"nav_timeout"`
	Stable     string `toml:"stable"`
}

// Overrides come from command line flags and win over everything else.
type Overrides struct {
	ProfileDir string
	DefaultTTL string
	OutputDir  string
}

func Default() Config {
	return Config{
		ProfileDir: defaultProfileDir(),
		DefaultTTL: 14 * 24 * time.Hour,
		OutputDir:  ".",
		Settle:     extract.DefaultSettle,
		NavTimeout: extract.DefaultNavTimeout,
		Stable:     extract.DefaultStable,
		Selectors:  extract.DefaultSelectors(),
	}
}

func Load(overrides Overrides) (Config, error) {
	cfg := Default()

	if err := loadFileConfig(&cfg, configPaths()); err != nil {
		return Config{}, err
	}

	if v := strings.TrimSpace(os.Getenv("STAFFCOUNT_PROFILE_DIR")); v != "" {
		cfg.ProfileDir = v
	}
	if v := strings.TrimSpace(os.Getenv("STAFFCOUNT_OUTPUT_DIR")); v != "" {
		cfg.OutputDir = v
	}
	setDuration(&cfg.DefaultTTL, os.Getenv("STAFFCOUNT_DEFAULT_TTL"))
	setDuration(&cfg.Settle, os.Getenv("STAFFCOUNT_SETTLE"))
	setDuration(&cfg.NavTimeout, os.Getenv("STAFFCOUNT_NAV_TIMEOUT"))

	setDuration(&cfg.DefaultTTL, overrides.DefaultTTL)
	if strings.TrimSpace(overrides.ProfileDir) != "" {
		cfg.ProfileDir = overrides.ProfileDir
	}
	if strings.TrimSpace(overrides.OutputDir) != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()
	return cfg, nil
}

func configPaths() []string {
	paths := []string{
		"/opt/homebrew/etc/staffcount/config.toml",
		"/usr/local/etc/staffcount/config.toml",
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "staffcount", "config.toml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "staffcount", "config.toml"))
	}
	if v := strings.TrimSpace(os.Getenv("STAFFCOUNT_CONFIG")); v != "" {
		paths = []string{v}
	}
	return paths
}

// loadFileConfig applies the first config file that exists.
func loadFileConfig(cfg *Config, paths []string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var raw rawConfig
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return err
		}
		if raw.ProfileDir != "" {
			cfg.ProfileDir = raw.ProfileDir
		}
		if raw.OutputDir != "" {
			cfg.OutputDir = raw.OutputDir
		}
		setDuration(&cfg.DefaultTTL, raw.DefaultTTL)
		setDuration(&cfg.Settle, raw.Timing.Settle)
		setDuration(&cfg.NavTimeout, raw.Timing.NavTimeout)
		setDuration(&cfg.Stable, raw.Timing.Stable)
		cfg.Selectors = mergeSelectors(cfg.Selectors, raw.Selectors)
		return nil
	}
	return nil
}

func mergeSelectors(base, over extract.Selectors) extract.Selectors {
	if over.Slot != "" {
		base.Slot = over.Slot
	}
	if over.Indicator != "" {
		base.Indicator = over.Indicator
	}
	if over.DateLabel != "" {
		base.DateLabel = over.DateLabel
	}
	if over.NextButton != "" {
		base.NextButton = over.NextButton
	}
	return base
}

// setDuration ignores blank and unparsable values.
func setDuration(dst *time.Duration, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
	}
}

func defaultProfileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/staffcount"
	}
	userDefault := ""
	if runtime.GOOS == "darwin" {
		userDefault = filepath.Join(home, "Library", "Application Support", "staffcount")
	} else {
		if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
			userDefault = filepath.Join(xdg, "staffcount")
		} else {
			userDefault = filepath.Join(home, ".local", "share", "staffcount")
		}
	}
	return userDefault
}
