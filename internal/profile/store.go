package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/patrickjm/staffcount/internal/browser"
)

// Profile is one browser identity, typically logged into one scheduling site.
type Profile struct {
	Name      string    `json:"name"`
	Engine    string    `json:"engine"`
	Browser   string    `json:"browser"`
	Channel   string    `json:"channel"`
	Headless  bool      `json:"headless"`
	StartURL  string    `json:"start_url,omitempty"`
	TTL       int64     `json:"ttl_seconds"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

func (p Profile) StartOptions(storagePath string) browser.StartOptions {
	return browser.StartOptions{Browser: p.Browser, Channel: p.Channel, Headless: p.Headless, StorageIn: storagePath}
}

type Store struct {
	Root       string
	DefaultTTL time.Duration
}

func (s Store) EnsureDir() error {
	return os.MkdirAll(s.Root, 0o755)
}

func (s Store) ProfileDir(name string) string {
	return filepath.Join(s.Root, SafeName(name))
}

func (s Store) ProfilePath(name string) string {
	return filepath.Join(s.ProfileDir(name), "profile.json")
}

func (s Store) StorageStatePath(name string) string {
	return filepath.Join(s.ProfileDir(name), "storage.json")
}

func (s Store) LogPath(name string) string {
	return filepath.Join(s.ProfileDir(name), "daemon.log")
}

func (s Store) Load(name string) (Profile, error) {
	b, err := os.ReadFile(s.ProfilePath(name))
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", name, err)
	}
	if p.Engine == "" {
		p.Engine = browser.EnginePlaywright
	}
	return p, nil
}

func (s Store) Save(p Profile) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	p.Name = SafeName(p.Name)
	if p.Name == "" {
		return errors.New("profile name required")
	}
	if _, err := browser.EngineByName(p.Engine); err != nil {
		return err
	}
	if err := os.MkdirAll(s.ProfileDir(p.Name), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.ProfilePath(p.Name), b, 0o644)
}

func (s Store) List() ([]Profile, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	profiles := make([]Profile, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

func (s Store) Remove(name string) error {
	if SafeName(name) == "" {
		return errors.New("profile name required")
	}
	return os.RemoveAll(s.ProfileDir(name))
}

// Upsert creates the profile with defaults if missing and applies overrides.
// The bool reports whether it was created.
func (s Store) Upsert(name string, overrides Overrides) (Profile, bool, error) {
	name = SafeName(name)
	if name == "" {
		return Profile{}, false, errors.New("profile name required")
	}
	p, err := s.Load(name)
	if err != nil {
		if !os.IsNotExist(err) {
			return Profile{}, false, err
		}
		now := time.Now().UTC()
		// headed by default: logging into the scheduling site needs a window
		p = Profile{
			Name:      name,
			Engine:    browser.EnginePlaywright,
			Browser:   "chromium",
			Channel:   "chrome",
			Headless:  false,
			TTL:       int64(s.DefaultTTL.Seconds()),
			CreatedAt: now,
			LastUsed:  now,
		}
		applyOverrides(&p, overrides)
		if err := s.Save(p); err != nil {
			return Profile{}, false, err
		}
		return p, true, nil
	}
	if applyOverrides(&p, overrides) {
		if err := s.Save(p); err != nil {
			return Profile{}, false, err
		}
	}
	return p, false, nil
}

func (s Store) Touch(name string) (Profile, error) {
	p, err := s.Load(name)
	if err != nil {
		return Profile{}, err
	}
	p.LastUsed = time.Now().UTC()
	return p, s.Save(p)
}

func (s Store) IsExpired(p Profile) bool {
	if p.TTL <= 0 {
		return false
	}
	deadline := p.LastUsed.Add(time.Duration(p.TTL) * time.Second)
	return time.Now().UTC().After(deadline)
}

func (s Store) Prune() ([]Profile, error) {
	profiles, err := s.List()
	if err != nil {
		return nil, err
	}
	removed := make([]Profile, 0)
	for _, p := range profiles {
		if s.IsExpired(p) {
			if err := s.Remove(p.Name); err != nil {
				return removed, err
			}
			removed = append(removed, p)
		}
	}
	return removed, nil
}

type Overrides struct {
	Engine   string
	Browser  string
	Channel  string
	StartURL string
	Headless *bool
	TTL      *time.Duration
}

func applyOverrides(p *Profile, overrides Overrides) bool {
	updated := false
	if overrides.Engine != "" && overrides.Engine != p.Engine {
		p.Engine = overrides.Engine
		updated = true
	}
	if overrides.Browser != "" {
		p.Browser = overrides.Browser
		updated = true
	}
	if overrides.Channel != "" {
		p.Channel = overrides.Channel
		updated = true
	}
	if overrides.StartURL != "" {
		p.StartURL = overrides.StartURL
		updated = true
	}
	if overrides.Headless != nil {
		p.Headless = *overrides.Headless
		updated = true
	}
	if overrides.TTL != nil {
		p.TTL = int64(overrides.TTL.Seconds())
		updated = true
	}
	return updated
}

// SafeName lowercases and dashes a profile name for use as a directory.
func SafeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	return name
}

func FormatTTL(seconds int64) string {
	if seconds <= 0 {
		return "never"
	}
	return time.Duration(seconds * int64(time.Second)).String()
}

func (p Profile) String() string {
	return fmt.Sprintf("%s (engine=%s browser=%s headless=%t)", p.Name, p.Engine, p.Browser, p.Headless)
}
