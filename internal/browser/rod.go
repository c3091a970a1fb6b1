package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// RodEngine drives a local Chromium over CDP. Only chromium is supported and
// storage state is limited to cookies.
type RodEngine struct{}

func (r RodEngine) Start(opts StartOptions) (Session, error) {
	if opts.Browser != "" && opts.Browser != "chromium" {
		return nil, errors.New("rod engine only supports chromium")
	}
	l := launcher.New().Headless(opts.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, err
	}
	s := &rodSession{browser: browser, launcher: l}
	if opts.StorageIn != "" {
		if err := s.loadCookies(opts.StorageIn); err != nil && !os.IsNotExist(err) {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (s *rodSession) NewPage() (Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	return &rodPage{page: page}, nil
}

func (s *rodSession) StorageState(path string) error {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func (s *rodSession) loadCookies(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(b, &cookies); err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	return s.browser.SetCookies(proto.CookiesToParams(cookies))
}

func (s *rodSession) Close() error {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
	}
	return nil
}

type rodPage struct {
	page    *rod.Page
	timeout time.Duration
}

// bounded runs fn against a page whose deadline covers this one action.
func (p *rodPage) bounded(fn func(page *rod.Page) error) error {
	if p.timeout <= 0 {
		return fn(p.page)
	}
	page := p.page.Timeout(p.timeout)
	defer page.CancelTimeout()
	return fn(page)
}

type rodHandle struct {
	el      *rod.Element
	timeout time.Duration
}

func (h rodHandle) Activate() error {
	el := h.el
	if h.timeout > 0 {
		el = el.Timeout(h.timeout)
		defer el.CancelTimeout()
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Goto(url string) error {
	return p.bounded(func(page *rod.Page) error {
		if err := page.Navigate(url); err != nil {
			return err
		}
		return page.WaitLoad()
	})
}

// Handles are looked up without a deadline; each Activate gets its own.
func (p *rodPage) Handles(selector string) ([]Handle, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	return newRodHandles(els, p.timeout), nil
}

func newRodHandles(els rod.Elements, timeout time.Duration) []Handle {
	handles := make([]Handle, 0, len(els))
	for _, el := range els {
		handles = append(handles, rodHandle{el: el, timeout: timeout})
	}
	return handles
}

func (p *rodPage) Count(selector string) (int, error) {
	var n int
	err := p.bounded(func(page *rod.Page) error {
		res, err := page.Eval(`(sel) => document.querySelectorAll(sel).length`, selector)
		if err != nil {
			return err
		}
		n = res.Value.Int()
		return nil
	})
	return n, err
}

func (p *rodPage) Click(selector string) error {
	return p.bounded(func(page *rod.Page) error {
		el, err := page.Element(selector)
		if err != nil {
			return err
		}
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (p *rodPage) WaitStable(timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	page := p.page.Timeout(timeout)
	defer page.CancelTimeout()
	return page.WaitStable(quietWindow)
}

func (p *rodPage) Observe(selector string, fn func()) (func() error, error) {
	name := nextBindingName()
	g := &gate{fn: fn}
	stopExpose, err := p.page.Expose(name, func(gson.JSON) (interface{}, error) {
		g.fire()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	res, err := p.page.Eval(observerScript(name, selector))
	if err != nil {
		_ = stopExpose()
		return nil, err
	}
	if !res.Value.Bool() {
		_ = stopExpose()
		return nil, fmt.Errorf("observe: no element matches %q", selector)
	}
	return func() error {
		g.close()
		_, err := p.page.Eval(disconnectScript(name))
		if stopErr := stopExpose(); err == nil {
			err = stopErr
		}
		return err
	}, nil
}

func (p *rodPage) Content() (string, error) {
	var html string
	err := p.bounded(func(page *rod.Page) error {
		var err error
		html, err = page.HTML()
		return err
	})
	return html, err
}

func (p *rodPage) SetTimeout(ms int) error {
	if ms <= 0 {
		return nil
	}
	p.timeout = time.Duration(ms) * time.Millisecond
	return nil
}

func (p *rodPage) Eval(js string) (json.RawMessage, error) {
	var out json.RawMessage
	err := p.bounded(func(page *rod.Page) error {
		res, err := page.Eval(js)
		if err != nil {
			return err
		}
		out, err = json.Marshal(res.Value)
		return err
	})
	return out, err
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Title() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
