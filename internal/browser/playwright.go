package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightEngine struct{}

func (p PlaywrightEngine) Start(opts StartOptions) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	bt, err := browserType(pw, opts.Browser)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	}
	browser, err := bt.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	ctxOpts := playwright.BrowserNewContextOptions{AcceptDownloads: playwright.Bool(true)}
	if opts.StorageIn != "" {
		if _, err := os.Stat(opts.StorageIn); err == nil {
			ctxOpts.StorageStatePath = playwright.String(opts.StorageIn)
		}
	}
	ctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, err
	}
	return &playwrightSession{pw: pw, browser: browser, ctx: ctx}, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	ctx     playwright.BrowserContext
}

func (s *playwrightSession) NewPage() (Page, error) {
	page, err := s.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) StorageState(path string) error {
	_, err := s.ctx.StorageState(path)
	return err
}

func (s *playwrightSession) Close() error {
	if s.ctx != nil {
		_ = s.ctx.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pw != nil {
		s.pw.Stop()
	}
	return nil
}

type playwrightPage struct {
	page playwright.Page
}

type playwrightHandle struct {
	loc playwright.Locator
}

func (h playwrightHandle) Activate() error {
	return h.loc.Click()
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad})
	return err
}

func (p *playwrightPage) Handles(selector string) ([]Handle, error) {
	loc := p.page.Locator(selector)
	n, err := loc.Count()
	if err != nil {
		return nil, err
	}
	handles := make([]Handle, 0, n)
	for i := 0; i < n; i++ {
		handles = append(handles, playwrightHandle{loc: loc.Nth(i)})
	}
	return handles, nil
}

func (p *playwrightPage) Count(selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) Click(selector string) error {
	return p.page.Locator(selector).First().Click()
}

// WaitStable resolves once the document has gone quietWindow without a
// mutation, and fails if that does not happen within timeout.
func (p *playwrightPage) WaitStable(timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	_, err := p.page.Evaluate(quietScript, map[string]interface{}{
		"quietMs":   quietWindow.Milliseconds(),
		"timeoutMs": timeout.Milliseconds(),
	})
	return err
}

func (p *playwrightPage) Observe(selector string, fn func()) (func() error, error) {
	name := nextBindingName()
	g := &gate{fn: fn}
	if err := p.page.ExposeFunction(name, func(args ...interface{}) interface{} {
		g.fire()
		return nil
	}); err != nil {
		return nil, err
	}
	ok, err := p.page.Evaluate(observerScript(name, selector))
	if err != nil {
		return nil, err
	}
	if attached, _ := ok.(bool); !attached {
		return nil, fmt.Errorf("observe: no element matches %q", selector)
	}
	return func() error {
		g.close()
		_, err := p.page.Evaluate(disconnectScript(name))
		return err
	}, nil
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) SetTimeout(ms int) error {
	if ms <= 0 {
		return nil
	}
	p.page.SetDefaultTimeout(float64(ms))
	return nil
}

func (p *playwrightPage) Eval(js string) (json.RawMessage, error) {
	v, err := p.page.Evaluate(js)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (p *playwrightPage) URL() (string, error) {
	return p.page.URL(), nil
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "chromium", "":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, errors.New("unknown browser: " + name)
	}
}
