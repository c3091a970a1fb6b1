package browser

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

type FakeEngine struct {
	Session *FakeSession
}

func (f *FakeEngine) Start(opts StartOptions) (Session, error) {
	if f.Session == nil {
		f.Session = &FakeSession{}
	}
	return f.Session, nil
}

type FakeSession struct {
	Pages       []*FakePage
	Closed      bool
	StoragePath string
	// Template, when set, seeds every new page.
	Template *FakePage
}

func (s *FakeSession) NewPage() (Page, error) {
	page := &FakePage{}
	if s.Template != nil {
		page.Slots = s.Template.Slots
		page.Days = s.Template.Days
		page.HTML = s.Template.HTML
		page.NextSelector = s.Template.NextSelector
	}
	s.Pages = append(s.Pages, page)
	return page, nil
}

func (s *FakeSession) Close() error {
	s.Closed = true
	return nil
}

func (s *FakeSession) StorageState(path string) error {
	s.StoragePath = path
	return nil
}

// FakePage simulates a schedule page. Days holds one row of indicator counts
// per displayed day; activating slot h on the current day makes Count report
// Days[day][h]. Clicking NextSelector advances the day and, unless
// SilentNext is set, notifies observers.
type FakePage struct {
	mu sync.Mutex

	URLValue     string
	TitleValue   string
	HTML         string
	Slots        int
	Days         [][]int
	NextSelector string
	SilentNext   bool
	CountErr     error
	HandlesErr   error
	// DeferredSelect holds an activation back until the next WaitStable,
	// like a page that renders the click's effect asynchronously.
	DeferredSelect bool
	// SpuriousOnObserve fires the observer once as soon as it attaches.
	SpuriousOnObserve bool

	Day        int
	Selected   int
	Activated  []int
	Clicks     []string
	Stables    int
	EvalResult json.RawMessage
	TimeoutMs  int
	Closed     bool
	Observers  int
	Stopped    int

	observers map[int]func()
	nextObs   int
	pending   int
	isPending bool
}

type fakeHandle struct {
	page *FakePage
	hour int
}

func (h fakeHandle) Activate() error {
	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	if h.page.DeferredSelect {
		h.page.pending = h.hour
		h.page.isPending = true
	} else {
		h.page.Selected = h.hour
	}
	h.page.Activated = append(h.page.Activated, h.hour)
	return nil
}

func (p *FakePage) Goto(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.URLValue = url
	return nil
}

func (p *FakePage) Handles(_ string) ([]Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.HandlesErr != nil {
		return nil, p.HandlesErr
	}
	handles := make([]Handle, 0, p.Slots)
	for i := 0; i < p.Slots; i++ {
		handles = append(handles, fakeHandle{page: p, hour: i})
	}
	return handles, nil
}

func (p *FakePage) Count(_ string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CountErr != nil {
		return 0, p.CountErr
	}
	if p.Day >= len(p.Days) || p.Selected >= len(p.Days[p.Day]) {
		return 0, nil
	}
	return p.Days[p.Day][p.Selected], nil
}

func (p *FakePage) Click(selector string) error {
	p.mu.Lock()
	p.Clicks = append(p.Clicks, selector)
	if p.NextSelector == "" || selector != p.NextSelector {
		p.mu.Unlock()
		return nil
	}
	p.Day++
	notify := !p.SilentNext
	fns := p.observerFuncsLocked()
	p.mu.Unlock()
	if notify {
		for _, fn := range fns {
			fn()
		}
	}
	return nil
}

func (p *FakePage) WaitStable(_ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Stables++
	if p.isPending {
		p.Selected = p.pending
		p.isPending = false
	}
	return nil
}

func (p *FakePage) Observe(_ string, fn func()) (func() error, error) {
	p.mu.Lock()
	if p.observers == nil {
		p.observers = make(map[int]func())
	}
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.Observers++
	spurious := p.SpuriousOnObserve
	p.mu.Unlock()
	if spurious {
		fn()
	}
	return func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.observers, id)
		p.Stopped++
		return nil
	}, nil
}

// Notify fires every attached observer, as a page re-render would.
func (p *FakePage) Notify() {
	p.mu.Lock()
	fns := p.observerFuncsLocked()
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *FakePage) observerFuncsLocked() []func() {
	fns := make([]func(), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	return fns
}

func (p *FakePage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTML, nil
}

func (p *FakePage) SetTimeout(ms int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TimeoutMs = ms
	return nil
}

func (p *FakePage) Eval(js string) (json.RawMessage, error) {
	if p.EvalResult == nil {
		return nil, errors.New("no eval result")
	}
	return p.EvalResult, nil
}

func (p *FakePage) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URLValue, nil
}

func (p *FakePage) Title() (string, error) {
	return p.TitleValue, nil
}

func (p *FakePage) Close() error {
	p.Closed = true
	return nil
}
