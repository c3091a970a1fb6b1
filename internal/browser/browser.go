package browser

import (
	"encoding/json"
	"time"
)

const (
	EnginePlaywright = "playwright"
	EngineRod        = "rod"
)

type StartOptions struct {
	Browser   string
	Channel   string
	Headless  bool
	StorageIn string
}

type Engine interface {
	Start(opts StartOptions) (Session, error)
}

type Session interface {
	NewPage() (Page, error)
	Close() error
	StorageState(path string) error
}

// Page is the live document the extraction runs against.
type Page interface {
	Goto(url string) error
	// Handles returns the elements matching selector in document order.
	// They are only valid until the page re-renders.
	Handles(selector string) ([]Handle, error)
	Count(selector string) (int, error)
	Click(selector string) error
	// WaitStable blocks until the page has gone quiet or timeout elapses.
	WaitStable(timeout time.Duration) error
	// Observe calls fn whenever the subtree under selector changes. The
	// returned stop func detaches the observer.
	Observe(selector string, fn func()) (stop func() error, err error)
	Content() (string, error)
	SetTimeout(ms int) error
	Eval(js string) (json.RawMessage, error)
	URL() (string, error)
	Title() (string, error)
	Close() error
}

type Handle interface {
	Activate() error
}

// EngineByName maps a profile's engine name to an implementation.
func EngineByName(name string) (Engine, error) {
	switch name {
	case EnginePlaywright, "":
		return PlaywrightEngine{}, nil
	case EngineRod:
		return RodEngine{}, nil
	default:
		return nil, &UnknownEngineError{Name: name}
	}
}

type UnknownEngineError struct {
	Name string
}

func (e *UnknownEngineError) Error() string {
	return "unknown engine: " + e.Name
}
