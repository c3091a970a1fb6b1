package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickjm/staffcount/internal/browser"
	"github.com/patrickjm/staffcount/internal/export"
	"github.com/patrickjm/staffcount/internal/extract"
	"github.com/patrickjm/staffcount/internal/table"
)

// Server owns one browser session and serializes every request against it.
// Extraction runs hold the lock for their whole duration.
type Server struct {
	profile     string
	engine      browser.Engine
	storagePath string
	log         *zap.Logger
	mu          sync.Mutex
	session     browser.Session
	tabs        map[int]browser.Page
	activeTab   int
	nextTabID   int
	stop        chan struct{}
	stopOnce    sync.Once
}

func NewServer(profile string, engine browser.Engine, storagePath string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		profile:     profile,
		engine:      engine,
		storagePath: storagePath,
		log:         log.With(zap.String("profile", profile)),
		tabs:        make(map[int]browser.Page),
		nextTabID:   1,
		stop:        make(chan struct{}),
	}
}

// Init starts the browser and opens the first tab, at startURL when set.
func (s *Server) Init(opts browser.StartOptions, startURL string) error {
	session, err := s.engine.Start(opts)
	if err != nil {
		return err
	}
	s.session = session
	page, err := session.NewPage()
	if err != nil {
		return err
	}
	s.tabs[1] = page
	s.activeTab = 1
	s.nextTabID = 2
	if startURL != "" {
		if err := page.Goto(startURL); err != nil {
			s.log.Warn("start url failed", zap.String("url", startURL), zap.Error(err))
		}
	}
	s.log.Info("session started", zap.String("browser", opts.Browser), zap.Bool("headless", opts.Headless))
	return nil
}

func (s *Server) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.handleRequest(req)
		_ = enc.Encode(resp)
		if req.Method == "Stop" {
			return
		}
	}
}

func (s *Server) handleRequest(req Request) Response {
	start := time.Now()
	result, err := s.dispatch(req)
	if err != nil {
		s.log.Error("request failed", zap.String("method", req.Method), zap.Duration("took", time.Since(start)), zap.Error(err))
		return Response{ID: req.ID, Error: &RespError{Message: err.Error(), Kind: kindOf(err)}}
	}
	s.log.Debug("request done", zap.String("method", req.Method), zap.Duration("took", time.Since(start)))
	if result == nil {
		return Response{ID: req.ID}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: b}
}

func (s *Server) dispatch(req Request) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case "Status":
		return s.statusLocked()
	case "TabList":
		return s.statusLockedTabs()
	case "TabNew":
		var params TabNewParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return s.tabNewLocked(params.URL)
	case "Goto":
		var params GotoParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		return nil, s.withTabLockedTimeout(params.Tab, params.TimeoutMs, func(p browser.Page) error {
			return p.Goto(params.URL)
		})
	case "Probe":
		var params ProbeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		var result ProbeResult
		if err := s.withTabLockedTimeout(params.Tab, params.TimeoutMs, func(p browser.Page) error {
			html, err := p.Content()
			if err != nil {
				return err
			}
			res, err := extract.Probe(html, params.Selectors.WithDefaults())
			if err != nil {
				return err
			}
			result = ProbeResult{ProbeResult: res, Ready: res.Ready(), Problems: res.Problems()}
			return nil
		}); err != nil {
			return nil, err
		}
		return result, nil
	case "Day", "Week":
		var params RunParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		if !filepath.IsAbs(params.Path) {
			return nil, fmt.Errorf("export path must be absolute: %q", params.Path)
		}
		var result RunResult
		if err := s.withTabLockedTimeout(params.Tab, params.TimeoutMs, func(p browser.Page) error {
			var err error
			if req.Method == "Day" {
				result, err = s.runDay(p, params)
			} else {
				result, err = s.runWeek(p, params)
			}
			return err
		}); err != nil {
			return nil, err
		}
		return result, nil
	case "Eval":
		var params EvalParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, err
		}
		var result json.RawMessage
		if err := s.withTabLockedTimeout(params.Tab, params.TimeoutMs, func(p browser.Page) error {
			var err error
			result, err = p.Eval(params.JS)
			return err
		}); err != nil {
			return nil, err
		}
		return result, nil
	case "Stop":
		_ = s.persistStorageLocked()
		_ = s.shutdownLocked()
		s.stopOnce.Do(func() { close(s.stop) })
		s.log.Info("session stopped")
		return nil, nil
	default:
		return nil, errors.New("unknown method")
	}
}

func (s *Server) sampler(p browser.Page, params RunParams) extract.Sampler {
	return extract.Sampler{
		Page:      p,
		Selectors: params.Selectors.WithDefaults(),
		Stable:    time.Duration(params.StableMs) * time.Millisecond,
		Logger:    s.log,
	}
}

func (s *Server) runDay(p browser.Page, params RunParams) (RunResult, error) {
	t, err := extract.RunDay(context.Background(), s.sampler(p, params))
	if err != nil {
		return RunResult{}, err
	}
	if err := export.Export(export.FileSaver{}, t, params.Path); err != nil {
		return RunResult{}, err
	}
	s.log.Info("day exported", zap.String("path", params.Path))
	return RunResult{Path: params.Path, Rows: t.Len(), Table: t}, nil
}

func (s *Server) runWeek(p browser.Page, params RunParams) (RunResult, error) {
	w := extract.Week{
		Sampler:    s.sampler(p, params),
		Settle:     time.Duration(params.SettleMs) * time.Millisecond,
		NavTimeout: time.Duration(params.NavTimeoutMs) * time.Millisecond,
		Prime:      !params.NoPrime,
		Logger:     s.log.Named("week"),
		Export: func(t table.Table) error {
			return export.Export(export.FileSaver{}, t, params.Path)
		},
		OnState: func(state extract.State, day int) {
			s.log.Debug("week transition", zap.Stringer("state", state), zap.Int("day", day))
		},
	}
	t, err := w.Run(context.Background())
	if err != nil {
		return RunResult{}, err
	}
	s.log.Info("week exported", zap.String("path", params.Path))
	return RunResult{Path: params.Path, Rows: t.Len(), Table: t}, nil
}

func (s *Server) statusLocked() (StatusResult, error) {
	tabs, err := s.statusLockedTabs()
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Profile: s.profile, Tabs: tabs}, nil
}

func (s *Server) statusLockedTabs() ([]TabInfo, error) {
	infos := make([]TabInfo, 0, len(s.tabs))
	for id, page := range s.tabs {
		url, _ := page.URL()
		title, _ := page.Title()
		infos = append(infos, TabInfo{ID: id, URL: url, Title: title, Active: id == s.activeTab})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

func (s *Server) tabNewLocked(url string) (TabInfo, error) {
	page, err := s.session.NewPage()
	if err != nil {
		return TabInfo{}, err
	}
	id := s.nextTabID
	s.nextTabID++
	s.tabs[id] = page
	s.activeTab = id
	if url != "" {
		if err := page.Goto(url); err != nil {
			return TabInfo{}, err
		}
	}
	_ = s.persistStorageLocked()
	return TabInfo{ID: id, URL: url, Active: true}, nil
}

func (s *Server) withTabLocked(tab int, fn func(browser.Page) error) error {
	if tab == 0 {
		tab = s.activeTab
	}
	page, ok := s.tabs[tab]
	if !ok {
		return errors.New("tab not found")
	}
	if err := fn(page); err != nil {
		return err
	}
	return s.persistStorageLocked()
}

func (s *Server) withTabLockedTimeout(tab int, timeoutMs int, fn func(browser.Page) error) error {
	return s.withTabLocked(tab, func(p browser.Page) error {
		if timeoutMs > 0 {
			_ = p.SetTimeout(timeoutMs)
		}
		return fn(p)
	})
}

func (s *Server) persistStorageLocked() error {
	if s.storagePath == "" || s.session == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.storagePath), 0o755); err != nil {
		return err
	}
	return s.session.StorageState(s.storagePath)
}

func (s *Server) shutdownLocked() error {
	if s.session != nil {
		return s.session.Close()
	}
	return nil
}

type ServeOptions struct {
	Socket   string
	Profile  string
	Engine   browser.Engine
	Start    browser.StartOptions
	StartURL string
	Logger   *zap.Logger
}

func ServeProfile(opts ServeOptions) error {
	if err := os.MkdirAll(filepath.Dir(opts.Socket), 0o755); err != nil {
		return err
	}
	server := NewServer(opts.Profile, opts.Engine, opts.Start.StorageIn, opts.Logger)
	if err := server.Init(opts.Start, opts.StartURL); err != nil {
		return err
	}
	if err := os.RemoveAll(opts.Socket); err != nil {
		_ = server.shutdownLocked()
		return err
	}
	l, err := net.Listen("unix", opts.Socket)
	if err != nil {
		_ = server.shutdownLocked()
		return err
	}
	defer l.Close()
	go func() {
		<-server.stop
		_ = l.Close()
	}()
	return server.Serve(l)
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
