package daemon

import (
	"encoding/json"

	"github.com/patrickjm/staffcount/internal/extract"
	"github.com/patrickjm/staffcount/internal/table"
)

type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RespError      `json:"error,omitempty"`
}

type RespError struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type TabInfo struct {
	ID     int    `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

type StatusResult struct {
	Profile string    `json:"profile"`
	Tabs    []TabInfo `json:"tabs"`
}

type TabNewParams struct {
	URL string `json:"url,omitempty"`
}

type GotoParams struct {
	Tab       int    `json:"tab"`
	URL       string `json:"url"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

type ProbeParams struct {
	Tab       int               `json:"tab"`
	Selectors extract.Selectors `json:"selectors"`
	TimeoutMs int               `json:"timeout_ms,omitempty"`
}

type ProbeResult struct {
	extract.ProbeResult
	Ready    bool     `json:"ready"`
	Problems []string `json:"problems,omitempty"`
}

// RunParams drive both Day and Week. Path is the export target and must be
// absolute; the daemon's working directory is not the caller's.
type RunParams struct {
	Tab          int               `json:"tab"`
	Path         string            `json:"path"`
	Selectors    extract.Selectors `json:"selectors"`
	StableMs     int               `json:"stable_ms,omitempty"`
	SettleMs     int               `json:"settle_ms,omitempty"`
	NavTimeoutMs int               `json:"nav_timeout_ms,omitempty"`
	NoPrime      bool              `json:"no_prime,omitempty"`
	TimeoutMs    int               `json:"timeout_ms,omitempty"`
}

type RunResult struct {
	Path  string      `json:"path"`
	Rows  int         `json:"rows"`
	Table table.Table `json:"table"`
}

type EvalParams struct {
	Tab       int    `json:"tab"`
	JS        string `json:"js"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}
