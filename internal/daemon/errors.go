package daemon

import (
	"errors"

	"github.com/patrickjm/staffcount/internal/export"
	"github.com/patrickjm/staffcount/internal/extract"
)

var kinds = map[string]error{
	"slot_count_mismatch": extract.ErrSlotCountMismatch,
	"indicator_query":     extract.ErrIndicatorQuery,
	"navigation_timeout":  extract.ErrNavigationTimeout,
	"save":                export.ErrSave,
	"unsupported_format":  export.ErrUnsupportedFormat,
}

func kindOf(err error) string {
	for kind, target := range kinds {
		if errors.Is(err, target) {
			return kind
		}
	}
	return ""
}

// remoteError carries a daemon failure back to the caller, keeping the
// sentinel so errors.Is works on the client side.
type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.kind
}

func errorFromResponse(resp *RespError) error {
	if target, ok := kinds[resp.Kind]; ok {
		return &remoteError{msg: resp.Message, kind: target}
	}
	return errors.New(resp.Message)
}
