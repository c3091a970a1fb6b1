package daemon

import (
	"errors"
	"fmt"
	"testing"

	"github.com/patrickjm/staffcount/internal/export"
	"github.com/patrickjm/staffcount/internal/extract"
)

func TestErrorKindRoundTrip(t *testing.T) {
	for _, target := range []error{extract.ErrSlotCountMismatch, extract.ErrIndicatorQuery, extract.ErrNavigationTimeout, export.ErrSave} {
		err := fmt.Errorf("sampling Monday: %w", target)
		kind := kindOf(err)
		if kind == "" {
			t.Fatalf("no kind for %v", target)
		}
		back := errorFromResponse(&RespError{Message: err.Error(), Kind: kind})
		if !errors.Is(back, target) {
			t.Fatalf("kind %s lost sentinel %v", kind, target)
		}
		if back.Error() != err.Error() {
			t.Fatalf("message changed: %q", back.Error())
		}
	}
	plain := errorFromResponse(&RespError{Message: "tab not found"})
	if plain.Error() != "tab not found" || kindOf(plain) != "" {
		t.Fatalf("unexpected plain error: %v", plain)
	}
}
