package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickjm/staffcount/internal/browser"
	"github.com/patrickjm/staffcount/internal/table"
)

type Sampler struct {
	Page      browser.Page
	Selectors Selectors
	// Stable bounds the wait for the page to settle after each activation.
	// Zero reads the count immediately.
	Stable time.Duration
	Logger *zap.Logger
}

// Sample activates the 24 hour cells of the displayed day in ascending
// order and returns the indicator count read after each one.
func (s Sampler) Sample(ctx context.Context) ([]int, error) {
	log := s.logger()
	handles, err := s.Page.Handles(s.Selectors.Slot)
	if err != nil {
		return nil, fmt.Errorf("find slots %q: %w", s.Selectors.Slot, err)
	}
	if len(handles) < table.Hours {
		return nil, fmt.Errorf("%w: found %d slots for %q, need %d", ErrSlotCountMismatch, len(handles), s.Selectors.Slot, table.Hours)
	}
	counts := make([]int, table.Hours)
	for hour := 0; hour < table.Hours; hour++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := handles[hour].Activate(); err != nil {
			return nil, fmt.Errorf("activate hour %d: %w", hour, err)
		}
		if err := s.Page.WaitStable(s.Stable); err != nil {
			return nil, fmt.Errorf("wait after hour %d: %w", hour, err)
		}
		n, err := s.Page.Count(s.Selectors.Indicator)
		if err != nil {
			return nil, fmt.Errorf("%w: hour %d: %v", ErrIndicatorQuery, hour, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: hour %d: negative count %d", ErrIndicatorQuery, hour, n)
		}
		counts[hour] = n
		log.Debug("sampled hour", zap.Int("hour", hour), zap.Int("count", n))
	}
	return counts, nil
}

func (s Sampler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
