package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/patrickjm/staffcount/internal/table"
)

const (
	DayHeader = "Index"
	DayRow    = "Amount"
)

// RunDay samples the displayed day once and returns a header plus a single
// "Amount" row.
func RunDay(ctx context.Context, s Sampler) (table.Table, error) {
	t := table.New(DayHeader)
	counts, err := s.Sample(ctx)
	if err != nil {
		return table.Table{}, err
	}
	if err := t.Append(DayRow, counts); err != nil {
		return table.Table{}, err
	}
	s.logger().Info("day sampled", zap.Ints("counts", counts))
	return t, nil
}
