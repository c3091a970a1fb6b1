// Package table holds the hour-by-row staff count table and its encodings.
package table

import (
	"errors"
	"fmt"
	"strconv"
)

// Hours is the number of hour slots sampled per row.
const Hours = 24

var ErrRowWidth = errors.New("row must have one count per hour")

type Row struct {
	Label  string `json:"label"`
	Counts []int  `json:"counts"`
}

// Table is a header label followed by rows of 24 hourly counts. The header
// row itself is implied: Label then "00:00".."23:00".
type Table struct {
	Label string `json:"label"`
	Rows  []Row  `json:"rows"`
}

func New(label string) Table {
	return Table{Label: label}
}

func HourLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

func (t *Table) Append(label string, counts []int) error {
	if len(counts) != Hours {
		return fmt.Errorf("%w: %q has %d", ErrRowWidth, label, len(counts))
	}
	cp := make([]int, Hours)
	copy(cp, counts)
	t.Rows = append(t.Rows, Row{Label: label, Counts: cp})
	return nil
}

// Len counts rows including the header.
func (t Table) Len() int {
	return len(t.Rows) + 1
}

func (t Table) Header() []string {
	header := make([]string, 0, Hours+1)
	header = append(header, t.Label)
	for h := 0; h < Hours; h++ {
		header = append(header, HourLabel(h))
	}
	return header
}

// Records renders the table as rows of exactly 25 cells, header first.
func (t Table) Records() [][]string {
	records := make([][]string, 0, t.Len())
	records = append(records, t.Header())
	for _, row := range t.Rows {
		cells := make([]string, 0, Hours+1)
		cells = append(cells, row.Label)
		for _, c := range row.Counts {
			cells = append(cells, strconv.Itoa(c))
		}
		records = append(records, cells)
	}
	return records
}

// FromRecords rebuilds a table from rendered records.
func FromRecords(records [][]string) (Table, error) {
	if len(records) == 0 {
		return Table{}, errors.New("missing header row")
	}
	header := records[0]
	if len(header) != Hours+1 {
		return Table{}, fmt.Errorf("%w: header has %d cells", ErrRowWidth, len(header))
	}
	for h := 0; h < Hours; h++ {
		if header[h+1] != HourLabel(h) {
			return Table{}, fmt.Errorf("header cell %d: want %s, got %q", h+1, HourLabel(h), header[h+1])
		}
	}
	t := New(header[0])
	for i, rec := range records[1:] {
		if len(rec) != Hours+1 {
			return Table{}, fmt.Errorf("%w: row %d has %d cells", ErrRowWidth, i+1, len(rec))
		}
		counts := make([]int, Hours)
		for h := 0; h < Hours; h++ {
			n, err := strconv.Atoi(rec[h+1])
			if err != nil {
				return Table{}, fmt.Errorf("row %d hour %d: %w", i+1, h, err)
			}
			counts[h] = n
		}
		if err := t.Append(rec[0], counts); err != nil {
			return Table{}, err
		}
	}
	return t, nil
}
