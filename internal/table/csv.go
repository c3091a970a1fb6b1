package table

import (
	"bytes"
	"encoding/csv"
)

// EncodeCSV joins cells with commas and rows with newlines, without a
// trailing newline. Plain cells are written verbatim; cells holding a comma,
// quote or line break are quoted.
func EncodeCSV(t Table) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// bytes.Buffer writes cannot fail, and every record is well formed.
	_ = w.WriteAll(t.Records())
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

func ParseCSV(data []byte) (Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return Table{}, err
	}
	return FromRecords(records)
}
