package feeder

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVFeeder serves roster rows from a CSV document. The first row names
// the fields.
type CSVFeeder struct {
	sliceFeeder
}

// ReadCSV parses a roster from r. Header names and values are trimmed.
func ReadCSV(r io.Reader) (*CSVFeeder, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV roster is empty")
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV roster must have a header row and at least one data row")
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if header[i] == "" {
			return nil, fmt.Errorf("CSV header column %d is blank", i+1)
		}
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
		}
		record := make(Record, len(header))
		for j, field := range header {
			record[field] = strings.TrimSpace(row[j])
		}
		records = append(records, record)
	}
	return &CSVFeeder{sliceFeeder{records: records}}, nil
}
