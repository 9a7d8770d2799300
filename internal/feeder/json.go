package feeder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// JSONFeeder serves roster entries from a JSON array of objects.
type JSONFeeder struct {
	sliceFeeder
}

// ReadJSON parses a roster from r. Numbers keep their literal form, null
// becomes "", and arrays of strings (such as a roles list) are joined
// with ";".
func ReadJSON(r io.Reader) (*JSONFeeder, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var rawRecords []map[string]interface{}
	if err := decoder.Decode(&rawRecords); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(rawRecords) == 0 {
		return nil, fmt.Errorf("JSON roster contains an empty array")
	}

	records := make([]Record, 0, len(rawRecords))
	for i, raw := range rawRecords {
		if len(raw) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		record := make(Record, len(raw))
		for key, value := range raw {
			str, err := stringify(value)
			if err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", i, key, err)
			}
			record[key] = str
		}
		records = append(records, record)
	}
	return &JSONFeeder{sliceFeeder{records: records}}, nil
}

func stringify(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return fmt.Sprint(v), nil
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := stringify(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ";"), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
