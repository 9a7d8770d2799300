package metrics

import "sort"

// ErrorBucket is the failure count for one source and error label.
type ErrorBucket struct {
	Source string `json:"source" yaml:"source"`
	Label  string `json:"label" yaml:"label"`
	Count  int    `json:"count" yaml:"count"`
}

// FlattenErrorBuckets converts a nested source->label map into rows sorted by
// descending count, then by source and label for stability.
func FlattenErrorBuckets(buckets map[string]map[string]int) []ErrorBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]ErrorBucket, 0)
	for source, labels := range buckets {
		for label, count := range labels {
			rows = append(rows, ErrorBucket{Source: source, Label: label, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Source == rows[j].Source {
				return rows[i].Label < rows[j].Label
			}
			return rows[i].Source < rows[j].Source
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
