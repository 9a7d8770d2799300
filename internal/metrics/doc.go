// Package metrics aggregates enrichment lookup latency and failures.
//
// A [Collector] is shared by the Canvas client and the class directory
// during a batch run. Each lookup is recorded with its source and outcome:
//
//	collector := metrics.NewCollector()
//	collector.RecordLookup("canvas", latency, err)
//
//	stats := collector.Stats(elapsed)
//
// Latency percentiles come from an HDR histogram tracking 1µs to 60s with
// three significant figures. Failures are grouped by source and by a
// readable error label; errors that implement [Labeler] choose their own
// label.
//
// The Collector is safe for concurrent use.
package metrics
