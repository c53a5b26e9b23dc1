// Package progress reports ingest run progress. Tracker projects the remaining
// time of a run from per-item latencies; Hub batches run and item events on a
// background goroutine and fans them out to pluggable sinks such as Prometheus
// metrics, structured logs, or the run history store.
package progress
