// Package sinks implements concrete progress consumers: Prometheus metrics,
// the ingest run history store, and structured logging. Each sink satisfies
// the progress.Sink interface.
package sinks
