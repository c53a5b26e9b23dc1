// Package pipeline drives the resumable ingest loop. Identifiers are processed
// one at a time in ascending order; each identifier's outcome is committed
// before the checkpoint moves past it, so a run can be killed and restarted
// at any point.
package pipeline
