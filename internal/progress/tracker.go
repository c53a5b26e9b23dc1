package progress

import (
	"fmt"
	"time"
)

// Snapshot is the projected state of a run after one item.
type Snapshot struct {
	// Index is the 1-based position of the item just finished.
	Index     int
	Total     int
	Elapsed   time.Duration
	Average   time.Duration
	Remaining int
	ETA       time.Duration
}

// Percent is the share of the run that is done.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 100
	}
	return float64(s.Index) / float64(s.Total) * 100
}

// Tracker keeps the running mean of item latencies. It is not safe for
// concurrent use; the driver owns it.
type Tracker struct {
	total int
	done  int
	sum   time.Duration
}

// NewTracker starts tracking a run of total items.
func NewTracker(total int) *Tracker {
	return &Tracker{total: total}
}

// Observe records one finished item and returns the projection.
func (t *Tracker) Observe(elapsed time.Duration) Snapshot {
	if elapsed < 0 {
		elapsed = 0
	}
	t.done++
	t.sum += elapsed
	avg := t.sum / time.Duration(t.done)
	remaining := t.total - t.done
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		Index:     t.done,
		Total:     t.total,
		Elapsed:   elapsed,
		Average:   avg,
		Remaining: remaining,
		ETA:       avg * time.Duration(remaining),
	}
}

// FormatETA renders d as H:MM:SS, truncated to whole seconds. Negative
// durations render as "0s".
func FormatETA(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
