package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackerProjectsRollingAverage(t *testing.T) {
	t.Parallel()

	tr := NewTracker(4)
	snap := tr.Observe(2 * time.Second)
	require.Equal(t, 1, snap.Index)
	require.Equal(t, 2*time.Second, snap.Average)
	require.Equal(t, 3, snap.Remaining)
	require.Equal(t, 6*time.Second, snap.ETA)

	snap = tr.Observe(4 * time.Second)
	require.Equal(t, 3*time.Second, snap.Average)
	require.Equal(t, 2, snap.Remaining)
	require.Equal(t, 6*time.Second, snap.ETA)
	require.InDelta(t, 50.0, snap.Percent(), 1e-9)

	tr.Observe(time.Second)
	snap = tr.Observe(time.Second)
	require.Zero(t, snap.Remaining)
	require.Zero(t, snap.ETA)
}

func TestFormatETA(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want string
	}{
		{in: -time.Second, want: "0s"},
		{in: 0, want: "0:00:00"},
		{in: 59*time.Second + 900*time.Millisecond, want: "0:00:59"},
		{in: time.Hour + 2*time.Minute + 3*time.Second, want: "1:02:03"},
		{in: 27 * time.Hour, want: "27:00:00"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatETA(tc.in), tc.in.String())
	}
}
