package stats

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreBumpAccumulates(t *testing.T) {
	var s = mustOpen(t)

	require.NoError(t, s.Bump("q1", 5, "transport_units"))
	require.NoError(t, s.Bump("q1", 3, "transport_units"))
	require.NoError(t, s.Bump("q2", 1, "orders_report"))

	records, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(8), records["q1"].Count)
	require.Equal(t, "transport_units", records["q1"].ProcessedTable)
	require.Equal(t, int64(1), records["q2"].Count)
	require.NotEmpty(t, records["q1"].Timestamp)
}

func TestStoreClear(t *testing.T) {
	var s = mustOpen(t)

	require.NoError(t, s.Bump("q1", 5, "transport_units"))
	require.NoError(t, s.Clear())

	records, err := s.LoadAll()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStoreSurvivesReopen(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "logging", "processed_messages.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Bump("q1", 2, "sales_plan"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.LoadAll()
	require.NoError(t, err)
	require.Equal(t, int64(2), records["q1"].Count)
}

func TestDayLatch(t *testing.T) {
	var boundary, err = time.Parse("15:04", "19:58")
	require.NoError(t, err)
	var latch = NewDayLatch(boundary, time.UTC)

	var day = func(hour, minute int) time.Time {
		return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
	}

	require.False(t, latch.Due(day(10, 0)))
	require.False(t, latch.Due(day(19, 57)))
	require.True(t, latch.Due(day(19, 58)))

	// Fires at most once per arming cycle.
	require.False(t, latch.Due(day(20, 30)))
	require.False(t, latch.Due(day(23, 59)))

	// The next morning re-arms, the next boundary crossing fires.
	require.False(t, latch.Due(day(9, 0).AddDate(0, 0, 1)))
	require.True(t, latch.Due(day(21, 0).AddDate(0, 0, 1)))
}

func TestDayLatchRestartAfterBoundary(t *testing.T) {
	var boundary, err = time.Parse("15:04", "19:58")
	require.NoError(t, err)

	// A process started after today's boundary must not fire until it
	// has seen a pre-boundary tick; otherwise every evening restart
	// re-emits the rollup and wipes the counters.
	var latch = NewDayLatch(boundary, time.UTC)
	var start = time.Date(2024, 5, 1, 20, 30, 0, 0, time.UTC)

	require.False(t, latch.Due(start))
	require.False(t, latch.Due(start.Add(time.Hour)))

	require.False(t, latch.Due(start.AddDate(0, 0, 1).Add(-11*time.Hour)))
	require.True(t, latch.Due(start.AddDate(0, 0, 1)))
}

func mustOpen(t *testing.T) *Store {
	t.Helper()
	var s, err = Open(filepath.Join(t.TempDir(), "processed_messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
