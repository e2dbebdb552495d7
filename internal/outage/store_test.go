package outage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "outages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outages.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestActiveOutagesWindowPredicate(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(&Outage{
		Timestamp: storeNow.Add(-time.Hour), StationID: "STN1", Type: "line",
	}))
	// Boundary: started exactly at asOf is still included.
	require.NoError(t, store.Add(&Outage{
		Timestamp: storeNow, StationID: "STN2", Type: "transformer",
	}))
	// Starts after asOf: excluded.
	require.NoError(t, store.Add(&Outage{
		Timestamp: storeNow.Add(time.Minute), StationID: "STN3", Type: "line",
	}))
	// Resolved: excluded regardless of start time.
	resolvedAt := storeNow.Add(-30 * time.Minute)
	require.NoError(t, store.Add(&Outage{
		Timestamp: storeNow.Add(-2 * time.Hour), StationID: "STN4", Type: "breaker",
		Resolved: true, ResolvedTime: &resolvedAt,
	}))

	active, err := store.ActiveOutages(context.Background(), storeNow)
	require.NoError(t, err)
	require.Len(t, active, 2)

	stations := []string{active[0].StationID, active[1].StationID}
	assert.ElementsMatch(t, []string{"STN1", "STN2"}, stations)
}

func TestResolvedOutagesWindowInclusive(t *testing.T) {
	store := newTestStore(t)
	start := storeNow.Add(-time.Hour)

	add := func(station string, resolvedAt time.Time) {
		store.Add(&Outage{
			Timestamp: resolvedAt.Add(-time.Hour), StationID: station, Type: "line",
			Resolved: true, ResolvedTime: &resolvedAt,
		})
	}
	add("EDGE_START", start)                    // on the lower boundary
	add("EDGE_END", storeNow)                   // on the upper boundary
	add("INSIDE", storeNow.Add(-30*time.Minute))
	add("BEFORE", start.Add(-time.Minute))
	add("AFTER", storeNow.Add(time.Minute))

	// Unresolved records never appear in the resolved window.
	require.NoError(t, store.Add(&Outage{
		Timestamp: start, StationID: "OPEN", Type: "line",
	}))

	resolved, err := store.ResolvedOutages(context.Background(), start, storeNow)
	require.NoError(t, err)
	require.Len(t, resolved, 3)

	stations := make([]string, len(resolved))
	for i, o := range resolved {
		stations[i] = o.StationID
	}
	assert.ElementsMatch(t, []string{"EDGE_START", "EDGE_END", "INSIDE"}, stations)
}

func TestOutagesByStation(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(&Outage{Timestamp: storeNow, StationID: "STN1", Type: "line"}))
	require.NoError(t, store.Add(&Outage{Timestamp: storeNow.Add(-time.Hour), StationID: "STN1", Type: "transformer"}))
	require.NoError(t, store.Add(&Outage{Timestamp: storeNow, StationID: "STN2", Type: "line"}))

	outages, err := store.OutagesByStation(context.Background(), "STN1")
	require.NoError(t, err)
	require.Len(t, outages, 2)
	// Ordered newest first.
	assert.Equal(t, "line", outages[0].Type)
	assert.Equal(t, "transformer", outages[1].Type)
}

func TestLoadCSVFullColumns(t *testing.T) {
	store := newTestStore(t)

	path := writeCSV(t, `timestamp,station_id,type,duration_min,crew_notes,resolved,resolved_time
2024-03-01 10:00:00,STN1,line,45,tree contact,false,
2024-03-01 08:00:00,STN2,transformer,120,swapped unit,true,2024-03-01 10:00:00
`)

	loaded, err := store.LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	active, err := store.ActiveOutages(context.Background(), storeNow)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "STN1", active[0].StationID)
	assert.Equal(t, "tree contact", active[0].CrewNotes)
	assert.Equal(t, 45, active[0].DurationMin)

	resolved, err := store.ResolvedOutages(context.Background(), storeNow.Add(-6*time.Hour), storeNow)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "STN2", resolved[0].StationID)
	require.NotNil(t, resolved[0].ResolvedTime)
}

func TestLoadCSVMinimalColumns(t *testing.T) {
	store := newTestStore(t)

	path := writeCSV(t, `timestamp,station_id,type,duration_min
2024-03-01T10:00:00Z,STN1,line,30
2024-03-01,STN2,breaker,15
`)

	loaded, err := store.LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	active, err := store.ActiveOutages(context.Background(), storeNow)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	for _, o := range active {
		assert.False(t, o.Resolved)
		assert.Nil(t, o.ResolvedTime)
		assert.Empty(t, o.CrewNotes)
	}
}

func TestLoadCSVMissingRequiredColumn(t *testing.T) {
	store := newTestStore(t)

	path := writeCSV(t, `timestamp,station_id,duration_min
2024-03-01 10:00:00,STN1,45
`)

	_, err := store.LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"type"`)
}

func TestLoadCSVRejectsBadTimestamp(t *testing.T) {
	store := newTestStore(t)

	path := writeCSV(t, `timestamp,station_id,type,duration_min
01/03/2024 10:00,STN1,line,45
`)

	_, err := store.LoadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timestamp")
}

func TestOutageKeyDeduplicationIdentity(t *testing.T) {
	a := Outage{StationID: "STN1", Type: "line", DurationMin: 10}
	b := Outage{StationID: "STN1", Type: "line", DurationMin: 99}
	c := Outage{StationID: "STN1", Type: "transformer"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
