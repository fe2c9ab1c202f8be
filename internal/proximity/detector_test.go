package proximity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailmark-app/trailmark/internal/clock"
	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/record"
	"github.com/trailmark-app/trailmark/internal/store"
)

const owner = "did:user:alice"

// metersPerDegreeLat on a 6371 km sphere.
const metersPerDegreeLat = geo.EarthRadiusMeters * 3.14159265358979 / 180

// north returns c shifted north by the given number of meters.
func north(c geo.Coordinate, meters float64) geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat + meters/metersPerDegreeLat, Lng: c.Lng}
}

// stubSource serves fixed spots and activities and counts queries.
type stubSource struct {
	spots      []record.Spot
	activities []record.Activity
	calls      int
}

func (s *stubSource) Spots(context.Context, string) ([]record.Spot, error) {
	s.calls++
	return s.spots, nil
}

func (s *stubSource) Activities(context.Context, string) ([]record.Activity, error) {
	return s.activities, nil
}

// stubHome resolves a fixed home coordinate.
type stubHome struct {
	coord *geo.Coordinate
}

func (h stubHome) Resolve(context.Context, string) (*geo.Coordinate, error) {
	return h.coord, nil
}

func newDetector(t *testing.T, source *stubSource, home *geo.Coordinate, manual *clock.Manual) (*Detector, store.KV) {
	t.Helper()
	kv := store.NewMemory()
	state, err := LoadState(context.Background(), kv)
	require.NoError(t, err)
	d := NewDetector(Config{Clock: manual}, source, stubHome{coord: home}, state)
	return d, kv
}

func TestDetectHomeSuppression(t *testing.T) {
	ctx := context.Background()
	current := geo.Coordinate{Lat: 45.0, Lng: 7.0}
	homeCoord := north(current, 400) // within 1000 m home radius
	manual := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	source := &stubSource{spots: []record.Spot{{
		ID:            "spot-1",
		Name:          "Old Cafe",
		Coord:         north(current, 200),
		LastVisitedAt: manual.Now().Add(-10 * 24 * time.Hour),
	}}}
	d, _ := newDetector(t, source, &homeCoord, manual)

	places, err := d.Detect(ctx, current, owner)
	require.NoError(t, err)
	assert.Empty(t, places, "no alerts inside the home radius")
}

func TestDetectRateLimit(t *testing.T) {
	ctx := context.Background()
	current := geo.Coordinate{Lat: 45.0, Lng: 7.0}
	manual := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	source := &stubSource{}
	d, _ := newDetector(t, source, nil, manual)

	_, err := d.Detect(ctx, current, owner)
	require.NoError(t, err)
	queriesAfterFirst := source.calls

	// A pass 10 minutes later must return empty without querying.
	manual.Advance(10 * time.Minute)
	places, err := d.Detect(ctx, current, owner)
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.Equal(t, queriesAfterFirst, source.calls, "rate-limited pass must not query the remote store")

	// After the interval elapses, queries resume.
	manual.Advance(25 * time.Minute)
	_, err = d.Detect(ctx, current, owner)
	require.NoError(t, err)
	assert.Equal(t, queriesAfterFirst+1, source.calls)
}

func TestDetectDistanceThresholds(t *testing.T) {
	current := geo.Coordinate{Lat: 45.0, Lng: 7.0}
	tenDaysAgo := -10 * 24 * time.Hour

	tests := []struct {
		name   string
		meters float64
		want   int
	}{
		{"600m outside outer threshold", 600, 0},
		{"200m qualifies", 200, 1},
		{"30m inside dead zone", 30, 0},
		{"exactly at dead zone boundary", 50, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manual := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
			source := &stubSource{spots: []record.Spot{{
				ID:            "spot-1",
				Name:          "Lookout",
				Coord:         north(current, tt.meters),
				LastVisitedAt: manual.Now().Add(tenDaysAgo),
			}}}
			d, _ := newDetector(t, source, nil, manual)

			places, err := d.Detect(context.Background(), current, owner)
			require.NoError(t, err)
			assert.Len(t, places, tt.want)
		})
	}
}

func TestDetectStaleness(t *testing.T) {
	current := geo.Coordinate{Lat: 45.0, Lng: 7.0}
	target := north(current, 200)

	tests := []struct {
		name       string
		spotAge    time.Duration
		wantPlaces int
	}{
		{"spot visited 2 days ago is too fresh", 2 * 24 * time.Hour, 0},
		{"spot visited 10 days ago qualifies", 10 * 24 * time.Hour, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manual := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
			source := &stubSource{spots: []record.Spot{{
				ID:            "spot-1",
				Name:          "Lookout",
				Coord:         target,
				LastVisitedAt: manual.Now().Add(-tt.spotAge),
			}}}
			d, _ := newDetector(t, source, nil, manual)

			places, err := d.Detect(context.Background(), current, owner)
			require.NoError(t, err)
			assert.Len(t, places, tt.wantPlaces)
		})
	}

	t.Run("activities use the longer staleness window", func(t *testing.T) {
		manual := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
		fresh := target
		start10 := manual.Now().Add(-10 * 24 * time.Hour)
		start40 := manual.Now().Add(-40 * 24 * time.Hour)
		source := &stubSource{activities: []record.Activity{
			{ID: "a-fresh", Name: "Recent Run", StartCoord: &fresh, StartTime: start10},
			{ID: "a-old", Name: "Old Run", StartCoord: &fresh, StartTime: start40},
		}}
		d, _ := newDetector(t, source, nil, manual)

		places, err := d.Detect(context.Background(), current, owner)
		require.NoError(t, err)
		require.Len(t, places, 1)
		assert.Equal(t, "a-old", places[0].ID)
		assert.Equal(t, OriginActivityStart, places[0].Origin)
	})
}

func TestDetectCooldown(t *testing.T) {
	ctx := context.Background()
	current := geo.Coordinate{Lat: 45.0, Lng: 7.0}
	manual := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	source := &stubSource{spots: []record.Spot{{
		ID:            "spot-1",
		Name:          "Lookout",
		Coord:         north(current, 200),
		LastVisitedAt: manual.Now().Add(-10 * 24 * time.Hour),
	}}}
	d, kv := newDetector(t, source, nil, manual)

	places, err := d.Detect(ctx, current, owner)
	require.NoError(t, err)
	require.Len(t, places, 1)

	require.NoError(t, d.MarkNotified(ctx, places[0]))

	// A pass past the rate limit but inside the cooldown returns nothing.
	manual.Advance(time.Hour)
	places, err = d.Detect(ctx, current, owner)
	require.NoError(t, err)
	assert.Empty(t, places, "cooldown must suppress the notified place")

	// The cooldown survives a process restart: rebuild state from the
	// same local store.
	manual.Advance(time.Hour)
	restarted, err := LoadState(ctx, kv)
	require.NoError(t, err)
	d2 := NewDetector(Config{Clock: manual}, source, stubHome{}, restarted)
	places, err = d2.Detect(ctx, current, owner)
	require.NoError(t, err)
	assert.Empty(t, places, "cooldown must survive restarts")

	// After 24h the place is eligible again.
	manual.Advance(23 * time.Hour)
	places, err = d2.Detect(ctx, current, owner)
	require.NoError(t, err)
	assert.Len(t, places, 1)
}

func TestMarkNotifiedPruneScalesWithCooldown(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	state, err := LoadState(ctx, kv)
	require.NoError(t, err)

	// Horizon is twice a 30 day cooldown; entries younger than 60 days
	// must survive pruning even though they exceed the old default window.
	horizon := 2 * 30 * 24 * time.Hour
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, state.MarkNotified(ctx, "a", t0, horizon))
	require.NoError(t, state.MarkNotified(ctx, "b", t0.Add(20*24*time.Hour), horizon))
	assert.False(t, state.LastNotified("a").IsZero(),
		"entry 20 days old must outlive a 60 day horizon")

	require.NoError(t, state.MarkNotified(ctx, "c", t0.Add(61*24*time.Hour), horizon))
	assert.True(t, state.LastNotified("a").IsZero(), "entry past the horizon is pruned")
	assert.False(t, state.LastNotified("b").IsZero(), "entry inside the horizon is kept")
}

func TestDetectEndpointSeparation(t *testing.T) {
	ctx := context.Background()
	current := geo.Coordinate{Lat: 45.0, Lng: 7.0}
	manual := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	// Start point is far from the current position; only the end point is
	// nearby. An out-and-back activity (start ≈ end) must not alert at all
	// via its end point.
	farStart := north(current, 10000)
	nearEnd := north(current, 200)
	loopEnd := north(farStart, 100) // 100 m from its own start

	source := &stubSource{activities: []record.Activity{
		{
			ID:   "a-point-to-point",
			Name: "Commute", StartCoord: &farStart, EndCoord: &nearEnd,
			StartTime: manual.Now().Add(-60 * 24 * time.Hour),
			EndTime:   manual.Now().Add(-60 * 24 * time.Hour),
		},
		{
			ID:   "a-loop",
			Name: "Loop Run", StartCoord: &farStart, EndCoord: &loopEnd,
			StartTime: manual.Now().Add(-60 * 24 * time.Hour),
			EndTime:   manual.Now().Add(-60 * 24 * time.Hour),
		},
	}}
	d, _ := newDetector(t, source, nil, manual)

	places, err := d.Detect(ctx, current, owner)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "a-point-to-point", places[0].ID)
	assert.Equal(t, OriginActivityEnd, places[0].Origin)
}

func TestDetectSortsAndCapsResults(t *testing.T) {
	ctx := context.Background()
	current := geo.Coordinate{Lat: 45.0, Lng: 7.0}
	manual := clock.NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	visited := manual.Now().Add(-10 * 24 * time.Hour)

	source := &stubSource{spots: []record.Spot{
		{ID: "d400", Name: "D", Coord: north(current, 400), LastVisitedAt: visited},
		{ID: "b150", Name: "B", Coord: north(current, 150), LastVisitedAt: visited},
		{ID: "c300", Name: "C", Coord: north(current, 300), LastVisitedAt: visited},
		{ID: "a100", Name: "A", Coord: north(current, 100), LastVisitedAt: visited},
	}}
	d, _ := newDetector(t, source, nil, manual)

	places, err := d.Detect(ctx, current, owner)
	require.NoError(t, err)
	require.Len(t, places, 3)
	assert.Equal(t, []string{"a100", "b150", "c300"}, []string{places[0].ID, places[1].ID, places[2].ID})
	assert.Less(t, places[0].DistanceMeters, places[1].DistanceMeters)
	assert.Less(t, places[1].DistanceMeters, places[2].DistanceMeters)
}
