package home

import (
	"context"
	"testing"
	"time"

	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/record"
	"github.com/trailmark-app/trailmark/internal/store"
)

// countingSpotSource wraps a fixed spot list and counts queries.
type countingSpotSource struct {
	spots []record.Spot
	calls int
}

func (s *countingSpotSource) Spots(context.Context, string) ([]record.Spot, error) {
	s.calls++
	return s.spots, nil
}

func TestResolvePrefersStoredHome(t *testing.T) {
	ctx := context.Background()
	es := store.NewEntityStore(store.NewMemory())
	stored := geo.Coordinate{Lat: 48.85, Lng: 2.35}
	if err := es.SetHomeLocation(ctx, stored); err != nil {
		t.Fatalf("SetHomeLocation: %v", err)
	}

	spots := &countingSpotSource{spots: []record.Spot{
		{Name: "Cafe", Coord: geo.Coordinate{Lat: 1, Lng: 1}, VisitCount: 50},
	}}
	e := NewEstimator(es, spots, nil)

	got, err := e.Resolve(ctx, "owner")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || *got != stored {
		t.Errorf("Resolve = %v, want stored home %v", got, stored)
	}
	if spots.calls != 0 {
		t.Errorf("stored home must short-circuit the spot query, got %d calls", spots.calls)
	}
}

func TestResolveFallsBackToMostVisited(t *testing.T) {
	ctx := context.Background()
	es := store.NewEntityStore(store.NewMemory())
	now := time.Now()

	spots := &countingSpotSource{spots: []record.Spot{
		{Name: "Cafe", Coord: geo.Coordinate{Lat: 1, Lng: 1}, VisitCount: 3, LastVisitedAt: now.Add(-time.Hour)},
		{Name: "Park", Coord: geo.Coordinate{Lat: 2, Lng: 2}, VisitCount: 9, LastVisitedAt: now.Add(-48 * time.Hour)},
		{Name: "Gym", Coord: geo.Coordinate{Lat: 3, Lng: 3}, VisitCount: 9, LastVisitedAt: now.Add(-time.Hour)},
	}}
	e := NewEstimator(es, spots, nil)

	got, err := e.Resolve(ctx, "owner")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Gym wins: tied on visits with Park, more recent.
	want := geo.Coordinate{Lat: 3, Lng: 3}
	if got == nil || *got != want {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveCachesForSession(t *testing.T) {
	ctx := context.Background()
	es := store.NewEntityStore(store.NewMemory())
	spots := &countingSpotSource{spots: []record.Spot{
		{Name: "Cafe", Coord: geo.Coordinate{Lat: 1, Lng: 1}, VisitCount: 2},
	}}
	e := NewEstimator(es, spots, nil)

	for i := 0; i < 5; i++ {
		if _, err := e.Resolve(ctx, "owner"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if spots.calls != 1 {
		t.Errorf("Resolve queried spots %d times, want 1 (session cache)", spots.calls)
	}

	e.Invalidate()
	if _, err := e.Resolve(ctx, "owner"); err != nil {
		t.Fatalf("Resolve after Invalidate: %v", err)
	}
	if spots.calls != 2 {
		t.Errorf("Invalidate must force a re-resolve, got %d calls", spots.calls)
	}
}

func TestResolveNoHomeDerivable(t *testing.T) {
	ctx := context.Background()
	es := store.NewEntityStore(store.NewMemory())
	spots := &countingSpotSource{}
	e := NewEstimator(es, spots, nil)

	got, err := e.Resolve(ctx, "owner")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != nil {
		t.Errorf("Resolve = %v, want nil when nothing is derivable", got)
	}
	// The absence is cached too.
	if _, err := e.Resolve(ctx, "owner"); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if spots.calls != 1 {
		t.Errorf("absence must be cached, got %d spot queries", spots.calls)
	}
}

func TestSetHomeUpdatesCache(t *testing.T) {
	ctx := context.Background()
	es := store.NewEntityStore(store.NewMemory())
	spots := &countingSpotSource{}
	e := NewEstimator(es, spots, nil)

	coord := geo.Coordinate{Lat: 51.5, Lng: -0.12}
	if err := e.SetHome(ctx, coord); err != nil {
		t.Fatalf("SetHome: %v", err)
	}
	got, err := e.Resolve(ctx, "owner")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || *got != coord {
		t.Errorf("Resolve = %v, want %v", got, coord)
	}
	// And it is persisted, not just cached.
	stored, err := es.HomeLocation(ctx)
	if err != nil {
		t.Fatalf("HomeLocation: %v", err)
	}
	if stored == nil || *stored != coord {
		t.Errorf("stored home = %v, want %v", stored, coord)
	}
}
