// Package home resolves the user's home coordinate, used to suppress
// proximity alerts near the residence. Resolution prefers an explicitly
// stored home and falls back to the most-visited saved spot.
package home

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/record"
)

// HomeStore reads and writes the explicitly stored home coordinate.
type HomeStore interface {
	HomeLocation(ctx context.Context) (*geo.Coordinate, error)
	SetHomeLocation(ctx context.Context, c geo.Coordinate) error
}

// SpotSource lists the owner's saved spots for the most-visited fallback.
type SpotSource interface {
	Spots(ctx context.Context, ownerID string) ([]record.Spot, error)
}

// Estimator resolves and caches the home coordinate for a session.
// Callers resolve once per session and must not re-resolve per detection
// pass; the cache is invalidated only by an explicit update.
type Estimator struct {
	store  HomeStore
	spots  SpotSource
	logger *slog.Logger

	mu       sync.Mutex
	resolved bool
	cached   *geo.Coordinate
}

// NewEstimator creates a home-zone estimator.
func NewEstimator(store HomeStore, spots SpotSource, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{store: store, spots: spots, logger: logger}
}

// Resolve returns the home coordinate, or nil when none can be derived.
// The first successful resolution is cached for the rest of the session.
func (e *Estimator) Resolve(ctx context.Context, ownerID string) (*geo.Coordinate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolved {
		return e.cached, nil
	}

	stored, err := e.store.HomeLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored home: %w", err)
	}
	if stored != nil && stored.Valid() {
		e.cached = stored
		e.resolved = true
		e.logger.Debug("home resolved from stored coordinate",
			"geohash", geo.Encode(*stored, geo.LogPrecision))
		return e.cached, nil
	}

	spots, err := e.spots.Spots(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load spots for home fallback: %w", err)
	}
	if best := mostVisited(spots); best != nil {
		coord := best.Coord
		e.cached = &coord
		e.resolved = true
		e.logger.Debug("home inferred from most-visited spot",
			"visit_count", best.VisitCount,
			"geohash", geo.Encode(coord, geo.LogPrecision))
		return e.cached, nil
	}

	// No home derivable; cache the absence so we do not re-query per pass.
	e.resolved = true
	return nil, nil
}

// SetHome stores an explicit home coordinate and refreshes the cache.
func (e *Estimator) SetHome(ctx context.Context, c geo.Coordinate) error {
	if err := e.store.SetHomeLocation(ctx, c); err != nil {
		return fmt.Errorf("store home: %w", err)
	}
	e.mu.Lock()
	e.cached = &c
	e.resolved = true
	e.mu.Unlock()
	return nil
}

// Invalidate drops the session cache; the next Resolve re-derives.
func (e *Estimator) Invalidate() {
	e.mu.Lock()
	e.resolved = false
	e.cached = nil
	e.mu.Unlock()
}

// mostVisited ranks spots by visit count, ties broken by most recent visit.
func mostVisited(spots []record.Spot) *record.Spot {
	var best *record.Spot
	for i := range spots {
		s := &spots[i]
		if !s.Coord.Valid() {
			continue
		}
		if best == nil ||
			s.VisitCount > best.VisitCount ||
			(s.VisitCount == best.VisitCount && s.LastVisitedAt.After(best.LastVisitedAt)) {
			best = s
		}
	}
	return best
}
