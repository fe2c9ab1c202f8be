package proximity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/trailmark-app/trailmark/internal/clock"
	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/record"
)

// Origin identifies where a proximity candidate came from.
type Origin string

// Candidate origins.
const (
	OriginSpot          Origin = "spot"
	OriginActivityStart Origin = "activity_start"
	OriginActivityEnd   Origin = "activity_end"
)

// Place is a previously visited location near the current position.
// Places are derived per detection pass and never persisted.
type Place struct {
	Key            string
	Origin         Origin
	ID             string
	Name           string
	Coord          geo.Coordinate
	LastVisitedAt  time.Time
	VisitCount     int
	DistanceMeters float64
}

// PlaceSource lists the owner's saved spots and activities.
type PlaceSource interface {
	Spots(ctx context.Context, ownerID string) ([]record.Spot, error)
	Activities(ctx context.Context, ownerID string) ([]record.Activity, error)
}

// HomeResolver supplies the session home coordinate, or nil when unknown.
type HomeResolver interface {
	Resolve(ctx context.Context, ownerID string) (*geo.Coordinate, error)
}

// Default detection thresholds.
const (
	DefaultHomeRadiusMeters   = 1000.0
	DefaultOuterRadiusMeters  = 500.0
	DefaultDeadZoneMeters     = 50.0
	DefaultMinInterval        = 30 * time.Minute
	DefaultSpotStaleness      = 7 * 24 * time.Hour
	DefaultActivityStaleness  = 30 * 24 * time.Hour
	DefaultCooldown           = 24 * time.Hour
	DefaultEndpointSeparation = 500.0
	DefaultMaxResults         = 3
)

// Config configures the proximity detector. Zero fields take defaults.
type Config struct {
	// HomeRadiusMeters suppresses detection near the resolved home.
	HomeRadiusMeters float64
	// OuterRadiusMeters is the maximum qualifying distance.
	OuterRadiusMeters float64
	// DeadZoneMeters skips places the user is effectively standing at.
	DeadZoneMeters float64
	// MinInterval rate-limits detection passes.
	MinInterval time.Duration
	// SpotStaleness is the minimum age of a spot's last visit.
	SpotStaleness time.Duration
	// ActivityStaleness is the minimum age of an activity.
	ActivityStaleness time.Duration
	// Cooldown suppresses repeat notifications per place key.
	Cooldown time.Duration
	// EndpointSeparationMeters gates activity end points: an end point
	// too close to its own start would duplicate the start alert for
	// out-and-back routes.
	EndpointSeparationMeters float64
	// MaxResults caps the returned places, closest first.
	MaxResults int
	// Logger for pass activity.
	Logger *slog.Logger
	// Clock supplies pass timestamps. Defaults to the system clock.
	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.HomeRadiusMeters == 0 {
		c.HomeRadiusMeters = DefaultHomeRadiusMeters
	}
	if c.OuterRadiusMeters == 0 {
		c.OuterRadiusMeters = DefaultOuterRadiusMeters
	}
	if c.DeadZoneMeters == 0 {
		c.DeadZoneMeters = DefaultDeadZoneMeters
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.SpotStaleness == 0 {
		c.SpotStaleness = DefaultSpotStaleness
	}
	if c.ActivityStaleness == 0 {
		c.ActivityStaleness = DefaultActivityStaleness
	}
	if c.Cooldown == 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.EndpointSeparationMeters == 0 {
		c.EndpointSeparationMeters = DefaultEndpointSeparation
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Detector finds nearby previously visited places.
type Detector struct {
	config Config
	source PlaceSource
	home   HomeResolver
	state  *State
}

// NewDetector creates a proximity detector over the given sources and
// persisted state.
func NewDetector(config Config, source PlaceSource, home HomeResolver, state *State) *Detector {
	return &Detector{config: config.withDefaults(), source: source, home: home, state: state}
}

// Detect returns up to MaxResults previously visited places near current,
// closest first. It returns an empty slice without querying the remote
// store when a pass ran within MinInterval, and skips entirely when the
// current position is inside the home radius.
func (d *Detector) Detect(ctx context.Context, current geo.Coordinate, ownerID string) ([]Place, error) {
	now := d.config.Clock.Now()

	last := d.state.LastCheck()
	if !last.IsZero() && now.Sub(last) < d.config.MinInterval {
		return nil, nil
	}
	if err := d.state.BeginPass(ctx, now); err != nil {
		// Throttling state is advisory; a write failure must not block
		// detection.
		d.config.Logger.Warn("failed to persist pass timestamp", "error", err)
	}

	homeCoord, err := d.home.Resolve(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("resolve home: %w", err)
	}
	if homeCoord != nil && geo.Haversine(current, *homeCoord) <= d.config.HomeRadiusMeters {
		d.config.Logger.Debug("detection skipped inside home zone",
			"geohash", geo.Encode(current, geo.LogPrecision))
		return nil, nil
	}

	candidates, err := d.collect(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var qualified []Place
	for _, cand := range candidates {
		dist := geo.Haversine(current, cand.Coord)
		if dist > d.config.OuterRadiusMeters || dist < d.config.DeadZoneMeters {
			continue
		}
		if !d.staleEnough(cand, now) {
			continue
		}
		if homeCoord != nil && geo.Haversine(cand.Coord, *homeCoord) <= d.config.HomeRadiusMeters {
			continue
		}
		if notified := d.state.LastNotified(cand.Key); !notified.IsZero() && now.Sub(notified) < d.config.Cooldown {
			continue
		}
		cand.DistanceMeters = dist
		qualified = append(qualified, cand)
	}

	sort.Slice(qualified, func(i, j int) bool {
		return qualified[i].DistanceMeters < qualified[j].DistanceMeters
	})
	if len(qualified) > d.config.MaxResults {
		qualified = qualified[:d.config.MaxResults]
	}

	d.config.Logger.Debug("proximity pass completed",
		"geohash", geo.Encode(current, geo.LogPrecision),
		"candidates", len(candidates),
		"qualified", len(qualified))
	return qualified, nil
}

// MarkNotified records a dispatched notification for the place so the
// cooldown suppresses it on subsequent passes.
func (d *Detector) MarkNotified(ctx context.Context, place Place) error {
	return d.state.MarkNotified(ctx, place.Key, d.config.Clock.Now(), 2*d.config.Cooldown)
}

// collect gathers candidate places from spots and activity endpoints.
// Malformed records (no coordinate) are skipped with a warning.
func (d *Detector) collect(ctx context.Context, ownerID string) ([]Place, error) {
	spots, err := d.source.Spots(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load spots: %w", err)
	}
	activities, err := d.source.Activities(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}

	candidates := make([]Place, 0, len(spots)+2*len(activities))
	for _, s := range spots {
		if !s.Coord.Valid() {
			d.config.Logger.Warn("spot without coordinate skipped", "id", s.ID)
			continue
		}
		lastVisit := s.LastVisitedAt
		if lastVisit.IsZero() {
			lastVisit = s.CreatedAt
		}
		candidates = append(candidates, Place{
			Key:           placeKey(OriginSpot, s.ID),
			Origin:        OriginSpot,
			ID:            s.ID,
			Name:          s.Name,
			Coord:         s.Coord,
			LastVisitedAt: lastVisit,
			VisitCount:    s.VisitCount,
		})
	}

	for _, a := range activities {
		if a.StartCoord != nil && a.StartCoord.Valid() {
			candidates = append(candidates, Place{
				Key:           placeKey(OriginActivityStart, a.ID),
				Origin:        OriginActivityStart,
				ID:            a.ID,
				Name:          a.Name,
				Coord:         *a.StartCoord,
				LastVisitedAt: a.StartTime,
				VisitCount:    1,
			})
		}
		if a.EndCoord != nil && a.EndCoord.Valid() {
			// Short out-and-back routes end where they start; alerting
			// on both points would duplicate the start alert.
			if a.StartCoord != nil && a.StartCoord.Valid() &&
				geo.Haversine(*a.StartCoord, *a.EndCoord) <= d.config.EndpointSeparationMeters {
				continue
			}
			lastVisit := a.EndTime
			if lastVisit.IsZero() {
				lastVisit = a.StartTime
			}
			candidates = append(candidates, Place{
				Key:           placeKey(OriginActivityEnd, a.ID),
				Origin:        OriginActivityEnd,
				ID:            a.ID,
				Name:          a.Name,
				Coord:         *a.EndCoord,
				LastVisitedAt: lastVisit,
				VisitCount:    1,
			})
		}
	}
	return candidates, nil
}

// staleEnough enforces the rediscovery rule: the place must not have been
// visited recently.
func (d *Detector) staleEnough(p Place, now time.Time) bool {
	if p.LastVisitedAt.IsZero() {
		return true
	}
	minAge := d.config.ActivityStaleness
	if p.Origin == OriginSpot {
		minAge = d.config.SpotStaleness
	}
	return now.Sub(p.LastVisitedAt) >= minAge
}

// placeKey builds the cooldown key for a place: origin kind plus identifier.
func placeKey(origin Origin, id string) string {
	return string(origin) + ":" + id
}
