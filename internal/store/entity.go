package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/record"
)

// EntityStore wraps a KV with the JSON encodings of the blobs the core
// owns. A missing blob reads as the type's empty value: no records, an
// unset watermark, no cached home.
type EntityStore struct {
	kv KV
}

// NewEntityStore creates an EntityStore over the given KV.
func NewEntityStore(kv KV) *EntityStore {
	return &EntityStore{kv: kv}
}

// KV exposes the underlying blob store for state the typed helpers do not
// cover (e.g. the proximity detector's persisted cooldown blob).
func (s *EntityStore) KV() KV {
	return s.kv
}

// Activities loads the locally authored activity collection.
func (s *EntityStore) Activities(ctx context.Context) ([]record.Activity, error) {
	var out []record.Activity
	if err := s.load(ctx, KeyActivities, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveActivities replaces the locally authored activity collection.
func (s *EntityStore) SaveActivities(ctx context.Context, activities []record.Activity) error {
	return s.save(ctx, KeyActivities, activities)
}

// Spots loads the locally authored spot collection.
func (s *EntityStore) Spots(ctx context.Context) ([]record.Spot, error) {
	var out []record.Spot
	if err := s.load(ctx, KeySpots, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveSpots replaces the locally authored spot collection.
func (s *EntityStore) SaveSpots(ctx context.Context, spots []record.Spot) error {
	return s.save(ctx, KeySpots, spots)
}

// Achievements loads the locally earned achievement collection.
func (s *EntityStore) Achievements(ctx context.Context) ([]record.Achievement, error) {
	var out []record.Achievement
	if err := s.load(ctx, KeyAchievs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAchievements replaces the locally earned achievement collection.
func (s *EntityStore) SaveAchievements(ctx context.Context, achievements []record.Achievement) error {
	return s.save(ctx, KeyAchievs, achievements)
}

// Watermark returns the sync watermark, or the zero time if no pass has
// ever completed.
func (s *EntityStore) Watermark(ctx context.Context) (time.Time, error) {
	var out time.Time
	if err := s.load(ctx, KeyWatermark, &out); err != nil {
		return time.Time{}, err
	}
	return out, nil
}

// SetWatermark persists the sync watermark. Only the reconciliation engine
// calls this, and only after a pass completes.
func (s *EntityStore) SetWatermark(ctx context.Context, t time.Time) error {
	return s.save(ctx, KeyWatermark, t)
}

// HomeLocation returns the explicitly stored home coordinate, or nil if the
// user never set one.
func (s *EntityStore) HomeLocation(ctx context.Context) (*geo.Coordinate, error) {
	var out *geo.Coordinate
	if err := s.load(ctx, KeyHome, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetHomeLocation persists the explicit home coordinate.
func (s *EntityStore) SetHomeLocation(ctx context.Context, c geo.Coordinate) error {
	return s.save(ctx, KeyHome, &c)
}

// load unmarshals the blob under key into out. A missing key leaves out at
// its zero value.
func (s *EntityStore) load(ctx context.Context, key string, out any) error {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *EntityStore) save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
