// Package store provides the device-local persistence area used by the
// reconciliation engine and detectors: a string-keyed blob store with typed
// helpers for record collections, the sync watermark, the cached home
// location, and the persisted notification cooldown state.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("store: key not found")

// KV is the minimal local storage capability. Values are opaque blobs;
// callers own serialization.
type KV interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores the blob under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// Keys for the blobs the core owns in the local store.
const (
	KeyActivities = "local_activities"
	KeySpots      = "local_spots"
	KeyAchievs    = "local_achievements"
	KeyWatermark  = "sync_watermark"
	KeyHome       = "home_location"
	KeyProximity  = "proximity_state"
)
