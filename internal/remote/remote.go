// Package remote defines the narrow capability surface the core consumes
// from the hosted backend: per-kind queries and inserts for the owner's
// records, in-app notification rows, and push-delivery preferences.
//
// Two implementations are provided: an in-memory fake for tests and the
// host's own wiring, and a Postgres-backed store used by the agent binary.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/trailmark-app/trailmark/internal/record"
)

var (
	// ErrNotFound is returned when a queried row does not exist.
	ErrNotFound = errors.New("remote: not found")

	// ErrDuplicate is returned by inserts when a row with the same dedup
	// key already exists for the owner. Callers treat this as a merge
	// signal, not a failure.
	ErrDuplicate = errors.New("remote: duplicate record")
)

// Notification is a persisted in-app notification row. It is the durable
// record of a dispatched alert; push delivery is best-effort on top.
type Notification struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Category  string            `json:"category"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Read      bool              `json:"read"`
}

// Preferences maps notification category keys to opt-in state. A category
// absent from the map is enabled; users only store explicit opt-outs.
type Preferences map[string]bool

// Enabled reports whether push delivery is allowed for the category.
func (p Preferences) Enabled(category string) bool {
	enabled, ok := p[category]
	if !ok {
		return true
	}
	return enabled
}

// Store is the full backend capability. Consumers declare narrower
// interfaces over the subset they use.
type Store interface {
	// Activities returns all of the owner's activities with server IDs.
	Activities(ctx context.Context, ownerID string) ([]record.Activity, error)
	// InsertActivity stores a new activity and returns its server ID.
	// Returns ErrDuplicate if one with the same dedup key exists.
	InsertActivity(ctx context.Context, ownerID string, a record.Activity) (string, error)

	// Spots returns all of the owner's saved spots with server IDs.
	Spots(ctx context.Context, ownerID string) ([]record.Spot, error)
	// InsertSpot stores a new spot and returns its server ID.
	// Returns ErrDuplicate if one with the same dedup key exists.
	InsertSpot(ctx context.Context, ownerID string, s record.Spot) (string, error)

	// Achievements returns all of the owner's achievements with server IDs.
	Achievements(ctx context.Context, ownerID string) ([]record.Achievement, error)
	// InsertAchievement stores a new achievement and returns its server ID.
	// Returns ErrDuplicate if one with the same dedup key exists.
	InsertAchievement(ctx context.Context, ownerID string, a record.Achievement) (string, error)

	// Trips returns all of the owner's trips.
	Trips(ctx context.Context, ownerID string) ([]record.Trip, error)

	// InsertNotification stores an in-app notification row and returns its ID.
	InsertNotification(ctx context.Context, n Notification) (string, error)
	// Preferences returns the owner's notification category preferences.
	Preferences(ctx context.Context, ownerID string) (Preferences, error)
	// DeviceToken returns the owner's registered push device token, or
	// ErrNotFound if no device is registered.
	DeviceToken(ctx context.Context, ownerID string) (string, error)
}
