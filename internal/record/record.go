// Package record defines the locally authored record kinds that participate
// in offline reconciliation, their dedup keys, and the identifier scheme that
// distinguishes client-generated IDs from server-assigned ones.
package record

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/trailmark-app/trailmark/internal/geo"
)

// Kind identifies a reconcilable record kind.
type Kind string

// Record kinds pushed by the reconciliation engine.
const (
	KindActivity    Kind = "activity"
	KindSpot        Kind = "spot"
	KindAchievement Kind = "achievement"
)

// Kinds lists all reconcilable kinds in the order the engine processes them.
var Kinds = []Kind{KindActivity, KindSpot, KindAchievement}

var (
	// ErrMissingCoordinate is returned by Validate when a record that
	// requires a location has none.
	ErrMissingCoordinate = errors.New("record has no coordinate")

	// ErrMissingName is returned by Validate when a record has an empty name.
	ErrMissingName = errors.New("record has no name")

	// ErrMissingTimestamp is returned by Validate when a record has no
	// occurrence timestamp.
	ErrMissingTimestamp = errors.New("record has no occurrence timestamp")
)

// Activity is a locally recorded outdoor activity (ride, run, hike).
type Activity struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Sport          string          `json:"sport,omitempty"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time,omitzero"`
	StartCoord     *geo.Coordinate `json:"start_coord,omitempty"`
	EndCoord       *geo.Coordinate `json:"end_coord,omitempty"`
	DistanceMeters float64         `json:"distance_meters,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	PhotoRefs      []string        `json:"photo_refs,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DedupKey approximates activity identity before a server ID exists:
// name plus start time in unix milliseconds.
func (a Activity) DedupKey() string {
	return a.Name + "|" + strconv.FormatInt(a.StartTime.UnixMilli(), 10)
}

// OccurredAt returns the timestamp compared against the sync watermark.
func (a Activity) OccurredAt() time.Time {
	return a.StartTime
}

// Identifier returns the record's current identifier.
func (a Activity) Identifier() string {
	return a.ID
}

// WithIdentifier returns a copy rebound to the given identifier.
func (a Activity) WithIdentifier(id string) Activity {
	a.ID = id
	return a
}

// Validate reports whether the activity is well-formed enough to push.
func (a Activity) Validate() error {
	if a.Name == "" {
		return ErrMissingName
	}
	if a.StartTime.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// Spot is a user-saved point of interest.
type Spot struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Coord         geo.Coordinate `json:"coord"`
	VisitCount    int            `json:"visit_count"`
	LastVisitedAt time.Time      `json:"last_visited_at,omitzero"`
	Notes         string         `json:"notes,omitempty"`
	PhotoRefs     []string       `json:"photo_refs,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// DedupKey approximates spot identity by coordinate rounded to 6 decimal
// places (~0.11 m), which treats re-saves of the same pin as one spot.
func (s Spot) DedupKey() string {
	return fmt.Sprintf("%.6f|%.6f", s.Coord.Lat, s.Coord.Lng)
}

// OccurredAt returns the timestamp compared against the sync watermark.
func (s Spot) OccurredAt() time.Time {
	return s.CreatedAt
}

// Identifier returns the record's current identifier.
func (s Spot) Identifier() string {
	return s.ID
}

// WithIdentifier returns a copy rebound to the given identifier.
func (s Spot) WithIdentifier(id string) Spot {
	s.ID = id
	return s
}

// Validate reports whether the spot is well-formed enough to push.
func (s Spot) Validate() error {
	if !s.Coord.Valid() {
		return ErrMissingCoordinate
	}
	if s.Name == "" {
		return ErrMissingName
	}
	return nil
}

// Achievement is a locally earned badge or milestone.
type Achievement struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Name     string    `json:"name"`
	EarnedAt time.Time `json:"earned_at"`
}

// DedupKey approximates achievement identity by type plus name; an
// achievement can only be earned once per owner.
func (a Achievement) DedupKey() string {
	return a.Type + "|" + a.Name
}

// OccurredAt returns the timestamp compared against the sync watermark.
func (a Achievement) OccurredAt() time.Time {
	return a.EarnedAt
}

// Identifier returns the record's current identifier.
func (a Achievement) Identifier() string {
	return a.ID
}

// WithIdentifier returns a copy rebound to the given identifier.
func (a Achievement) WithIdentifier(id string) Achievement {
	a.ID = id
	return a
}

// Validate reports whether the achievement is well-formed enough to push.
func (a Achievement) Validate() error {
	if a.Name == "" {
		return ErrMissingName
	}
	if a.EarnedAt.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// Trip is a multi-day journey. Trips are authored online and never offline,
// so they are not reconciled, but they do participate in recall detection.
type Trip struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date,omitzero"`
}

// IsServerID reports whether id carries the server's identifier format.
// The backend assigns RFC 4122 UUIDs; client-generated local IDs are plain
// hex with no dash pattern, so a parseable UUID means "already synced".
func IsServerID(id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	// uuid.Parse accepts some dashless forms; require the canonical
	// dashed layout the server actually emits.
	return len(id) == 36
}

// NewLocalID generates a client-local identifier: 24 hex characters, never
// mistakable for a server UUID.
func NewLocalID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
