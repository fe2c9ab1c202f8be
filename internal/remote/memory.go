package remote

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailmark-app/trailmark/internal/record"
)

// Memory is an in-memory Store used for tests and development. Inserts
// enforce the per-owner dedup key uniqueness the backend's schema enforces
// server-side.
type Memory struct {
	mu            sync.RWMutex
	activities    map[string][]record.Activity
	spots         map[string][]record.Spot
	achievements  map[string][]record.Achievement
	trips         map[string][]record.Trip
	notifications []Notification
	preferences   map[string]Preferences
	deviceTokens  map[string]string

	// InsertErr, when set, fails the next insert of any kind once.
	// Lets tests exercise per-item failure handling.
	InsertErr error
}

// NewMemory creates an empty in-memory remote store.
func NewMemory() *Memory {
	return &Memory{
		activities:   make(map[string][]record.Activity),
		spots:        make(map[string][]record.Spot),
		achievements: make(map[string][]record.Achievement),
		trips:        make(map[string][]record.Trip),
		preferences:  make(map[string]Preferences),
		deviceTokens: make(map[string]string),
	}
}

// Activities returns all of the owner's activities.
func (m *Memory) Activities(_ context.Context, ownerID string) ([]record.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]record.Activity(nil), m.activities[ownerID]...), nil
}

// InsertActivity stores a new activity, enforcing dedup key uniqueness.
func (m *Memory) InsertActivity(_ context.Context, ownerID string, a record.Activity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInsertErr(); err != nil {
		return "", err
	}
	for _, existing := range m.activities[ownerID] {
		if existing.DedupKey() == a.DedupKey() {
			return "", ErrDuplicate
		}
	}
	a.ID = uuid.NewString()
	m.activities[ownerID] = append(m.activities[ownerID], a)
	return a.ID, nil
}

// Spots returns all of the owner's saved spots.
func (m *Memory) Spots(_ context.Context, ownerID string) ([]record.Spot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]record.Spot(nil), m.spots[ownerID]...), nil
}

// InsertSpot stores a new spot, enforcing dedup key uniqueness.
func (m *Memory) InsertSpot(_ context.Context, ownerID string, s record.Spot) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInsertErr(); err != nil {
		return "", err
	}
	for _, existing := range m.spots[ownerID] {
		if existing.DedupKey() == s.DedupKey() {
			return "", ErrDuplicate
		}
	}
	s.ID = uuid.NewString()
	m.spots[ownerID] = append(m.spots[ownerID], s)
	return s.ID, nil
}

// Achievements returns all of the owner's achievements.
func (m *Memory) Achievements(_ context.Context, ownerID string) ([]record.Achievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]record.Achievement(nil), m.achievements[ownerID]...), nil
}

// InsertAchievement stores a new achievement, enforcing dedup key uniqueness.
func (m *Memory) InsertAchievement(_ context.Context, ownerID string, a record.Achievement) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInsertErr(); err != nil {
		return "", err
	}
	for _, existing := range m.achievements[ownerID] {
		if existing.DedupKey() == a.DedupKey() {
			return "", ErrDuplicate
		}
	}
	a.ID = uuid.NewString()
	m.achievements[ownerID] = append(m.achievements[ownerID], a)
	return a.ID, nil
}

// Trips returns all of the owner's trips.
func (m *Memory) Trips(_ context.Context, ownerID string) ([]record.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]record.Trip(nil), m.trips[ownerID]...), nil
}

// SeedTrip adds a trip directly; trips are never pushed by the engine.
func (m *Memory) SeedTrip(ownerID string, t record.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.trips[ownerID] = append(m.trips[ownerID], t)
}

// InsertNotification stores an in-app notification row.
func (m *Memory) InsertNotification(_ context.Context, n Notification) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInsertErr(); err != nil {
		return "", err
	}
	n.ID = uuid.NewString()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.notifications = append(m.notifications, n)
	return n.ID, nil
}

// Notifications returns all stored notification rows. Test helper.
func (m *Memory) Notifications() []Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Notification(nil), m.notifications...)
}

// Preferences returns the owner's notification preferences.
func (m *Memory) Preferences(_ context.Context, ownerID string) (Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefs, ok := m.preferences[ownerID]
	if !ok {
		return Preferences{}, nil
	}
	out := make(Preferences, len(prefs))
	for k, v := range prefs {
		out[k] = v
	}
	return out, nil
}

// SetPreferences replaces the owner's notification preferences.
func (m *Memory) SetPreferences(ownerID string, prefs Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[ownerID] = prefs
}

// DeviceToken returns the owner's registered push token.
func (m *Memory) DeviceToken(_ context.Context, ownerID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.deviceTokens[ownerID]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

// SetDeviceToken registers a push token for the owner.
func (m *Memory) SetDeviceToken(ownerID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceTokens[ownerID] = token
}

// takeInsertErr consumes a pending injected insert error. Caller holds mu.
func (m *Memory) takeInsertErr() error {
	if m.InsertErr == nil {
		return nil
	}
	err := m.InsertErr
	m.InsertErr = nil
	return err
}
