// Package proximity detects previously visited places near the user's
// current position, applying home-zone exclusion, staleness, and
// notification cooldown rules.
package proximity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/trailmark-app/trailmark/internal/store"
)

// persistedState is the CBOR encoding of detector state in the local
// store. CBOR keeps the blob small; it holds one timestamp per notified
// place plus the last detection pass time.
type persistedState struct {
	LastCheckAt time.Time            `cbor:"1,keyasint,omitempty"`
	Cooldowns   map[string]time.Time `cbor:"2,keyasint,omitempty"`
}

// State is the detector's cross-process state: the rate-limit timestamp
// and the per-place notification cooldown map. It is persisted in the
// local store so a process restart (the OS relaunching the app for a
// background task) does not reset throttling.
type State struct {
	kv store.KV

	mu        sync.Mutex
	lastCheck time.Time
	cooldowns map[string]time.Time
}

// LoadState reads detector state from the local store; a missing blob
// yields empty state.
func LoadState(ctx context.Context, kv store.KV) (*State, error) {
	s := &State{kv: kv, cooldowns: make(map[string]time.Time)}

	raw, err := kv.Get(ctx, store.KeyProximity)
	if errors.Is(err, store.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load proximity state: %w", err)
	}

	var p persistedState
	if err := cbor.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode proximity state: %w", err)
	}
	s.lastCheck = p.LastCheckAt
	if p.Cooldowns != nil {
		s.cooldowns = p.Cooldowns
	}
	return s, nil
}

// LastCheck returns the time of the last detection pass.
func (s *State) LastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCheck
}

// BeginPass records a detection pass at t and persists the state.
func (s *State) BeginPass(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	s.lastCheck = t
	s.mu.Unlock()
	return s.save(ctx)
}

// LastNotified returns when the place was last notified, or the zero time.
func (s *State) LastNotified(placeKey string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldowns[placeKey]
}

// MarkNotified records a dispatched notification for the place key at t
// and persists the state. Entries older than pruneAfter are dropped on
// the way out to keep the blob bounded; callers pass a horizon derived
// from their cooldown window so a long cooldown is never forgotten early.
func (s *State) MarkNotified(ctx context.Context, placeKey string, t time.Time, pruneAfter time.Duration) error {
	s.mu.Lock()
	s.cooldowns[placeKey] = t
	if pruneAfter > 0 {
		for key, at := range s.cooldowns {
			if t.Sub(at) > pruneAfter {
				delete(s.cooldowns, key)
			}
		}
	}
	s.mu.Unlock()
	return s.save(ctx)
}

func (s *State) save(ctx context.Context) error {
	s.mu.Lock()
	p := persistedState{
		LastCheckAt: s.lastCheck,
		Cooldowns:   make(map[string]time.Time, len(s.cooldowns)),
	}
	for k, v := range s.cooldowns {
		p.Cooldowns[k] = v
	}
	s.mu.Unlock()

	raw, err := cbor.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode proximity state: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyProximity, raw); err != nil {
		return fmt.Errorf("persist proximity state: %w", err)
	}
	return nil
}
