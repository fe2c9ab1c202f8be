// Package notify dispatches alerts in two phases: a durable in-app
// notification row first, then a best-effort push relay whose failures are
// reified but never surfaced to the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/trailmark-app/trailmark/internal/clock"
	"github.com/trailmark-app/trailmark/internal/remote"
)

// Notification category keys, matching the owner's opt-in preferences.
const (
	CategoryFriendRequests = "friend_requests"
	CategoryComments       = "comments"
	CategoryLikes          = "likes"
	CategoryActivityShared = "activity_shared"
	CategoryAchievements   = "achievements"
	CategoryMemory         = "memory"
	CategoryProximity      = "proximity_alert"
)

// Backend is the remote capability the dispatcher needs.
type Backend interface {
	InsertNotification(ctx context.Context, n remote.Notification) (string, error)
	Preferences(ctx context.Context, ownerID string) (remote.Preferences, error)
	DeviceToken(ctx context.Context, ownerID string) (string, error)
}

// PushChannel relays a notification to the device. Implementations are
// fire-and-forget from the dispatcher's point of view.
type PushChannel interface {
	Send(ctx context.Context, token, title, body string, payload map[string]string, category string) error
}

// RelayResult describes the push-relay phase of a dispatch. It exists so
// callers and tests can observe relay attempts without the relay's failure
// ever masking the durable write's own outcome.
type RelayResult struct {
	// Attempted is true when a push was actually sent (or tried).
	Attempted bool
	// Skipped names why the relay was not attempted: "preference_disabled",
	// "no_device", or "" when attempted.
	Skipped string
	// Err holds the relay failure, if any. It is informational; the
	// dispatch already succeeded by the time it is set.
	Err error
}

// skip reasons for RelayResult.Skipped.
const (
	SkipPreferenceDisabled = "preference_disabled"
	SkipNoDevice           = "no_device"
)

// Config configures the dispatcher.
type Config struct {
	// Logger for dispatch activity.
	Logger *slog.Logger
	// Clock stamps notification rows. Defaults to the system clock.
	Clock clock.Clock
	// Metrics for dispatch outcome tracking.
	Metrics *Metrics
}

// Dispatcher writes in-app notifications and relays pushes.
type Dispatcher struct {
	config  Config
	backend Backend
	push    PushChannel
}

// NewDispatcher creates a dispatcher. push may be nil, in which case the
// relay phase is skipped entirely (the in-app row is still written).
func NewDispatcher(config Config, backend Backend, push PushChannel) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Dispatcher{config: config, backend: backend, push: push}
}

// Dispatch writes the durable in-app notification row and then attempts
// push delivery. The returned error reflects only the durable write; relay
// failures are logged, recorded in the RelayResult, and swallowed.
//
// A disabled category preference skips the relay but the in-app row is
// still written: the inbox is the durable history, and preference toggles
// govern interruption, not record-keeping.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID, title, body string, payload map[string]string, category string) (RelayResult, error) {
	row := remote.Notification{
		OwnerID:   ownerID,
		Title:     title,
		Body:      body,
		Category:  category,
		Payload:   payload,
		CreatedAt: d.config.Clock.Now(),
	}
	if _, err := d.backend.InsertNotification(ctx, row); err != nil {
		if d.config.Metrics != nil {
			d.config.Metrics.IncDispatched(category, "failure")
		}
		return RelayResult{}, fmt.Errorf("persist notification: %w", err)
	}
	if d.config.Metrics != nil {
		d.config.Metrics.IncDispatched(category, "success")
	}

	result := d.relay(ctx, ownerID, title, body, payload, category)
	if result.Err != nil {
		d.config.Logger.Warn("push relay failed",
			"owner", ownerID,
			"category", category,
			"error", result.Err)
	}
	return result, nil
}

// relay performs the best-effort push phase.
func (d *Dispatcher) relay(ctx context.Context, ownerID, title, body string, payload map[string]string, category string) RelayResult {
	if d.push == nil {
		return RelayResult{Skipped: SkipNoDevice}
	}

	prefs, err := d.backend.Preferences(ctx, ownerID)
	if err != nil {
		// Unknown preferences default to enabled; losing a push beats
		// failing the dispatch.
		d.config.Logger.Warn("failed to load preferences, assuming enabled",
			"owner", ownerID,
			"error", err)
		prefs = remote.Preferences{}
	}
	if !prefs.Enabled(category) {
		if d.config.Metrics != nil {
			d.config.Metrics.IncRelaySkipped(category, SkipPreferenceDisabled)
		}
		return RelayResult{Skipped: SkipPreferenceDisabled}
	}

	token, err := d.backend.DeviceToken(ctx, ownerID)
	if errors.Is(err, remote.ErrNotFound) || token == "" {
		if d.config.Metrics != nil {
			d.config.Metrics.IncRelaySkipped(category, SkipNoDevice)
		}
		return RelayResult{Skipped: SkipNoDevice}
	}
	if err != nil {
		if d.config.Metrics != nil {
			d.config.Metrics.IncRelayed(category, "failure")
		}
		return RelayResult{Attempted: true, Err: fmt.Errorf("load device token: %w", err)}
	}

	if err := d.push.Send(ctx, token, title, body, payload, category); err != nil {
		if d.config.Metrics != nil {
			d.config.Metrics.IncRelayed(category, "failure")
		}
		return RelayResult{Attempted: true, Err: err}
	}
	if d.config.Metrics != nil {
		d.config.Metrics.IncRelayed(category, "success")
	}
	return RelayResult{Attempted: true}
}
