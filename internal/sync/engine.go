// Package sync implements the offline reconciliation engine: it diffs
// locally authored records against the remote store using per-kind dedup
// keys, pushes unseen records, and rebinds local identifiers to the
// server-assigned ones so later passes recognize them as synced.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/trailmark-app/trailmark/internal/clock"
	"github.com/trailmark-app/trailmark/internal/jobs"
	"github.com/trailmark-app/trailmark/internal/record"
	"github.com/trailmark-app/trailmark/internal/remote"
	"github.com/trailmark-app/trailmark/internal/store"
	"github.com/trailmark-app/trailmark/internal/tracing"
)

// ErrPassFailed is returned when no kind could be reconciled at all, e.g.
// with no connectivity. The watermark is left untouched in that case and
// the pass is safe to re-invoke.
var ErrPassFailed = errors.New("sync: reconciliation pass failed entirely")

// RemoteSource is the backend capability the engine needs: per-kind listing
// and insertion for one owner.
type RemoteSource interface {
	Activities(ctx context.Context, ownerID string) ([]record.Activity, error)
	InsertActivity(ctx context.Context, ownerID string, a record.Activity) (string, error)
	Spots(ctx context.Context, ownerID string) ([]record.Spot, error)
	InsertSpot(ctx context.Context, ownerID string, s record.Spot) (string, error)
	Achievements(ctx context.Context, ownerID string) ([]record.Achievement, error)
	InsertAchievement(ctx context.Context, ownerID string, a record.Achievement) (string, error)
}

// JobMetrics provides centralized background job metrics tracking.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// Config configures the reconciliation engine.
type Config struct {
	// Logger for pass activity.
	Logger *slog.Logger
	// Clock supplies the watermark time. Defaults to the system clock.
	Clock clock.Clock
	// Metrics for per-kind push tracking.
	Metrics *Metrics
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
}

// Report summarizes one reconciliation pass.
type Report struct {
	// Pushed counts records inserted remotely, per kind.
	Pushed map[record.Kind]int
	// Merged counts local records rebound to an already-existing remote
	// record via dedup key collision.
	Merged int
	// Skipped counts malformed records left in place with a warning.
	Skipped int
	// Errors collects per-item failures. The pass continues past them.
	Errors []error
}

// Engine reconciles the local entity store with the remote store.
type Engine struct {
	config Config
	local  *store.EntityStore
	remote RemoteSource
}

// NewEngine creates a reconciliation engine.
func NewEngine(config Config, local *store.EntityStore, remoteSource RemoteSource) *Engine {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Engine{config: config, local: local, remote: remoteSource}
}

// Reconcile runs one full pass for the owner across all kinds.
//
// Per-item failures never abort the pass; they are collected in the report
// and the affected records keep their local identifiers so the next pass
// retries them. The watermark is advanced only after the pass, never
// mid-pass, and is left untouched when every kind failed outright.
func (e *Engine) Reconcile(ctx context.Context, ownerID string) (retReport *Report, retErr error) {
	ctx, endSpan := tracing.StartSpan(ctx, "sync_reconcile")
	defer func() { endSpan(retErr) }()

	started := e.config.Clock.Now()
	report := &Report{Pushed: make(map[record.Kind]int)}

	watermark, err := e.local.Watermark(ctx)
	if err != nil {
		return report, fmt.Errorf("load watermark: %w", err)
	}

	// earliestFailed tracks the oldest occurrence among failed items so
	// the advanced watermark never fences them out of the next pass.
	var earliestFailed time.Time
	anyKindCompleted := false

	for _, kind := range record.Kinds {
		failedAt, err := e.reconcileKind(ctx, ownerID, kind, watermark, report)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", kind, err))
			e.config.Logger.Warn("kind reconciliation failed",
				"kind", string(kind),
				"owner", ownerID,
				"error", err)
			continue
		}
		anyKindCompleted = true
		if !failedAt.IsZero() && (earliestFailed.IsZero() || failedAt.Before(earliestFailed)) {
			earliestFailed = failedAt
		}
	}

	duration := e.config.Clock.Now().Sub(started).Seconds()

	if !anyKindCompleted {
		if e.config.JobMetrics != nil {
			e.config.JobMetrics.IncJobsTotal(jobs.JobTypeSyncReconcile, "failure")
			e.config.JobMetrics.ObserveJobDuration(jobs.JobTypeSyncReconcile, duration)
		}
		return report, ErrPassFailed
	}

	// Advance the watermark. After a clean pass it moves to now; when
	// individual items failed it stops just short of the earliest failed
	// occurrence so those items are retried on the next trigger. Either
	// way the watermark never moves backwards.
	next := e.config.Clock.Now()
	if !earliestFailed.IsZero() && earliestFailed.Before(next) {
		next = earliestFailed.Add(-time.Millisecond)
	}
	if next.After(watermark) {
		if err := e.local.SetWatermark(ctx, next); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("advance watermark: %w", err))
		}
	}

	status := "success"
	if len(report.Errors) > 0 {
		status = "partial"
	}
	if e.config.Metrics != nil {
		e.config.Metrics.ObservePassDuration(duration)
	}
	if e.config.JobMetrics != nil {
		e.config.JobMetrics.IncJobsTotal(jobs.JobTypeSyncReconcile, status)
		e.config.JobMetrics.ObserveJobDuration(jobs.JobTypeSyncReconcile, duration)
	}

	totalPushed := 0
	for _, n := range report.Pushed {
		totalPushed += n
	}
	tracing.SetAttributes(ctx,
		attribute.Int("sync.pushed", totalPushed),
		attribute.Int("sync.merged", report.Merged),
		attribute.Int("sync.skipped", report.Skipped),
		attribute.Int("sync.errors", len(report.Errors)))

	e.config.Logger.Info("reconciliation pass completed",
		"owner", ownerID,
		"pushed_activities", report.Pushed[record.KindActivity],
		"pushed_spots", report.Pushed[record.KindSpot],
		"pushed_achievements", report.Pushed[record.KindAchievement],
		"merged", report.Merged,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
		"duration_seconds", duration)

	return report, nil
}

// reconcileKind runs steps 1-7 of the per-kind algorithm. It returns the
// occurrence time of the earliest item that failed to push, or the zero
// time when everything succeeded. A non-nil error means the kind could not
// be processed at all (local load or remote fetch failed).
func (e *Engine) reconcileKind(ctx context.Context, ownerID string, kind record.Kind, watermark time.Time, report *Report) (time.Time, error) {
	switch kind {
	case record.KindActivity:
		return reconcileRecords(ctx, e, ownerID, kind, watermark, report,
			e.local.Activities, e.local.SaveActivities,
			e.remote.Activities, e.remote.InsertActivity)
	case record.KindSpot:
		return reconcileRecords(ctx, e, ownerID, kind, watermark, report,
			e.local.Spots, e.local.SaveSpots,
			e.remote.Spots, e.remote.InsertSpot)
	case record.KindAchievement:
		return reconcileRecords(ctx, e, ownerID, kind, watermark, report,
			e.local.Achievements, e.local.SaveAchievements,
			e.remote.Achievements, e.remote.InsertAchievement)
	default:
		return time.Time{}, fmt.Errorf("unknown kind %q", kind)
	}
}

// syncable is implemented by every reconcilable record kind. The type
// parameter lets WithIdentifier return the concrete kind.
type syncable[T any] interface {
	DedupKey() string
	OccurredAt() time.Time
	Validate() error
	Identifier() string
	WithIdentifier(id string) T
}

// reconcileRecords is the kind-generic core of the algorithm: skip already
// synced records, heal dedup collisions by rebinding local IDs, push the
// rest, and persist identifier rewrites even when some items failed.
func reconcileRecords[T syncable[T]](
	ctx context.Context,
	e *Engine,
	ownerID string,
	kind record.Kind,
	watermark time.Time,
	report *Report,
	loadLocal func(context.Context) ([]T, error),
	saveLocal func(context.Context, []T) error,
	fetchRemote func(context.Context, string) ([]T, error),
	insertRemote func(context.Context, string, T) (string, error),
) (time.Time, error) {
	locals, err := loadLocal(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("load local records: %w", err)
	}
	if len(locals) == 0 {
		return time.Time{}, nil
	}

	remotes, err := fetchRemote(ctx, ownerID)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch remote records: %w", err)
	}
	keyToID := make(map[string]string, len(remotes))
	for _, r := range remotes {
		keyToID[r.DedupKey()] = r.Identifier()
	}

	var earliestFailed time.Time
	changed := false

	for i := range locals {
		item := locals[i]
		id := item.Identifier()
		if record.IsServerID(id) {
			continue
		}
		if err := item.Validate(); err != nil {
			report.Skipped++
			e.config.Logger.Warn("skipping malformed local record",
				"kind", string(kind),
				"local_id", id,
				"error", err)
			continue
		}

		key := item.DedupKey()
		if serverID, ok := keyToID[key]; ok {
			// Already pushed by an earlier, interrupted pass: merge by
			// rebinding the local identifier instead of inserting.
			locals[i] = item.WithIdentifier(serverID)
			changed = true
			report.Merged++
			tracing.AddEvent(ctx, "record_merged",
				attribute.String("kind", string(kind)),
				attribute.String("server_id", serverID))
			if e.config.Metrics != nil {
				e.config.Metrics.IncMerged(kind)
			}
			continue
		}

		if !watermark.IsZero() && !item.OccurredAt().After(watermark) {
			continue
		}

		serverID, err := insertRemote(ctx, ownerID, item)
		if errors.Is(err, remote.ErrDuplicate) {
			// Raced with a concurrently running pass. Refetch once to
			// learn the winner's ID and rebind to it.
			if rebound, ok := rebindAfterCollision(ctx, ownerID, key, fetchRemote); ok {
				locals[i] = item.WithIdentifier(rebound)
				changed = true
				report.Merged++
				continue
			}
			// Could not resolve the winner; the next pass heals it.
			e.config.Logger.Warn("dedup collision left for next pass",
				"kind", string(kind),
				"local_id", id)
			continue
		}
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("%s %s: %w", kind, id, err))
			if earliestFailed.IsZero() || item.OccurredAt().Before(earliestFailed) {
				earliestFailed = item.OccurredAt()
			}
			if e.config.Metrics != nil {
				e.config.Metrics.IncPushErrors(kind)
			}
			e.config.Logger.Warn("push failed, will retry next pass",
				"kind", string(kind),
				"local_id", id,
				"error", err)
			continue
		}

		keyToID[key] = serverID
		locals[i] = item.WithIdentifier(serverID)
		changed = true
		report.Pushed[kind]++
		if e.config.Metrics != nil {
			e.config.Metrics.IncPushed(kind)
		}
	}

	if changed {
		if err := saveLocal(ctx, locals); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("persist %s rebinding: %w", kind, err))
		}
	}
	return earliestFailed, nil
}

// rebindAfterCollision refetches remote records to resolve the server ID
// that won a concurrent insert race for the given dedup key.
func rebindAfterCollision[T syncable[T]](ctx context.Context, ownerID, key string, fetchRemote func(context.Context, string) ([]T, error)) (string, bool) {
	remotes, err := fetchRemote(ctx, ownerID)
	if err != nil {
		return "", false
	}
	for _, r := range remotes {
		if r.DedupKey() == key {
			return r.Identifier(), true
		}
	}
	return "", false
}
