package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/home"
	"github.com/trailmark-app/trailmark/internal/notify"
	"github.com/trailmark-app/trailmark/internal/proximity"
	"github.com/trailmark-app/trailmark/internal/recall"
	"github.com/trailmark-app/trailmark/internal/tracing"
)

// Runner executes one detection pass end to end: detect, compose,
// dispatch, and record the side effects that gate future passes.
type Runner struct {
	proximity *proximity.Detector
	recall    *recall.Detector
	dispatch  *notify.Dispatcher
	home      *home.Estimator
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner creates a pass runner. now is injectable for tests.
func NewRunner(
	prox *proximity.Detector,
	rec *recall.Detector,
	dispatch *notify.Dispatcher,
	homeEstimator *home.Estimator,
	logger *slog.Logger,
	now func() time.Time,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Runner{
		proximity: prox,
		recall:    rec,
		dispatch:  dispatch,
		home:      homeEstimator,
		logger:    logger,
		now:       now,
	}
}

// WarmHome resolves the home zone once so later passes hit the session
// cache. Failure is logged only; detection falls back to no-home.
func (r *Runner) WarmHome(ctx context.Context, ownerID string) {
	if r.home == nil {
		return
	}
	if _, err := r.home.Resolve(ctx, ownerID); err != nil {
		r.logger.Warn("home zone warm-up failed",
			"owner", ownerID,
			"error", err)
	}
}

// ProximityPass detects nearby previously visited places and dispatches
// an alert for each. A place enters cooldown only after its notification
// row was durably written.
func (r *Runner) ProximityPass(ctx context.Context, ownerID string, current geo.Coordinate) (retErr error) {
	ctx, endSpan := tracing.StartSpan(ctx, "proximity_scan")
	defer func() { endSpan(retErr) }()

	places, err := r.proximity.Detect(ctx, current, ownerID)
	if err != nil {
		return err
	}

	var dispatchErrs []error
	for _, place := range places {
		title, body, ok := notify.ComposeProximity(place, r.now())
		if !ok {
			continue
		}
		payload := map[string]string{
			"place":  place.Key,
			"origin": string(place.Origin),
		}
		if _, err := r.dispatch.Dispatch(ctx, ownerID, title, body, payload, notify.CategoryProximity); err != nil {
			dispatchErrs = append(dispatchErrs, err)
			continue
		}
		if err := r.proximity.MarkNotified(ctx, place); err != nil {
			r.logger.Warn("failed to record notification cooldown",
				"place", place.Key,
				"error", err)
		}
	}
	return errors.Join(dispatchErrs...)
}

// RecallPass detects anniversary memories for today and dispatches one
// aggregated alert per years-ago group.
func (r *Runner) RecallPass(ctx context.Context, ownerID string, today time.Time) (retErr error) {
	ctx, endSpan := tracing.StartSpan(ctx, "recall_scan")
	defer func() { endSpan(retErr) }()

	items, err := r.recall.Detect(ctx, ownerID, today)
	if err != nil {
		return err
	}
	groups := recall.GroupByYears(items)

	years := make([]int, 0, len(groups))
	for y := range groups {
		years = append(years, y)
	}
	sort.Ints(years)

	var dispatchErrs []error
	for _, yearsAgo := range years {
		title, body := notify.ComposeRecall(yearsAgo, groups[yearsAgo])
		payload := map[string]string{
			"years_ago": strconv.Itoa(yearsAgo),
		}
		if _, err := r.dispatch.Dispatch(ctx, ownerID, title, body, payload, notify.CategoryMemory); err != nil {
			dispatchErrs = append(dispatchErrs, err)
		}
	}
	return errors.Join(dispatchErrs...)
}
