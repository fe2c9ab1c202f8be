// Package recall surfaces "on this day in a past year" memories: records
// whose date matches today's month and day in one of the previous five
// years.
package recall

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/record"
)

// MaxYearsBack bounds the lookback window.
const MaxYearsBack = 5

// ItemKind identifies what a memory item refers to.
type ItemKind string

// Memory item kinds.
const (
	ItemActivity ItemKind = "activity"
	ItemSpot     ItemKind = "spot"
	ItemTrip     ItemKind = "trip"
)

// Item is a single memory surfaced for a past-year date. Items are derived
// per detection pass and never persisted.
type Item struct {
	ID         string
	Kind       ItemKind
	Title      string
	Coord      *geo.Coordinate
	OccurredAt time.Time
	YearsAgo   int
}

// Source lists the owner's records for recall scanning.
type Source interface {
	Activities(ctx context.Context, ownerID string) ([]record.Activity, error)
	Spots(ctx context.Context, ownerID string) ([]record.Spot, error)
	Trips(ctx context.Context, ownerID string) ([]record.Trip, error)
}

// Detector scans past years for records dated on today's calendar day.
type Detector struct {
	source Source
	logger *slog.Logger
}

// NewDetector creates a recall detector.
func NewDetector(source Source, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{source: source, logger: logger}
}

// Detect returns memory items for today's month/day in each of the past
// MaxYearsBack years, ordered by ascending yearsAgo then occurrence time.
func (d *Detector) Detect(ctx context.Context, ownerID string, today time.Time) ([]Item, error) {
	activities, err := d.source.Activities(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	spots, err := d.source.Spots(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load spots: %w", err)
	}
	trips, err := d.source.Trips(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}

	var items []Item
	for yearsAgo := 1; yearsAgo <= MaxYearsBack; yearsAgo++ {
		dayStart := time.Date(today.Year()-yearsAgo, today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
		dayEnd := dayStart.Add(24 * time.Hour)

		for _, a := range activities {
			if inWindow(a.StartTime, dayStart, dayEnd) {
				items = append(items, Item{
					ID:         a.ID,
					Kind:       ItemActivity,
					Title:      a.Name,
					Coord:      a.StartCoord,
					OccurredAt: a.StartTime,
					YearsAgo:   yearsAgo,
				})
			}
		}
		for _, s := range spots {
			if inWindow(s.CreatedAt, dayStart, dayEnd) {
				coord := s.Coord
				items = append(items, Item{
					ID:         s.ID,
					Kind:       ItemSpot,
					Title:      s.Name,
					Coord:      &coord,
					OccurredAt: s.CreatedAt,
					YearsAgo:   yearsAgo,
				})
			}
		}
		for _, t := range trips {
			if inWindow(t.StartDate, dayStart, dayEnd) {
				items = append(items, Item{
					ID:         t.ID,
					Kind:       ItemTrip,
					Title:      t.Name,
					OccurredAt: t.StartDate,
					YearsAgo:   yearsAgo,
				})
			}
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].YearsAgo != items[j].YearsAgo {
			return items[i].YearsAgo < items[j].YearsAgo
		}
		return items[i].OccurredAt.Before(items[j].OccurredAt)
	})

	d.logger.Debug("recall pass completed",
		"owner", ownerID,
		"items", len(items))
	return items, nil
}

// GroupByYears buckets items by their yearsAgo offset for message
// composition. Keys are only present for non-empty groups.
func GroupByYears(items []Item) map[int][]Item {
	groups := make(map[int][]Item)
	for _, item := range items {
		groups[item.YearsAgo] = append(groups[item.YearsAgo], item)
	}
	return groups
}

// inWindow reports whether t falls in [start, end).
func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
