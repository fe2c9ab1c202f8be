package recall

import (
	"context"
	"testing"
	"time"

	"github.com/trailmark-app/trailmark/internal/record"
)

type stubSource struct {
	activities []record.Activity
	spots      []record.Spot
	trips      []record.Trip
}

func (s stubSource) Activities(context.Context, string) ([]record.Activity, error) {
	return s.activities, nil
}

func (s stubSource) Spots(context.Context, string) ([]record.Spot, error) {
	return s.spots, nil
}

func (s stubSource) Trips(context.Context, string) ([]record.Trip, error) {
	return s.trips, nil
}

func TestDetectGroupsByYearsAgo(t *testing.T) {
	today := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	source := stubSource{
		activities: []record.Activity{
			{ID: "a1", Name: "Spring Ride", StartTime: time.Date(2023, 3, 15, 8, 0, 0, 0, time.UTC)},
			{ID: "a2", Name: "Old Spring Ride", StartTime: time.Date(2022, 3, 15, 18, 45, 0, 0, time.UTC)},
			{ID: "a3", Name: "Wrong Day", StartTime: time.Date(2023, 3, 16, 0, 0, 0, 0, time.UTC)},
			{ID: "a4", Name: "Same Day This Year", StartTime: time.Date(2024, 3, 15, 7, 0, 0, 0, time.UTC)},
		},
	}
	d := NewDetector(source, nil)

	items, err := d.Detect(context.Background(), "owner", today)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Detect returned %d items, want 2: %+v", len(items), items)
	}
	if items[0].ID != "a1" || items[0].YearsAgo != 1 {
		t.Errorf("first item = %+v, want a1 at yearsAgo=1", items[0])
	}
	if items[1].ID != "a2" || items[1].YearsAgo != 2 {
		t.Errorf("second item = %+v, want a2 at yearsAgo=2", items[1])
	}

	groups := GroupByYears(items)
	if len(groups) != 2 {
		t.Fatalf("GroupByYears produced %d groups, want 2", len(groups))
	}
	if len(groups[1]) != 1 || len(groups[2]) != 1 {
		t.Errorf("unexpected grouping: %+v", groups)
	}
}

func TestDetectWindowBoundaries(t *testing.T) {
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	source := stubSource{
		activities: []record.Activity{
			{ID: "start", Name: "At Midnight", StartTime: time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)},
			{ID: "end", Name: "Last Second", StartTime: time.Date(2023, 3, 15, 23, 59, 59, 0, time.UTC)},
			{ID: "after", Name: "Next Midnight", StartTime: time.Date(2023, 3, 16, 0, 0, 0, 0, time.UTC)},
		},
	}
	d := NewDetector(source, nil)

	items, err := d.Detect(context.Background(), "owner", today)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Detect returned %d items, want 2 (inclusive start, exclusive end)", len(items))
	}
}

func TestDetectAllKinds(t *testing.T) {
	today := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	source := stubSource{
		activities: []record.Activity{
			{ID: "a1", Name: "July Ride", StartTime: time.Date(2021, 7, 1, 9, 0, 0, 0, time.UTC)},
		},
		spots: []record.Spot{
			{ID: "s1", Name: "Viewpoint", CreatedAt: time.Date(2021, 7, 1, 14, 0, 0, 0, time.UTC)},
		},
		trips: []record.Trip{
			{ID: "t1", Name: "Coast Trip", StartDate: time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
	d := NewDetector(source, nil)

	items, err := d.Detect(context.Background(), "owner", today)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Detect returned %d items, want 3", len(items))
	}
	for _, item := range items {
		if item.YearsAgo != 3 {
			t.Errorf("item %s yearsAgo = %d, want 3", item.ID, item.YearsAgo)
		}
	}

	kinds := map[ItemKind]bool{}
	for _, item := range items {
		kinds[item.Kind] = true
	}
	for _, want := range []ItemKind{ItemActivity, ItemSpot, ItemTrip} {
		if !kinds[want] {
			t.Errorf("missing item kind %s", want)
		}
	}
}

func TestDetectLookbackBound(t *testing.T) {
	today := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	source := stubSource{
		activities: []record.Activity{
			{ID: "in", Name: "Five Years Ago", StartTime: time.Date(2019, 5, 10, 8, 0, 0, 0, time.UTC)},
			{ID: "out", Name: "Six Years Ago", StartTime: time.Date(2018, 5, 10, 8, 0, 0, 0, time.UTC)},
		},
	}
	d := NewDetector(source, nil)

	items, err := d.Detect(context.Background(), "owner", today)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(items) != 1 || items[0].ID != "in" {
		t.Fatalf("Detect = %+v, want only the five-year-old activity", items)
	}
}
