package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trailmark-app/trailmark/internal/proximity"
	"github.com/trailmark-app/trailmark/internal/recall"
)

func TestComposeRecallSingleItem(t *testing.T) {
	tests := []struct {
		name      string
		yearsAgo  int
		item      recall.Item
		wantTitle string
		wantBody  string
	}{
		{
			name:      "activity one year back",
			yearsAgo:  1,
			item:      recall.Item{Kind: recall.ItemActivity, Title: "Morning Ride"},
			wantTitle: "On this day last year",
			wantBody:  "You completed Morning Ride",
		},
		{
			name:      "spot three years back",
			yearsAgo:  3,
			item:      recall.Item{Kind: recall.ItemSpot, Title: "Lookout Rock"},
			wantTitle: "On this day 3 years ago",
			wantBody:  "You visited Lookout Rock",
		},
		{
			name:      "trip two years back",
			yearsAgo:  2,
			item:      recall.Item{Kind: recall.ItemTrip, Title: "Coast to Coast"},
			wantTitle: "On this day 2 years ago",
			wantBody:  "You started trip Coast to Coast",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := ComposeRecall(tt.yearsAgo, []recall.Item{tt.item})
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestComposeRecallAggregatesMultipleItems(t *testing.T) {
	items := []recall.Item{
		{Kind: recall.ItemActivity, Title: "Morning Ride"},
		{Kind: recall.ItemActivity, Title: "Evening Run"},
		{Kind: recall.ItemSpot, Title: "Lookout Rock"},
	}
	title, body := ComposeRecall(1, items)
	assert.Equal(t, "On this day last year", title)
	assert.Equal(t, "2 activities, 1 spot from this day", body)
}

func TestComposeRecallAllKinds(t *testing.T) {
	items := []recall.Item{
		{Kind: recall.ItemActivity, Title: "a"},
		{Kind: recall.ItemSpot, Title: "s"},
		{Kind: recall.ItemTrip, Title: "t"},
	}
	_, body := ComposeRecall(4, items)
	assert.Equal(t, "1 activity, 1 spot, 1 trip from this day", body)
}

func TestComposeProximityTiers(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	place := func(daysAgo, visits int) proximity.Place {
		return proximity.Place{
			Name:           "Lookout Rock",
			LastVisitedAt:  now.AddDate(0, 0, -daysAgo),
			VisitCount:     visits,
			DistanceMeters: 120,
		}
	}

	tests := []struct {
		name      string
		place     proximity.Place
		wantTitle string
		wantOK    bool
	}{
		{"over a year", place(400, 1), "A place from your past", true},
		{"over six months", place(200, 1), "Remember this place?", true},
		{"over three months", place(100, 1), "It's been a while", true},
		{"over a month", place(45, 1), "Nearby rediscovery", true},
		{"recent and rarely visited", place(10, 2), "", false},
		{"recent favorite", place(10, 5), "One of your favorites", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body, ok := ComposeProximity(tt.place, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTitle, title)
			if ok {
				assert.Contains(t, body, "Lookout Rock")
			}
		})
	}
}

func TestComposeProximityRecentFavoriteAtThresholdSuppressed(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p := proximity.Place{
		Name:          "Corner Cafe",
		LastVisitedAt: now.AddDate(0, 0, -5),
		VisitCount:    FavoriteVisitThreshold,
	}
	_, _, ok := ComposeProximity(p, now)
	assert.False(t, ok, "exactly at the threshold is not yet a favorite")
}
