package notify

import (
	"fmt"
	"time"

	"github.com/trailmark-app/trailmark/internal/proximity"
	"github.com/trailmark-app/trailmark/internal/recall"
)

// FavoriteVisitThreshold is the visit count above which a recently visited
// place still produces a "favorite spot" alert instead of being suppressed.
const FavoriteVisitThreshold = 3

// ComposeRecall builds the title and body for one yearsAgo group of memory
// items. A single item gets a kind-specific sentence; multiple items are
// aggregated into per-kind counts.
func ComposeRecall(yearsAgo int, items []recall.Item) (title, body string) {
	title = "On this day"
	if yearsAgo == 1 {
		title = "On this day last year"
	} else if yearsAgo > 1 {
		title = fmt.Sprintf("On this day %d years ago", yearsAgo)
	}

	if len(items) == 1 {
		item := items[0]
		switch item.Kind {
		case recall.ItemActivity:
			body = fmt.Sprintf("You completed %s", item.Title)
		case recall.ItemSpot:
			body = fmt.Sprintf("You visited %s", item.Title)
		case recall.ItemTrip:
			body = fmt.Sprintf("You started trip %s", item.Title)
		}
		return title, body
	}

	var activities, spots, trips int
	for _, item := range items {
		switch item.Kind {
		case recall.ItemActivity:
			activities++
		case recall.ItemSpot:
			spots++
		case recall.ItemTrip:
			trips++
		}
	}

	parts := make([]string, 0, 3)
	if activities > 0 {
		parts = append(parts, plural(activities, "activity", "activities"))
	}
	if spots > 0 {
		parts = append(parts, plural(spots, "spot", "spots"))
	}
	if trips > 0 {
		parts = append(parts, plural(trips, "trip", "trips"))
	}
	body = joinParts(parts) + " from this day"
	return title, body
}

// ComposeProximity builds the message for a nearby place, tiered by how
// long ago it was last visited. Places visited within the last 30 days are
// suppressed unless they are frequent favorites; ok reports whether a
// message should be sent at all.
func ComposeProximity(place proximity.Place, now time.Time) (title, body string, ok bool) {
	days := int(now.Sub(place.LastVisitedAt).Hours() / 24)

	switch {
	case days > 365:
		return "A place from your past",
			fmt.Sprintf("It's been over a year since you were at %s. It's just %.0f m away.", place.Name, place.DistanceMeters),
			true
	case days > 180:
		return "Remember this place?",
			fmt.Sprintf("You haven't been to %s in over six months. It's %.0f m from here.", place.Name, place.DistanceMeters),
			true
	case days > 90:
		return "It's been a while",
			fmt.Sprintf("%s is nearby. Your last visit was over three months ago.", place.Name),
			true
	case days > 30:
		return "Nearby rediscovery",
			fmt.Sprintf("You're close to %s, last visited %d days ago.", place.Name, days),
			true
	default:
		if place.VisitCount > FavoriteVisitThreshold {
			return "One of your favorites",
				fmt.Sprintf("%s is just around the corner.", place.Name),
				true
		}
		return "", "", false
	}
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %s", n, pluralForm)
}

func joinParts(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + ", " + parts[1]
	default:
		return parts[0] + ", " + parts[1] + ", " + parts[2]
	}
}
