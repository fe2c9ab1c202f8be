package record

import (
	"strings"
	"testing"
	"time"

	"github.com/trailmark-app/trailmark/internal/geo"
)

func TestActivityDedupKey(t *testing.T) {
	start := time.Date(2023, 5, 1, 8, 0, 0, 0, time.UTC)
	a := Activity{Name: "Morning Ride", StartTime: start}
	b := Activity{Name: "Morning Ride", StartTime: start, Notes: "different notes"}
	c := Activity{Name: "Morning Ride", StartTime: start.Add(time.Millisecond)}

	if a.DedupKey() != b.DedupKey() {
		t.Errorf("same name and start should share a dedup key: %q vs %q", a.DedupKey(), b.DedupKey())
	}
	if a.DedupKey() == c.DedupKey() {
		t.Errorf("a millisecond shift should change the dedup key")
	}
}

func TestSpotDedupKey(t *testing.T) {
	a := Spot{Name: "Lookout", Coord: geo.Coordinate{Lat: 48.8566001, Lng: 2.3522001}}
	b := Spot{Name: "Renamed Lookout", Coord: geo.Coordinate{Lat: 48.8566002, Lng: 2.3522003}}
	far := Spot{Name: "Lookout", Coord: geo.Coordinate{Lat: 48.8576, Lng: 2.3522}}

	// Sub-micro-degree differences round to the same 6-decimal key.
	if a.DedupKey() != b.DedupKey() {
		t.Errorf("coordinates within rounding should share a key: %q vs %q", a.DedupKey(), b.DedupKey())
	}
	if a.DedupKey() == far.DedupKey() {
		t.Errorf("distinct coordinates must not share a key")
	}
}

func TestAchievementDedupKey(t *testing.T) {
	a := Achievement{Type: "distance", Name: "100km", EarnedAt: time.Now()}
	b := Achievement{Type: "distance", Name: "100km", EarnedAt: time.Now().Add(time.Hour)}
	other := Achievement{Type: "streak", Name: "100km"}

	if a.DedupKey() != b.DedupKey() {
		t.Errorf("earned time must not affect the dedup key")
	}
	if a.DedupKey() == other.DedupKey() {
		t.Errorf("type must affect the dedup key")
	}
}

func TestIsServerID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"canonical uuid", "0f8fad5b-d9cb-469f-a165-70867728950e", true},
		{"local hex id", "a3f0b29c11dd4e02aa10ffee", false},
		{"dashless uuid form rejected", "0f8fad5bd9cb469fa16570867728950e", false},
		{"empty", "", false},
		{"garbage", "not-an-id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServerID(tt.id); got != tt.want {
				t.Errorf("IsServerID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNewLocalID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewLocalID()
		if len(id) != 24 {
			t.Fatalf("local id %q has length %d, want 24", id, len(id))
		}
		if strings.Contains(id, "-") {
			t.Fatalf("local id %q must not contain dashes", id)
		}
		if IsServerID(id) {
			t.Fatalf("local id %q must not parse as a server id", id)
		}
		if seen[id] {
			t.Fatalf("duplicate local id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestValidate(t *testing.T) {
	valid := geo.Coordinate{Lat: 10, Lng: 20}

	if err := (Activity{Name: "Ride", StartTime: time.Now()}).Validate(); err != nil {
		t.Errorf("valid activity: unexpected error %v", err)
	}
	if err := (Activity{StartTime: time.Now()}).Validate(); err != ErrMissingName {
		t.Errorf("unnamed activity: got %v, want ErrMissingName", err)
	}
	if err := (Activity{Name: "Ride"}).Validate(); err != ErrMissingTimestamp {
		t.Errorf("activity without start: got %v, want ErrMissingTimestamp", err)
	}
	if err := (Spot{Name: "Pin", Coord: valid}).Validate(); err != nil {
		t.Errorf("valid spot: unexpected error %v", err)
	}
	if err := (Spot{Name: "Pin"}).Validate(); err != ErrMissingCoordinate {
		t.Errorf("spot without coordinate: got %v, want ErrMissingCoordinate", err)
	}
	if err := (Achievement{Type: "distance", Name: "100km", EarnedAt: time.Now()}).Validate(); err != nil {
		t.Errorf("valid achievement: unexpected error %v", err)
	}
	if err := (Achievement{Type: "distance", Name: "100km"}).Validate(); err != ErrMissingTimestamp {
		t.Errorf("achievement without earned time: got %v, want ErrMissingTimestamp", err)
	}
}
