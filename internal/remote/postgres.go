package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/record"
	"github.com/trailmark-app/trailmark/internal/tracing"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// Postgres implements Store over a PostgreSQL database. The schema mirrors
// the hosted backend's tables, including the per-owner unique indexes on
// each kind's dedup key columns; a violation surfaces as ErrDuplicate.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed remote store.
func NewPostgres(db *sql.DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// Activities returns all of the owner's activities.
func (p *Postgres) Activities(ctx context.Context, ownerID string) ([]record.Activity, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, sport, start_time, end_time, start_lat, start_lng,
		       end_lat, end_lng, distance_meters, notes, created_at
		FROM activities
		WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var out []record.Activity
	for rows.Next() {
		var (
			a                          record.Activity
			sport, notes               sql.NullString
			endTime                    sql.NullTime
			sLat, sLng, eLat, eLng, km sql.NullFloat64
		)
		if err := rows.Scan(&a.ID, &a.Name, &sport, &a.StartTime, &endTime,
			&sLat, &sLng, &eLat, &eLng, &km, &notes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Sport = sport.String
		a.Notes = notes.String
		if endTime.Valid {
			a.EndTime = endTime.Time
		}
		if sLat.Valid && sLng.Valid {
			a.StartCoord = &geo.Coordinate{Lat: sLat.Float64, Lng: sLng.Float64}
		}
		if eLat.Valid && eLng.Valid {
			a.EndCoord = &geo.Coordinate{Lat: eLat.Float64, Lng: eLng.Float64}
		}
		if km.Valid {
			a.DistanceMeters = km.Float64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertActivity stores a new activity and returns its server ID.
func (p *Postgres) InsertActivity(ctx context.Context, ownerID string, a record.Activity) (_ string, retErr error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "activities", tracing.DBOperationInsert)
	defer func() { endSpan(retErr) }()

	id := uuid.NewString()
	var sLat, sLng, eLat, eLng any
	if a.StartCoord != nil {
		sLat, sLng = a.StartCoord.Lat, a.StartCoord.Lng
	}
	if a.EndCoord != nil {
		eLat, eLng = a.EndCoord.Lat, a.EndCoord.Lng
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO activities (id, owner_id, name, sport, start_time, end_time,
		       start_lat, start_lng, end_lat, end_lng, distance_meters, notes, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13)`,
		id, ownerID, a.Name, a.Sport, a.StartTime, nullTime(a.EndTime),
		sLat, sLng, eLat, eLng, a.DistanceMeters, a.Notes, createdAt(a.CreatedAt))
	if err != nil {
		return "", classifyInsertErr("activity", err)
	}
	return id, nil
}

// Spots returns all of the owner's saved spots.
func (p *Postgres) Spots(ctx context.Context, ownerID string) ([]record.Spot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, lat, lng, visit_count, last_visited_at, notes, created_at
		FROM spots
		WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query spots: %w", err)
	}
	defer rows.Close()

	var out []record.Spot
	for rows.Next() {
		var (
			s           record.Spot
			notes       sql.NullString
			lastVisited sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Coord.Lat, &s.Coord.Lng,
			&s.VisitCount, &lastVisited, &notes, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan spot: %w", err)
		}
		s.Notes = notes.String
		if lastVisited.Valid {
			s.LastVisitedAt = lastVisited.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertSpot stores a new spot and returns its server ID.
func (p *Postgres) InsertSpot(ctx context.Context, ownerID string, s record.Spot) (_ string, retErr error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "spots", tracing.DBOperationInsert)
	defer func() { endSpan(retErr) }()

	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO spots (id, owner_id, name, lat, lng, visit_count, last_visited_at, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`,
		id, ownerID, s.Name, s.Coord.Lat, s.Coord.Lng, s.VisitCount,
		nullTime(s.LastVisitedAt), s.Notes, createdAt(s.CreatedAt))
	if err != nil {
		return "", classifyInsertErr("spot", err)
	}
	return id, nil
}

// Achievements returns all of the owner's achievements.
func (p *Postgres) Achievements(ctx context.Context, ownerID string) ([]record.Achievement, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, type, name, earned_at
		FROM achievements
		WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer rows.Close()

	var out []record.Achievement
	for rows.Next() {
		var a record.Achievement
		if err := rows.Scan(&a.ID, &a.Type, &a.Name, &a.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAchievement stores a new achievement and returns its server ID.
func (p *Postgres) InsertAchievement(ctx context.Context, ownerID string, a record.Achievement) (_ string, retErr error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "achievements", tracing.DBOperationInsert)
	defer func() { endSpan(retErr) }()

	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO achievements (id, owner_id, type, name, earned_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, ownerID, a.Type, a.Name, a.EarnedAt)
	if err != nil {
		return "", classifyInsertErr("achievement", err)
	}
	return id, nil
}

// Trips returns all of the owner's trips.
func (p *Postgres) Trips(ctx context.Context, ownerID string) ([]record.Trip, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, start_date, end_date
		FROM trips
		WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var out []record.Trip
	for rows.Next() {
		var (
			t       record.Trip
			endDate sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.StartDate, &endDate); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		if endDate.Valid {
			t.EndDate = endDate.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertNotification stores an in-app notification row.
func (p *Postgres) InsertNotification(ctx context.Context, n Notification) (_ string, retErr error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "notifications", tracing.DBOperationInsert)
	defer func() { endSpan(retErr) }()

	id := uuid.NewString()
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return "", fmt.Errorf("encode notification payload: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, owner_id, title, body, category, payload, created_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)`,
		id, n.OwnerID, n.Title, n.Body, n.Category, payload, createdAt(n.CreatedAt))
	if err != nil {
		return "", classifyInsertErr("notification", err)
	}
	return id, nil
}

// Preferences returns the owner's notification category preferences.
func (p *Postgres) Preferences(ctx context.Context, ownerID string) (Preferences, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT category, enabled
		FROM notification_preferences
		WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	prefs := Preferences{}
	for rows.Next() {
		var (
			category string
			enabled  bool
		)
		if err := rows.Scan(&category, &enabled); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[category] = enabled
	}
	return prefs, rows.Err()
}

// DeviceToken returns the owner's most recently registered push token.
func (p *Postgres) DeviceToken(ctx context.Context, ownerID string) (string, error) {
	var token string
	err := p.db.QueryRowContext(ctx, `
		SELECT push_token
		FROM devices
		WHERE owner_id = $1
		ORDER BY registered_at DESC
		LIMIT 1`, ownerID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query device token: %w", err)
	}
	return token, nil
}

// classifyInsertErr maps unique constraint violations to ErrDuplicate.
func classifyInsertErr(kind string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return fmt.Errorf("insert %s: %w", kind, err)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
