// package repositories provides the persistence layer for the relay.
//
// HistoryRepository records playback-control commands so the relay can
// expose a recent-activity log; credentials are deliberately never persisted.
package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/spotrelay/internal/models"
	"github.com/desertthunder/spotrelay/internal/shared"
)

// HistoryRepository stores [models.PlayEvent] rows in SQLite.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a HistoryRepository with the given database connection.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts a new [models.PlayEvent] with a generated ID.
func (r *HistoryRepository) Create(event *models.PlayEvent) error {
	if event.ID() == "" {
		event.SetID(shared.GenerateID())
	}

	if err := event.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO play_history (id, action, track_uri, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, event.ID(), event.Action(), event.TrackURI(), event.CreatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert play event: %w", err)
	}

	return nil
}

// Record is a convenience wrapper creating and inserting an event in one call.
func (r *HistoryRepository) Record(action, trackURI string) error {
	return r.Create(models.NewPlayEvent(action, trackURI))
}

// Recent retrieves the most recent events, newest first.
func (r *HistoryRepository) Recent(limit int) ([]*models.PlayEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, action, track_uri, created_at
		FROM play_history
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query play history: %w", err)
	}
	defer rows.Close()

	var events []*models.PlayEvent
	for rows.Next() {
		var (
			id, action string
			trackURI   sql.NullString
			createdAt  time.Time
		)
		if err := rows.Scan(&id, &action, &trackURI, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan play event: %w", err)
		}
		events = append(events, models.RestorePlayEvent(id, action, trackURI.String, createdAt))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read play history: %w", err)
	}

	return events, nil
}
