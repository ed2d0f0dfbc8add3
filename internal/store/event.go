package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Event records the onset of one expression.
type Event struct {
	ID          int64
	SessionID   string
	Label       string
	FaceID      string
	BlendShapes json.RawMessage
	OccurredAt  time.Time
}

// LabelCount is the number of onsets recorded for one label.
type LabelCount struct {
	Label string
	Count int
}

// EventRepository provides access to expression events.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create inserts several events in a single transaction and sets their IDs.
func (r *EventRepository) Create(events ...*Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO expression_events (session_id, label, face_id, blend_shapes, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if e.OccurredAt.IsZero() {
			e.OccurredAt = time.Now()
		}
		shapes := e.BlendShapes
		if shapes == nil {
			shapes = json.RawMessage("{}")
		}

		result, err := stmt.Exec(e.SessionID, e.Label, e.FaceID, string(shapes), e.OccurredAt)
		if err != nil {
			return err
		}
		if e.ID, err = result.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListBySession returns a session's events in the order they occurred.
func (r *EventRepository) ListBySession(sessionID string) ([]*Event, error) {
	return r.query(
		`SELECT id, session_id, label, face_id, blend_shapes, occurred_at
		 FROM expression_events WHERE session_id = ? ORDER BY occurred_at, id`,
		sessionID,
	)
}

// ListRecent returns up to limit events across all sessions, newest first.
func (r *EventRepository) ListRecent(limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.query(
		`SELECT id, session_id, label, face_id, blend_shapes, occurred_at
		 FROM expression_events ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		limit,
	)
}

// CountByLabel returns onset counts per label, highest first.
// An empty sessionID counts across all sessions.
func (r *EventRepository) CountByLabel(sessionID string) ([]LabelCount, error) {
	query := `SELECT label, COUNT(*) FROM expression_events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` GROUP BY label ORDER BY COUNT(*) DESC, label`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *EventRepository) query(query string, args ...any) ([]*Event, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var shapes string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Label, &e.FaceID, &shapes, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.BlendShapes = json.RawMessage(shapes)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
