package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/talkabout/talkabout/internal/model"
)

// ParticipantRepo provides data access to the
// waiting_room_participants table.  The table carries a unique key on
// (event_id, user_id); Join relies on it so that a reconnecting user
// updates the existing row instead of creating a duplicate.
type ParticipantRepo struct {
	db *sql.DB
}

// NewParticipantRepo returns a new ParticipantRepo bound to the
// provided database.
func NewParticipantRepo(db *sql.DB) *ParticipantRepo { return &ParticipantRepo{db: db} }

// Join upserts the registry row for (event, user): a first join
// inserts it with status WAITING, a reconnect resets the status to
// WAITING and records the new connection id while keeping the
// original joined_at, so snapshot ordering stays stable across
// reconnects.
func (r *ParticipantRepo) Join(ctx context.Context, eventID, userID uint64, connectionID string) error {
	const q = `INSERT INTO waiting_room_participants
			(event_id, user_id, status, connection_id, joined_at, last_seen)
		VALUES (?, ?, 'waiting', ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())
		ON DUPLICATE KEY UPDATE
			status = 'waiting',
			connection_id = VALUES(connection_id),
			last_seen = UTC_TIMESTAMP()`
	_, err := r.db.ExecContext(ctx, q, eventID, userID, connectionID)
	return err
}

// Heartbeat refreshes the last_seen timestamp for an entry.  A
// heartbeat for a row that does not exist is a no-op.
func (r *ParticipantRepo) Heartbeat(ctx context.Context, eventID, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE waiting_room_participants SET last_seen = UTC_TIMESTAMP()
		 WHERE event_id = ? AND user_id = ?`,
		eventID, userID)
	return err
}

// SetStatus updates the liveness status of an entry and refreshes
// last_seen.  It returns true when a row was actually changed.
func (r *ParticipantRepo) SetStatus(ctx context.Context, eventID, userID uint64, status model.ParticipantStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE waiting_room_participants SET status = ?, last_seen = UTC_TIMESTAMP()
		 WHERE event_id = ? AND user_id = ?`,
		status, eventID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Entry is a registry row joined with the user's public code for
// display in participant lists.
type Entry struct {
	UserID   uint64
	UserCode string
	Status   model.ParticipantStatus
	JoinedAt time.Time
	LastSeen time.Time
}

// Snapshot returns the active entries (WAITING or READY) for an
// event, ordered by original join time with the row id as a
// tie-break.  The stable ordering makes grouping deterministic for a
// given registry state; DISCONNECTED entries are excluded.
func (r *ParticipantRepo) Snapshot(ctx context.Context, eventID uint64) ([]Entry, error) {
	const q = `SELECT p.user_id, u.user_code, p.status, p.joined_at, p.last_seen
		FROM waiting_room_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.event_id = ? AND p.status IN ('waiting', 'ready')
		ORDER BY p.joined_at, p.id`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.UserCode, &e.Status, &e.JoinedAt, &e.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
