package repository

import (
	"context"
	"database/sql"

	"github.com/talkabout/talkabout/internal/model"
)

// MeetingRepo provides data access to the meetings and
// meeting_members tables.  Meetings for an event are only ever
// written through CreateForEvent, which wraps every room of the
// assembly in a single transaction so that partial group creation is
// never observable.
type MeetingRepo struct {
	db *sql.DB
}

// NewMeetingRepo returns a new MeetingRepo bound to the provided
// database.
func NewMeetingRepo(db *sql.DB) *MeetingRepo { return &MeetingRepo{db: db} }

// GroupAssignment describes one room to create: its locator, the
// provider room identifier and the users assigned to it, in group
// order.
type GroupAssignment struct {
	RoomURL        string
	ProviderRoomID string
	UserIDs        []uint64
}

// CreateForEvent persists every meeting and membership of one
// assembly atomically.  On any failure the whole transaction is
// rolled back and no Meeting rows remain.  Memberships are created
// with status ASSIGNED.
func (r *MeetingRepo) CreateForEvent(ctx context.Context, eventID uint64, provider model.MeetingProvider, groups []GroupAssignment) error {
	if len(groups) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, g := range groups {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO meetings (event_id, room_url, provider, provider_room_id) VALUES (?, ?, ?, ?)`,
			eventID, g.RoomURL, provider, g.ProviderRoomID)
		if err != nil {
			return err
		}
		meetingID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := createMembersBulkTx(ctx, tx, uint64(meetingID), g.UserIDs); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// createMembersBulkTx inserts all memberships of one meeting in a
// single multi-row statement.
func createMembersBulkTx(ctx context.Context, tx *sql.Tx, meetingID uint64, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `INSERT INTO meeting_members (meeting_id, user_id, status) VALUES `
	args := make([]interface{}, 0, len(userIDs)*3)
	for i, uid := range userIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, meetingID, uid, model.MemberAssigned)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetForUser returns the meeting a user was assigned to for an event,
// or ErrMeetingNotFound when assembly has not placed them anywhere.
func (r *MeetingRepo) GetForUser(ctx context.Context, eventID, userID uint64) (model.Meeting, error) {
	const q = `SELECT m.id, m.event_id, m.room_url, m.provider, m.provider_room_id, m.created_at, m.ended_at
		FROM meetings m
		JOIN meeting_members mm ON mm.meeting_id = m.id
		WHERE m.event_id = ? AND mm.user_id = ?`
	var (
		mt    model.Meeting
		ended sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, eventID, userID).Scan(
		&mt.ID, &mt.EventID, &mt.RoomURL, &mt.Provider, &mt.ProviderRoomID, &mt.CreatedAt, &ended)
	if err == sql.ErrNoRows {
		return model.Meeting{}, ErrMeetingNotFound
	}
	if err != nil {
		return model.Meeting{}, err
	}
	if ended.Valid {
		t := ended.Time
		mt.EndedAt = &t
	}
	return mt, nil
}

// CountByEvent returns the number of meetings and memberships created
// for an event; both are zero before assembly.
func (r *MeetingRepo) CountByEvent(ctx context.Context, eventID uint64) (meetings, members int64, err error) {
	const q = `SELECT COUNT(DISTINCT m.id), COUNT(mm.id)
		FROM meetings m
		LEFT JOIN meeting_members mm ON mm.meeting_id = m.id
		WHERE m.event_id = ?`
	err = r.db.QueryRowContext(ctx, q, eventID).Scan(&meetings, &members)
	return meetings, members, err
}

// SetMemberStatus stores a JOINED/LEFT transition reported by the
// call provider.  The core only records it.
func (r *MeetingRepo) SetMemberStatus(ctx context.Context, meetingID, userID uint64, status model.MemberStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE meeting_members SET status = ? WHERE meeting_id = ? AND user_id = ?`,
		status, meetingID, userID)
	return err
}
