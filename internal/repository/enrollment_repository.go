package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/talkabout/talkabout/internal/model"
)

// EnrollmentRepo provides data access to the enrollments table.
// Enrollment is the authorization boundary of the waiting room: a
// registry entry may exist only while the user holds an enrollment in
// status "enrolled".
type EnrollmentRepo struct {
	db *sql.DB
}

// NewEnrollmentRepo returns a new EnrollmentRepo bound to the
// provided database.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

// randomToken generates a random hexadecimal string of n bytes (2n
// characters).  It populates the unsubscribe_token column.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Enroll creates an enrollment for (event, user) with a fresh
// unsubscribe token.  A duplicate pair returns ErrAlreadyEnrolled; a
// previously cancelled enrollment is re-activated instead.
func (r *EnrollmentRepo) Enroll(ctx context.Context, eventID, userID uint64) (model.Enrollment, error) {
	token, err := randomToken(32)
	if err != nil {
		return model.Enrollment{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollments (event_id, user_id, status, unsubscribe_token) VALUES (?, ?, 'enrolled', ?)`,
		eventID, userID, token)
	if err != nil {
		// MySQL duplicate-key error on the (event_id, user_id) unique index.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return r.reactivate(ctx, eventID, userID)
		}
		return model.Enrollment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Enrollment{}, err
	}
	return r.getByID(ctx, uint64(id))
}

// reactivate flips a cancelled enrollment back to enrolled.  A pair
// that is already active yields ErrAlreadyEnrolled.
func (r *EnrollmentRepo) reactivate(ctx context.Context, eventID, userID uint64) (model.Enrollment, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE enrollments SET status = 'enrolled' WHERE event_id = ? AND user_id = ? AND status = 'cancelled'`,
		eventID, userID)
	if err != nil {
		return model.Enrollment{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Enrollment{}, err
	}
	if n == 0 {
		return model.Enrollment{}, ErrAlreadyEnrolled
	}
	return r.getByPair(ctx, eventID, userID)
}

// Cancel marks the user's enrollment for the event as cancelled.  It
// returns true when an active enrollment was cancelled.
func (r *EnrollmentRepo) Cancel(ctx context.Context, eventID, userID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE enrollments SET status = 'cancelled' WHERE event_id = ? AND user_id = ? AND status = 'enrolled'`,
		eventID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsEnrolled reports whether the user holds an active enrollment for
// the event.  This is the authorization check for registry joins.
func (r *EnrollmentRepo) IsEnrolled(ctx context.Context, eventID, userID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM enrollments WHERE event_id = ? AND user_id = ? AND status = 'enrolled' LIMIT 1`,
		eventID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnrolledUser is an active enrollment joined with the contact fields
// notification sweeps need.
type EnrolledUser struct {
	UserID           uint64
	UserCode         string
	Email            string
	UnsubscribeToken string
}

// ListEnrolled returns the active enrollments for an event with the
// user's code and email.  Users without an email address are included;
// the notification consumer decides what to do with them.
func (r *EnrollmentRepo) ListEnrolled(ctx context.Context, eventID uint64) ([]EnrolledUser, error) {
	const q = `SELECT e.user_id, u.user_code, COALESCE(u.email, ''), e.unsubscribe_token
		FROM enrollments e
		JOIN users u ON u.id = e.user_id
		WHERE e.event_id = ? AND e.status = 'enrolled'
		ORDER BY e.enrolled_at, e.id`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EnrolledUser
	for rows.Next() {
		var u EnrolledUser
		if err := rows.Scan(&u.UserID, &u.UserCode, &u.Email, &u.UnsubscribeToken); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *EnrollmentRepo) getByID(ctx context.Context, id uint64) (model.Enrollment, error) {
	var en model.Enrollment
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, status, unsubscribe_token, enrolled_at, updated_at
		 FROM enrollments WHERE id = ?`, id).
		Scan(&en.ID, &en.EventID, &en.UserID, &en.Status, &en.UnsubscribeToken, &en.EnrolledAt, &en.UpdatedAt)
	return en, err
}

func (r *EnrollmentRepo) getByPair(ctx context.Context, eventID, userID uint64) (model.Enrollment, error) {
	var en model.Enrollment
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, status, unsubscribe_token, enrolled_at, updated_at
		 FROM enrollments WHERE event_id = ? AND user_id = ?`, eventID, userID).
		Scan(&en.ID, &en.EventID, &en.UserID, &en.Status, &en.UnsubscribeToken, &en.EnrolledAt, &en.UpdatedAt)
	return en, err
}
