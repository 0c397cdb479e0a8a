package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/talkabout/talkabout/internal/model"
)

// EventRepo provides data access to the events table.  All timestamp
// comparisons are performed in UTC; the connection is opened with
// loc=UTC so DATETIME columns scan into UTC time.Time values.
//
// The one correctness-critical method is ClaimForAssembly: a single
// conditional UPDATE guarded by the current status.  Whichever caller
// gets RowsAffected == 1 owns the assembly for that event; everyone
// else observes the state already changed and must skip it.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions
// spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventColumns = `id, activity_id, start_time, end_time, wait_minutes,
	first_reminder_minutes, second_reminder_minutes,
	first_reminder_sent, second_reminder_sent, waiting_email_sent,
	status, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (model.Event, error) {
	var (
		ev     model.Event
		first  sql.NullInt64
		second sql.NullInt64
	)
	err := row.Scan(&ev.ID, &ev.ActivityID, &ev.StartTime, &ev.EndTime, &ev.WaitMinutes,
		&first, &second,
		&ev.FirstReminderSent, &ev.SecondReminderSent, &ev.WaitingEmailSent,
		&ev.Status, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return model.Event{}, err
	}
	if first.Valid {
		v := uint32(first.Int64)
		ev.FirstReminderMinutes = &v
	}
	if second.Valid {
		v := uint32(second.Int64)
		ev.SecondReminderMinutes = &v
	}
	return ev, nil
}

// GetByID returns a single event or ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return model.Event{}, ErrEventNotFound
	}
	return ev, err
}

// EventDetail is an event joined with the fields of its activity that
// browse endpoints and the assembler need.
type EventDetail struct {
	model.Event
	ActivityCode  string
	ActivityTitle string
	MaxPerRoom    uint32
}

// GetDetail returns the event together with its activity code, title
// and room capacity.
func (r *EventRepo) GetDetail(ctx context.Context, id uint64) (EventDetail, error) {
	const q = `SELECT e.id, e.activity_id, e.start_time, e.end_time, e.wait_minutes,
			e.first_reminder_minutes, e.second_reminder_minutes,
			e.first_reminder_sent, e.second_reminder_sent, e.waiting_email_sent,
			e.status, e.created_at, e.updated_at,
			a.code, a.title, a.max_per_room
		FROM events e JOIN activities a ON a.id = e.activity_id
		WHERE e.id = ?`
	var (
		d      EventDetail
		first  sql.NullInt64
		second sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.ActivityID, &d.StartTime, &d.EndTime, &d.WaitMinutes,
		&first, &second,
		&d.FirstReminderSent, &d.SecondReminderSent, &d.WaitingEmailSent,
		&d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.ActivityCode, &d.ActivityTitle, &d.MaxPerRoom)
	if err == sql.ErrNoRows {
		return EventDetail{}, ErrEventNotFound
	}
	if err != nil {
		return EventDetail{}, err
	}
	if first.Valid {
		v := uint32(first.Int64)
		d.FirstReminderMinutes = &v
	}
	if second.Valid {
		v := uint32(second.Int64)
		d.SecondReminderMinutes = &v
	}
	return d, nil
}

// ListUpcoming returns events that have not finished yet, earliest
// first, joined with their activity for display.
func (r *EventRepo) ListUpcoming(ctx context.Context, now time.Time) ([]EventDetail, error) {
	const q = `SELECT e.id, e.activity_id, e.start_time, e.end_time, e.wait_minutes,
			e.first_reminder_minutes, e.second_reminder_minutes,
			e.first_reminder_sent, e.second_reminder_sent, e.waiting_email_sent,
			e.status, e.created_at, e.updated_at,
			a.code, a.title, a.max_per_room
		FROM events e JOIN activities a ON a.id = e.activity_id
		WHERE e.end_time >= ? AND e.status NOT IN ('completed', 'cancelled')
		ORDER BY e.start_time, e.id`
	rows, err := r.db.QueryContext(ctx, q, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventDetail
	for rows.Next() {
		var (
			d      EventDetail
			first  sql.NullInt64
			second sql.NullInt64
		)
		if err := rows.Scan(
			&d.ID, &d.ActivityID, &d.StartTime, &d.EndTime, &d.WaitMinutes,
			&first, &second,
			&d.FirstReminderSent, &d.SecondReminderSent, &d.WaitingEmailSent,
			&d.Status, &d.CreatedAt, &d.UpdatedAt,
			&d.ActivityCode, &d.ActivityTitle, &d.MaxPerRoom); err != nil {
			return nil, err
		}
		if first.Valid {
			v := uint32(first.Int64)
			d.FirstReminderMinutes = &v
		}
		if second.Valid {
			v := uint32(second.Int64)
			d.SecondReminderMinutes = &v
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Transition performs a guarded lifecycle change: the UPDATE only
// applies while the event is still in the expected source state, so a
// concurrent writer cannot be overwritten.  Both a statically illegal
// move and a lost race surface as ErrInvalidStateTransition.
func (r *EventRepo) Transition(ctx context.Context, id uint64, from, to model.EventStatus) error {
	if !from.CanTransition(to) {
		return ErrInvalidStateTransition
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
		to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the event does not exist or someone moved it first.
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return gerr
		}
		return ErrInvalidStateTransition
	}
	return nil
}

// ClaimForAssembly atomically moves an event from IN_WAITING to
// IN_PROGRESS.  It returns true only for the single caller whose
// conditional UPDATE matched; concurrent scanners lose the race and
// get false with no error.  This is the linearization point that
// prevents duplicate meeting creation.
func (r *EventRepo) ClaimForAssembly(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
		model.EventInProgress, id, model.EventInWaiting)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseClaim rolls an event back from IN_PROGRESS to IN_WAITING
// after a failed assembly, making it eligible for the scanner again.
func (r *EventRepo) ReleaseClaim(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
		model.EventInWaiting, id, model.EventInProgress)
	return err
}

// Complete moves a claimed event to COMPLETED once assembly finished
// (or found too few participants to proceed).
func (r *EventRepo) Complete(ctx context.Context, id uint64) error {
	return r.Transition(ctx, id, model.EventInProgress, model.EventCompleted)
}

// ListWaitingRoomDue returns SCHEDULED events whose waiting room
// should be open by now and whose open notice has not been sent.
func (r *EventRepo) ListWaitingRoomDue(ctx context.Context, now time.Time) ([]model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events
		WHERE status = 'scheduled' AND waiting_email_sent = 0
		AND DATE_SUB(start_time, INTERVAL wait_minutes MINUTE) <= ?
		ORDER BY start_time, id`
	return r.listEvents(ctx, q, now.UTC())
}

// OpenWaitingRoom transitions a due event to IN_WAITING and records
// that the open notice was sent.  Guarded by the current status so a
// concurrent scanner tick opens each room exactly once.
func (r *EventRepo) OpenWaitingRoom(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = ?, waiting_email_sent = 1, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = ?`,
		model.EventInWaiting, id, model.EventScheduled)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AssemblyCandidate is an event due for assembly together with the
// room capacity of its activity.
type AssemblyCandidate struct {
	EventID       uint64
	ActivityTitle string
	MaxPerRoom    uint32
	StartTime     time.Time
}

// ListAssemblyDue returns IN_WAITING events whose start time has
// passed, joined with the activity capacity the assembler needs.
func (r *EventRepo) ListAssemblyDue(ctx context.Context, now time.Time) ([]AssemblyCandidate, error) {
	const q = `SELECT e.id, a.title, a.max_per_room, e.start_time
		FROM events e JOIN activities a ON a.id = e.activity_id
		WHERE e.status = 'in_waiting' AND e.start_time <= ?
		ORDER BY e.start_time, e.id`
	rows, err := r.db.QueryContext(ctx, q, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AssemblyCandidate
	for rows.Next() {
		var c AssemblyCandidate
		if err := rows.Scan(&c.EventID, &c.ActivityTitle, &c.MaxPerRoom, &c.StartTime); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CompleteExpired marks every event whose end time has passed as
// COMPLETED, regardless of prior state except CANCELLED.  This sweep
// guarantees no event stays open indefinitely even if assembly never
// ran for it.
func (r *EventRepo) CompleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = 'completed', updated_at = UTC_TIMESTAMP()
		 WHERE status IN ('scheduled', 'in_waiting', 'in_progress') AND end_time < ?`,
		now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseStuck reclaims events that were claimed but whose assembler
// died before either committing meetings or rolling the claim back.
// An IN_PROGRESS event with no meetings whose start time is older
// than the cutoff goes back to IN_WAITING for a retry.
func (r *EventRepo) ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events e SET e.status = 'in_waiting', e.updated_at = UTC_TIMESTAMP()
		 WHERE e.status = 'in_progress' AND e.start_time < ?
		 AND NOT EXISTS (SELECT 1 FROM meetings m WHERE m.event_id = e.id)`,
		cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReminderStage selects which of the two pre-event reminder sweeps a
// query applies to.
type ReminderStage int

const (
	FirstReminder ReminderStage = iota + 1
	SecondReminder
)

// ListReminderDue returns SCHEDULED events whose reminder time for
// the given stage has been reached and whose reminder was not sent.
func (r *EventRepo) ListReminderDue(ctx context.Context, stage ReminderStage, now time.Time) ([]model.Event, error) {
	col, sent := "first_reminder_minutes", "first_reminder_sent"
	if stage == SecondReminder {
		col, sent = "second_reminder_minutes", "second_reminder_sent"
	}
	q := `SELECT ` + eventColumns + ` FROM events
		WHERE status = 'scheduled' AND ` + sent + ` = 0 AND ` + col + ` IS NOT NULL
		AND DATE_SUB(start_time, INTERVAL ` + col + ` MINUTE) <= ?
		ORDER BY start_time, id`
	return r.listEvents(ctx, q, now.UTC())
}

// MarkReminderSent records that the reminder for the given stage went
// out so the next tick does not repeat it.
func (r *EventRepo) MarkReminderSent(ctx context.Context, id uint64, stage ReminderStage) error {
	col := "first_reminder_sent"
	if stage == SecondReminder {
		col = "second_reminder_sent"
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET `+col+` = 1, updated_at = UTC_TIMESTAMP() WHERE id = ?`, id)
	return err
}

func (r *EventRepo) listEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
