package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/queue"
	"github.com/talkabout/talkabout/internal/repository"
	queue_publisher "github.com/talkabout/talkabout/internal/service"
)

// EnrollmentHandler lets authenticated users enroll into events and
// cancel again.  Receipts go out through the notification queue.
type EnrollmentHandler struct {
	Events      *repository.EventRepo
	Enrollments *repository.EnrollmentRepo
	Users       *repository.UserRepo

	// publish is swappable for tests; defaults to the RabbitMQ publisher.
	publish func(ctx context.Context, ev queue.NotificationEvent) error
}

func NewEnrollmentHandler(events *repository.EventRepo, enrollments *repository.EnrollmentRepo, users *repository.UserRepo) *EnrollmentHandler {
	return &EnrollmentHandler{
		Events:      events,
		Enrollments: enrollments,
		Users:       users,
		publish:     queue_publisher.PublishNotification,
	}
}

// Enroll adds the current user to an event.  Enrollment closes once
// the event leaves SCHEDULED: from IN_WAITING on, the participant set
// is about to freeze and latecomers must pick a future slot.
func (h *EnrollmentHandler) Enroll(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	detail, err := h.Events.GetDetail(ctx, eventID)
	if err != nil {
		if err == repository.ErrEventNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if detail.Status != model.EventScheduled {
		return c.JSON(http.StatusConflict, echo.Map{"error": "enrollment closed for this event"})
	}

	en, err := h.Enrollments.Enroll(ctx, eventID, uid)
	if err != nil {
		if err == repository.ErrAlreadyEnrolled {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already enrolled"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enroll failed"})
	}

	h.queueReceipt(queue.KindEnrollmentConfirmed, detail, uid, en.UnsubscribeToken)

	return c.JSON(http.StatusCreated, echo.Map{
		"event_id":    eventID,
		"status":      string(en.Status),
		"enrolled_at": en.EnrolledAt,
	})
}

// Unenroll cancels the current user's enrollment.
func (h *EnrollmentHandler) Unenroll(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cancelled, err := h.Enrollments.Cancel(ctx, eventID, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
	}
	if !cancelled {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not enrolled"})
	}

	if detail, err := h.Events.GetDetail(ctx, eventID); err == nil {
		h.queueReceipt(queue.KindEnrollmentCancelled, detail, uid, "")
	}

	return c.NoContent(http.StatusNoContent)
}

// queueReceipt publishes an enrollment receipt in the background so
// broker hiccups never fail the request.
func (h *EnrollmentHandler) queueReceipt(kind queue.NotificationKind, detail repository.EventDetail, userID uint64, unsubscribe string) {
	ev := queue.NotificationEvent{
		Kind:             kind,
		EventID:          detail.ID,
		ActivityTitle:    detail.ActivityTitle,
		UserID:           userID,
		StartsAt:         detail.StartTime.UTC().Format(time.RFC3339),
		UnsubscribeToken: unsubscribe,
		QueuedAt:         time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if u, err := h.Users.GetByID(ctx, userID); err == nil {
			ev.UserCode = u.UserCode
			ev.Email = u.Email
		}
		if err := h.publish(ctx, ev); err != nil {
			log.Printf("enrollment: queue %s for event %d: %v", ev.Kind, ev.EventID, err)
		}
	}()
}
