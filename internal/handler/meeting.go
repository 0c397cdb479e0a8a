package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/talkabout/talkabout/internal/repository"
)

// MeetingHandler serves the participant-facing meeting lookup.
type MeetingHandler struct {
	Meetings *repository.MeetingRepo
}

func NewMeetingHandler(meetings *repository.MeetingRepo) *MeetingHandler {
	return &MeetingHandler{Meetings: meetings}
}

// MyMeeting returns the room the current user was assigned to for an
// event.  404 means assembly has not run yet or left the user out.
func (h *MeetingHandler) MyMeeting(c echo.Context) error {
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

	mt, err := h.Meetings.GetForUser(ctx, eventID, uid)
	if err != nil {
		if err == repository.ErrMeetingNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no meeting assigned"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"meeting_id": mt.ID,
		"event_id":   mt.EventID,
		"room_url":   mt.RoomURL,
		"provider":   string(mt.Provider),
		"created_at": mt.CreatedAt,
	})
}
