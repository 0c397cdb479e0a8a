package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/talkabout/talkabout/internal/model"
	"github.com/talkabout/talkabout/internal/repository"
	"github.com/talkabout/talkabout/internal/waitingroom"
)

// StatsHandler exposes per-event operational numbers for admins: the
// live waiting-room picture and the meeting counts after assembly.
type StatsHandler struct {
	Events   *repository.EventRepo
	Meetings *repository.MeetingRepo
	Registry *waitingroom.Registry
	Hub      *waitingroom.Hub
}

func NewStatsHandler(events *repository.EventRepo, meetings *repository.MeetingRepo, reg *waitingroom.Registry, hub *waitingroom.Hub) *StatsHandler {
	return &StatsHandler{Events: events, Meetings: meetings, Registry: reg, Hub: hub}
}

// EventStats reports the registry snapshot, local socket count and
// meeting totals for one event.
func (h *StatsHandler) EventStats(c echo.Context) error {
	eventID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ev, err := h.Events.GetByID(ctx, eventID)
	if err != nil {
		if err == repository.ErrEventNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	entries, err := h.Registry.Snapshot(ctx, eventID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	ready := 0
	for _, e := range entries {
		if e.Status == model.ParticipantReady {
			ready++
		}
	}

	meetings, members, err := h.Meetings.CountByEvent(ctx, eventID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"event_id":          eventID,
		"status":            string(ev.Status),
		"waiting":           len(entries) - ready,
		"ready":             ready,
		"local_connections": h.Hub.LocalCount(eventID),
		"meetings":          meetings,
		"members":           members,
	})
}
