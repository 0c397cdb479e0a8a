package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/talkabout/talkabout/internal/repository"
)

// EventHandler serves the public event browse endpoints.  Responses
// are cacheable; the GET routes sit behind the Redis response cache.
type EventHandler struct {
	Events *repository.EventRepo
}

func NewEventHandler(events *repository.EventRepo) *EventHandler {
	return &EventHandler{Events: events}
}

// eventResp is the wire form of one event with its activity.
type eventResp struct {
	ID                 uint64    `json:"id"`
	ActivityCode       string    `json:"activity_code"`
	ActivityTitle      string    `json:"activity_title"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	Status             string    `json:"status"`
	MaxPerRoom         uint32    `json:"max_per_room"`
	WaitingRoomOpensAt time.Time `json:"waiting_room_opens_at"`
}

func toEventResp(d repository.EventDetail) eventResp {
	return eventResp{
		ID:                 d.ID,
		ActivityCode:       d.ActivityCode,
		ActivityTitle:      d.ActivityTitle,
		StartTime:          d.StartTime,
		EndTime:            d.EndTime,
		Status:             string(d.Status),
		MaxPerRoom:         d.MaxPerRoom,
		WaitingRoomOpensAt: d.WaitingRoomOpensAt(),
	}
}

// ListUpcoming returns the events that have not ended yet, earliest
// first.
func (h *EventHandler) ListUpcoming(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	details, err := h.Events.ListUpcoming(ctx, time.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]eventResp, 0, len(details))
	for _, d := range details {
		out = append(out, toEventResp(d))
	}
	return c.JSON(http.StatusOK, echo.Map{"events": out})
}

// Get returns a single event with its activity.
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.Events.GetDetail(ctx, id)
	if err != nil {
		if err == repository.ErrEventNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toEventResp(d))
}
