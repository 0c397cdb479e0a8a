package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// currentUser returns the authenticated user id stored by the JWT
// middleware.  ok is false on unauthenticated requests.
func currentUser(c echo.Context) (uint64, bool) {
	v, ok := c.Get("user_id").(uint64)
	return v, ok && v > 0
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
