package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/talkabout/talkabout/internal/handler"    // import the handlers that implement business logic
	"github.com/talkabout/talkabout/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Used by load balancers or monitoring systems to verify that the
	// service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token on every call.
	g.POST("/refresh", a.Refresh)
	// Logout accepts a JSON body with a refresh_token and revokes that
	// session without requiring a JWT.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	// With a valid access token and no body, logout revokes every
	// session of the user.
	auth.POST("/logout", a.Logout)
}

// RegisterPublic registers unauthenticated browse endpoints.  The event
// list and detail are read-heavy and cheap to cache, so both sit
// behind the provided Redis response cache middleware.
func RegisterPublic(e *echo.Echo, ev *handler.EventHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/events", ev.ListUpcoming, cache)
	e.GET("/v1/events/:id", ev.Get, cache)
}

// RegisterParticipant registers the participant-scoped endpoints under
// /v1: enrollment, the waiting-room websocket and the meeting lookup.
// All routes require a valid JWT; any authenticated role may use them.
func RegisterParticipant(e *echo.Echo, en *handler.EnrollmentHandler, wr *handler.WaitingRoomHandler, mt *handler.MeetingHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("PARTICIPANT", "ADMIN"),
	)

	g.POST("/events/:id/enroll", en.Enroll)
	g.DELETE("/events/:id/enroll", en.Unenroll)

	// Websocket: browsers pass the access token as ?token= because
	// they cannot set an Authorization header on the handshake.
	g.GET("/events/:id/waiting-room", wr.Connect)

	g.GET("/events/:id/my-meeting", mt.MyMeeting)
}

// RegisterAdmin registers ADMIN-scoped operational endpoints under /v1.
func RegisterAdmin(e *echo.Echo, st *handler.StatsHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("ADMIN"),
	)
	g.GET("/events/:id/stats", st.EventStats)
}
