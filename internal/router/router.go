// Package router wires handlers and middleware onto echo routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-booking/internal/handler"
	"github.com/iliyamo/seat-booking/internal/middleware"
)

// Roles carried in the token role claim.  Only ADMIN reaches /v1/admin.
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// RegisterRoutes registers the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the seat map reads.  They never require a token.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler) {
	e.GET("/v1/shows/:id/seats", p.ListSeats)
	e.GET("/v1/shows/:id/live", p.LiveSeats)
}

// RegisterCustomer registers the seat mutations and booking reads.  With
// an empty jwtSecret the routes are open and the caller is whoever the
// body names; otherwise a CUSTOMER or ADMIN token is required.  limit
// guards the mutating routes.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	var mws []echo.MiddlewareFunc
	if jwtSecret != "" {
		mws = append(mws, middleware.JWTAuth(jwtSecret), middleware.RequireRole(RoleCustomer, RoleAdmin))
	}
	g := e.Group("/v1", mws...)

	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g.POST("/seats/hold", h.HoldSeats, limit)
	g.POST("/seats/release", h.ReleaseSeats, limit)
	g.POST("/bookings", h.ConfirmBooking, limit)
	g.GET("/bookings", h.ListBookings)
}

// RegisterAdmin registers the admin routes.  They exist only when tokens
// can be verified; RegisterAdmin does nothing for an empty jwtSecret.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	if jwtSecret == "" {
		return
	}
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(RoleAdmin))
	g.POST("/shows/:id/seats", h.InitializeSeats)
	g.POST("/cleanup", h.Cleanup)
}
