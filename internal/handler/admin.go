package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/service"
)

// AdminHandler creates seat maps and triggers sweeps.
type AdminHandler struct {
	inventory *service.Inventory
	reaper    *service.Reaper
	log       *slog.Logger
}

func NewAdminHandler(inventory *service.Inventory, reaper *service.Reaper, log *slog.Logger) *AdminHandler {
	if inventory == nil || reaper == nil {
		panic("nil service passed to NewAdminHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{inventory: inventory, reaper: reaper, log: log}
}

// InitializeSeats handles POST /v1/admin/shows/:id/seats.  The body is an
// optional layout; without sections the default auditorium is used.  A
// show that already has seats is left alone and reported with created 0.
func (h *AdminHandler) InitializeSeats(c echo.Context) error {
	var layout model.Layout
	if err := c.Bind(&layout); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(layout.Sections) == 0 {
		layout = model.DefaultLayout()
	}

	showID := strings.TrimSpace(c.Param("id"))
	created, err := h.inventory.Initialize(c.Request().Context(), showID, layout)
	if err != nil {
		return writeError(c, h.log, err)
	}
	status := http.StatusCreated
	if created == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, echo.Map{"showId": showID, "created": created})
}

// Cleanup handles POST /v1/admin/cleanup: an immediate sweep of every show.
func (h *AdminHandler) Cleanup(c echo.Context) error {
	released, err := h.reaper.SweepAll(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}
