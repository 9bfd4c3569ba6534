// Package handler implements the HTTP surface of the seat booking service.
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/middleware"
	"github.com/iliyamo/seat-booking/internal/service"
)

type seatsRequest struct {
	SeatIDs []string `json:"seatIds"`
	UserID  string   `json:"userId"`
}

// callerID resolves who is acting.  With authentication on, the token
// subject is the caller and a different claimed userId is refused.
// Without it the claimed userId is trusted as is.
func callerID(c echo.Context, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	subject := middleware.UserID(c)
	if subject == "" {
		return claimed, nil
	}
	if claimed != "" && claimed != subject {
		return "", errs.Forbidden("userId does not match the authenticated user")
	}
	return subject, nil
}

// writeError maps a service error onto a status code and body.  Internal
// failures are logged here and reported without detail.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	var conflict *service.ConfirmConflictError
	if errs.As(err, &conflict) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":        "seats are not held by the caller",
			"invalidSeats": conflict.Invalid,
		})
	}
	var missing *service.SeatsNotFoundError
	if errs.As(err, &missing) {
		return c.JSON(http.StatusNotFound, echo.Map{
			"error":          "seats not found",
			"missingSeatIds": missing.SeatIDs,
		})
	}

	switch {
	case errs.Is(err, errs.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errs.Is(err, errs.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errs.Is(err, errs.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errs.Is(err, errs.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}

	log.Error("request failed",
		"method", c.Request().Method,
		"path", c.Path(),
		"error", err.Error(),
		"stack", errs.ExtractStackLines(err, 5))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
