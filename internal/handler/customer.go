package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/service"
)

// CustomerHandler places holds, releases them and confirms bookings.
type CustomerHandler struct {
	reservations *service.Reservations
	bookings     *service.Bookings
	log          *slog.Logger
}

func NewCustomerHandler(reservations *service.Reservations, bookings *service.Bookings, log *slog.Logger) *CustomerHandler {
	if reservations == nil || bookings == nil {
		panic("nil service passed to NewCustomerHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CustomerHandler{reservations: reservations, bookings: bookings, log: log}
}

// HoldSeats handles POST /v1/seats/hold.  Seats are claimed one by one; if
// any could not be held the response is 409 and lists what was and was
// not reserved.  Seats that were reserved stay held until released or
// expired.
func (h *CustomerHandler) HoldSeats(c echo.Context) error {
	var body seatsRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	userID, err := callerID(c, body.UserID)
	if err != nil {
		return writeError(c, h.log, err)
	}

	res, err := h.reservations.Hold(c.Request().Context(), body.SeatIDs, userID)
	if err != nil {
		return writeError(c, h.log, err)
	}

	if res.Partial() {
		out := echo.Map{
			"error":          "some seats could not be reserved",
			"reservedSeats":  res.HeldIDs(),
			"totalRequested": res.Requested,
			"totalReserved":  len(res.Held),
			"failedSeats":    res.Failed,
		}
		if len(res.Held) > 0 {
			out["expiresAt"] = res.ExpiresAt
		}
		return c.JSON(http.StatusConflict, out)
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": res.Held, "expiresAt": res.ExpiresAt})
}

// ReleaseSeats handles POST /v1/seats/release.  Seats the caller does not
// hold are skipped silently.
func (h *CustomerHandler) ReleaseSeats(c echo.Context) error {
	var body seatsRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	userID, err := callerID(c, body.UserID)
	if err != nil {
		return writeError(c, h.log, err)
	}

	released, err := h.reservations.Release(c.Request().Context(), body.SeatIDs, userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if released == nil {
		released = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"released": len(released), "seatIds": released})
}

// ConfirmBooking handles POST /v1/bookings.  Either every seat is booked
// or nothing changes.
func (h *CustomerHandler) ConfirmBooking(c echo.Context) error {
	var body seatsRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	userID, err := callerID(c, body.UserID)
	if err != nil {
		return writeError(c, h.log, err)
	}

	conf, err := h.bookings.Confirm(c.Request().Context(), body.SeatIDs, userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"bookings": conf.Bookings, "totalAmount": conf.TotalAmount})
}

// ListBookings handles GET /v1/bookings?userId=.
func (h *CustomerHandler) ListBookings(c echo.Context) error {
	userID, err := callerID(c, c.QueryParam("userId"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	items, err := h.bookings.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if items == nil {
		items = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
