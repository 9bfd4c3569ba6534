package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/notifier"
	"github.com/iliyamo/seat-booking/internal/service"
)

// MessageCheckExpiry is the client frame asking for an expiry sweep of the
// show being watched.
const MessageCheckExpiry = "check-expiry"

type clientFrame struct {
	Type string `json:"type"`
}

var errOriginNotAllowed = errs.New("websocket origin not allowed")

// PublicHandler serves seat maps to anyone.
type PublicHandler struct {
	inventory *service.Inventory
	hub       *notifier.Hub
	origins   map[string]struct{}
	log       *slog.Logger
}

// NewPublicHandler builds the public handler.  origins lists the Origin
// values the live feed accepts; an empty list or "*" accepts any.
func NewPublicHandler(inventory *service.Inventory, hub *notifier.Hub, origins []string, log *slog.Logger) *PublicHandler {
	if inventory == nil || hub == nil {
		panic("nil dependency passed to NewPublicHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &PublicHandler{inventory: inventory, hub: hub, log: log}
	for _, o := range origins {
		o = normalizeOrigin(o)
		if o == "*" {
			h.origins = nil
			break
		}
		if o != "" {
			if h.origins == nil {
				h.origins = make(map[string]struct{})
			}
			h.origins[o] = struct{}{}
		}
	}
	return h
}

// ListSeats handles GET /v1/shows/:id/seats.  Expired holds of the show are
// released before the list is read.
func (h *PublicHandler) ListSeats(c echo.Context) error {
	showID := strings.TrimSpace(c.Param("id"))
	seats, err := h.inventory.List(c.Request().Context(), showID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"showId": showID, "seats": seats})
}

// LiveSeats handles GET /v1/shows/:id/live.  The connection receives the
// current snapshot, then a fresh one after every seat change of the show.
// A check-expiry frame from the client sweeps the show and rebroadcasts.
//
// The viewer is subscribed before the first snapshot is read so a change
// committed in between still reaches it.
func (h *PublicHandler) LiveSeats(c echo.Context) error {
	showID := strings.TrimSpace(c.Param("id"))
	sub := h.hub.Subscribe(showID)
	defer h.hub.Unsubscribe(sub)

	first, err := h.hub.Snapshot(c.Request().Context(), showID)
	if err != nil {
		return writeError(c, h.log, err)
	}

	srv := websocket.Server{
		Handshake: h.checkOrigin,
		Handler: func(ws *websocket.Conn) {
			h.serveLive(ws, sub, first)
		},
	}
	srv.ServeHTTP(c.Response(), c.Request())
	return nil
}

// checkOrigin replaces the default handshake, which rejects clients that
// send no Origin.  Such clients are accepted only when no allow-list is
// configured.
func (h *PublicHandler) checkOrigin(_ *websocket.Config, req *http.Request) error {
	if h.origins == nil {
		return nil
	}
	origin := normalizeOrigin(req.Header.Get("Origin"))
	if _, ok := h.origins[origin]; !ok {
		h.log.Warn("websocket origin rejected", "origin", origin, "path", req.URL.Path)
		return errOriginNotAllowed
	}
	return nil
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

func (h *PublicHandler) serveLive(ws *websocket.Conn, sub *notifier.Subscription, first notifier.Snapshot) {
	defer ws.Close()
	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()
	showID := sub.ShowID

	if err := websocket.JSON.Send(ws, first); err != nil {
		return
	}

	go func() {
		defer cancel()
		for {
			var frame clientFrame
			if err := websocket.JSON.Receive(ws, &frame); err != nil {
				return
			}
			if frame.Type != MessageCheckExpiry {
				continue
			}
			if err := h.hub.Refresh(ctx, showID); err != nil && ctx.Err() == nil {
				h.log.Warn("check-expiry refresh failed", "show_id", showID, "error", err.Error())
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(ws, snap); err != nil {
				return
			}
		}
	}
}
