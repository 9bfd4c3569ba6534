// Package notifier pushes seat snapshots to live viewers.
//
// The hub is advisory.  It keeps no seat state: every refresh re-reads the
// inventory and broadcasts the full seat list of one show, so a viewer
// converges on committed state no matter which events it missed.
package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/seat-booking/internal/clock"
	"github.com/iliyamo/seat-booking/internal/model"
)

// MessageSeatsUpdate is the type tag of every snapshot frame.
const MessageSeatsUpdate = "seats-update"

// SeatLister is the read side of the inventory.
type SeatLister interface {
	List(ctx context.Context, showID string) ([]model.Seat, error)
}

// Snapshot is the full seat state of one show at one instant.
type Snapshot struct {
	Type   string       `json:"type"`
	ShowID string       `json:"showId"`
	Seats  []model.Seat `json:"seats"`
	At     time.Time    `json:"at"`
}

// Subscription receives snapshots for one show.  C holds at most one
// pending snapshot; a newer one replaces an unread older one.
type Subscription struct {
	ShowID string
	C      <-chan Snapshot

	id uint64
	ch chan Snapshot
}

type Hub struct {
	lister SeatLister
	clock  clock.Clock
	log    *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]chan Snapshot
	nextID uint64
	closed bool
}

func New(lister SeatLister, clk clock.Clock, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		lister: lister,
		clock:  clk,
		log:    log,
		subs:   make(map[string]map[uint64]chan Snapshot),
	}
}

// Subscribe registers a viewer of showID.  Callers must Unsubscribe.
func (h *Hub) Subscribe(showID string) *Subscription {
	ch := make(chan Snapshot, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{ShowID: showID, C: ch, id: h.nextID, ch: ch}
	if h.closed {
		close(ch)
		return sub
	}
	if h.subs[showID] == nil {
		h.subs[showID] = make(map[uint64]chan Snapshot)
	}
	h.subs[showID][sub.id] = ch
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	viewers, ok := h.subs[sub.ShowID]
	if !ok {
		return
	}
	if ch, ok := viewers[sub.id]; ok {
		delete(viewers, sub.id)
		close(ch)
	}
	if len(viewers) == 0 {
		delete(h.subs, sub.ShowID)
	}
}

// Subscribers returns the number of viewers of showID.
func (h *Hub) Subscribers(showID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[showID])
}

// Snapshot reads the current seat state of showID.  The read runs the
// expiry sweep, which is how a viewer's check-expiry request reclaims
// stale holds.
func (h *Hub) Snapshot(ctx context.Context, showID string) (Snapshot, error) {
	seats, err := h.lister.List(ctx, showID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Type: MessageSeatsUpdate, ShowID: showID, Seats: seats, At: h.clock.Now()}, nil
}

// Refresh reads showID and broadcasts the snapshot to its viewers.
func (h *Hub) Refresh(ctx context.Context, showID string) error {
	if h.Subscribers(showID) == 0 {
		return nil
	}
	snap, err := h.Snapshot(ctx, showID)
	if err != nil {
		return err
	}
	h.broadcast(snap)
	return nil
}

// HandleEvent refreshes the show an event belongs to.  It is the sink the
// seat event transports deliver to.
func (h *Hub) HandleEvent(ctx context.Context, ev model.SeatEvent) error {
	if err := h.Refresh(ctx, ev.ShowID); err != nil {
		h.log.Warn("snapshot refresh failed", "show_id", ev.ShowID, "kind", string(ev.Kind), "error", err.Error())
		return err
	}
	return nil
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for show, viewers := range h.subs {
		for _, ch := range viewers {
			close(ch)
		}
		delete(h.subs, show)
	}
}

func (h *Hub) broadcast(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[snap.ShowID] {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Drop the stale snapshot the viewer has not read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
