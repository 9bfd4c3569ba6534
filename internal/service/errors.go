package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
)

// Reasons a seat cannot be held or confirmed.
const (
	ReasonNotFound    = "not_found"
	ReasonReserved    = "reserved"
	ReasonBooked      = "booked"
	ReasonNotReserved = "not_reserved"
	ReasonHeldByOther = "held_by_other"
	ReasonHoldExpired = "hold_expired"
)

// InvalidSeat names one seat that failed a hold or confirm and why.
type InvalidSeat struct {
	SeatID string           `json:"seatId"`
	Label  string           `json:"label,omitempty"`
	Status model.SeatStatus `json:"status,omitempty"`
	Reason string           `json:"reason"`
}

// ConfirmConflictError rejects a whole confirm because at least one seat
// was not validly held by the caller.  It is marked errs.ErrConflict.
type ConfirmConflictError struct {
	Invalid []InvalidSeat
}

func (e *ConfirmConflictError) Error() string {
	parts := make([]string, len(e.Invalid))
	for i, s := range e.Invalid {
		parts[i] = s.SeatID + ":" + s.Reason
	}
	return "seats not held by caller: " + strings.Join(parts, ", ")
}

// SeatsNotFoundError lists requested seat ids that do not exist.  It is
// marked errs.ErrNotFound.
type SeatsNotFoundError struct {
	SeatIDs []string
}

func (e *SeatsNotFoundError) Error() string {
	return fmt.Sprintf("seats not found: %s", strings.Join(e.SeatIDs, ", "))
}

func newConfirmConflict(invalid []InvalidSeat) error {
	sort.Slice(invalid, func(i, j int) bool { return invalid[i].SeatID < invalid[j].SeatID })
	return errs.Mark(&ConfirmConflictError{Invalid: invalid}, errs.ErrConflict)
}

func newSeatsNotFound(ids []string) error {
	sort.Strings(ids)
	return errs.Mark(&SeatsNotFoundError{SeatIDs: ids}, errs.ErrNotFound)
}

// normalizeIDs trims, de-duplicates and sorts seat ids.  Sorted ids give
// every transaction the same row lock order.
func normalizeIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, errs.Validation("seatIds is required")
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errs.Validation("seatIds must not contain empty ids")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errs.Validation("userId is required")
	}
	return userID, nil
}
