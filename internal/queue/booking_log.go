package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
)

// BookingLog appends one line per confirmed booking batch to a file.
// Other event kinds are ignored.
type BookingLog struct {
	path string
	mu   sync.Mutex
}

func NewBookingLog(path string) *BookingLog {
	return &BookingLog{path: path}
}

func (l *BookingLog) Handle(_ context.Context, ev model.SeatEvent) error {
	b, ok := BookingConfirmedFrom(ev)
	if !ok {
		return nil
	}
	line := fmt.Sprintf("[%s] Booking confirmed | event_id=%d | user_id=%s | show_id=%s | bookings=[%s] | seats=[%s] | total=%d\n",
		b.ConfirmedAt, b.EventID, b.UserID, b.ShowID,
		strings.Join(b.BookingIDs, ","), strings.Join(b.SeatIDs, ","), b.TotalAmount)

	l.mu.Lock()
	defer l.mu.Unlock()
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(err, "mkdir booking log dir")
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(err, "open booking log")
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return errs.Wrap(err, "write booking log")
	}
	return nil
}
