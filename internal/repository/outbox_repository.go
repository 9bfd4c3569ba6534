package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iliyamo/seat-booking/internal/errs"
	"github.com/iliyamo/seat-booking/internal/model"
)

// AppendEvent stores ev as JSON in seat_events.  The row becomes visible
// to the relay only when the surrounding transaction commits.
func (t *sqlTxn) AppendEvent(ctx context.Context, ev model.SeatEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errs.Internal(err, "marshal seat event")
	}
	const q = `INSERT INTO seat_events (show_id, kind, payload, created_at) VALUES (?, ?, ?, ?)`
	if _, err := t.exec(ctx, q, ev.ShowID, string(ev.Kind), string(payload), ev.OccurredAt); err != nil {
		return errs.Internal(err, "append seat event")
	}
	return nil
}

func (s *SQLStore) PendingEvents(ctx context.Context, limit int) ([]model.SeatEvent, error) {
	const q = `SELECT id, payload FROM seat_events WHERE published_at IS NULL ORDER BY id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), limit)
	if err != nil {
		return nil, errs.Internal(err, "query pending events")
	}
	defer rows.Close()
	var out []model.SeatEvent
	for rows.Next() {
		var (
			id      int64
			payload string
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, errs.Internal(err, "scan seat event")
		}
		var ev model.SeatEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, errs.Internal(err, "unmarshal seat event")
		}
		ev.ID = id
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Internal(err, "iterate seat events")
	}
	return out, nil
}

func (s *SQLStore) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, at)
	for _, id := range ids {
		args = append(args, id)
	}
	q := `UPDATE seat_events SET published_at = ? WHERE id IN ` + placeholders(len(ids))
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(q), args...); err != nil {
		return errs.Internal(err, "mark events published")
	}
	return nil
}
