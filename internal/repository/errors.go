package repository

import "github.com/iliyamo/seat-booking/internal/errs"

// ErrDuplicate is returned when an insert violates a uniqueness rule, such
// as a second booking for the same seat or a second seat map for a show.
// Callers should test for it with errs.Is and translate it into a
// conflict.
var ErrDuplicate = errs.New("duplicate record")

var (
	errTransactionBegin   = errs.New("failed to begin transaction")
	errTransactionCommit  = errs.New("failed to commit transaction")
	errMaxRetriesExceeded = errs.New("transaction failed after max retries")
)
