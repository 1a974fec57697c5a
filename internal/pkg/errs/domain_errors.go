package errs

import "errors"

// Domain-specific sentinel errors shared across usecase layers
var (
	// Reservation (stock lock) errors
	ErrAlreadyReserved     = errors.New("order already has a live reservation")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidReservation  = errors.New("invalid reservation")

	// Order errors
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductNotFound    = errors.New("product not found")
	ErrDeadlineNotReached = errors.New("order deadline not reached")

	// Job errors
	ErrInvalidJob     = errors.New("invalid job")
	ErrUnknownJobType = errors.New("unknown job type")

	// Worker errors
	ErrShutdownTimeout = errors.New("worker shutdown grace period exceeded")

	// Operation errors
	ErrDatabaseOperationFailed = errors.New("database operation failed")
	ErrQueueUnavailable        = errors.New("job queue unavailable")
)
