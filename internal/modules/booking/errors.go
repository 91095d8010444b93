package booking

import "errors"

var (
	ErrNotFound        = errors.New("booking not found")
	ErrValidation      = errors.New("validation error")
	ErrBookingConflict = errors.New("resource not available for the selected time")
	ErrUnknownTenant   = errors.New("unknown tenant")
	ErrInfrastructure  = errors.New("infrastructure error")
)
