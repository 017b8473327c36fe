package booking

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid booking input")
	ErrNoAvailability      = errors.New("no availability for slot")
	ErrForbidden           = errors.New("forbidden")
	ErrRestaurantNotFound  = errors.New("restaurant not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPersistenceFailure  = errors.New("reservation persistence failed")
	ErrRateLimited         = errors.New("rate limited")
)
