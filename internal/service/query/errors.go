package query

import "errors"

var (
	ErrRestaurantNotFound  = errors.New("restaurant not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidDate         = errors.New("invalid date")
)
