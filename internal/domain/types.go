package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout and TimeLayout are the wire formats for reservation dates and
// slot times ("2025-06-01", "18:00").
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type TableType string

const (
	TwoSeater  TableType = "twoSeater"
	FourSeater TableType = "fourSeater"
)

// Seats returns the authoritative guest count for a table type. The booking
// flow derives numberOfGuests from this, never from client input.
func (t TableType) Seats() int {
	switch t {
	case TwoSeater:
		return 2
	case FourSeater:
		return 4
	default:
		return 0
	}
}

func (t TableType) Valid() bool {
	return t == TwoSeater || t == FourSeater
}

type ReservationStatus string

const (
	StatusActive    ReservationStatus = "active"
	StatusCancelled ReservationStatus = "cancelled"
)

// Restaurant is the engine's read-only view of a restaurant: its daily
// schedule window and per-table-type inventory. Catalog mutation happens
// elsewhere.
type Restaurant struct {
	ID        uuid.UUID
	Name      string
	OpenHour  int // first bookable hour, inclusive
	CloseHour int // closing hour, exclusive
	Tables    map[TableType]int
}

// Schedule returns the restaurant's bookable slot times, hourly from opening
// to closing, ascending. A restaurant with no window has no slots.
func (r *Restaurant) Schedule() []string {
	if r.CloseHour <= r.OpenHour {
		return nil
	}
	out := make([]string, 0, r.CloseHour-r.OpenHour)
	for h := r.OpenHour; h < r.CloseHour; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return out
}

// HasSlot reports whether t is one of the restaurant's scheduled slot times.
func (r *Restaurant) HasSlot(t string) bool {
	for _, s := range r.Schedule() {
		if s == t {
			return true
		}
	}
	return false
}

// TotalInventory returns the configured table count for a type. The second
// result is false when the restaurant does not offer that type.
func (r *Restaurant) TotalInventory(t TableType) (int, bool) {
	n, ok := r.Tables[t]
	return n, ok
}

// SlotKey identifies the unit of capacity accounting: one table type at one
// restaurant on one date at one slot time.
type SlotKey struct {
	RestaurantID uuid.UUID
	Date         string
	Time         string
	TableType    TableType
}

type Reservation struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	RestaurantID    uuid.UUID
	RestaurantName  string
	Date            string
	Time            string
	TableType       TableType
	NumberOfGuests  int
	SpecialRequests string
	Status          ReservationStatus
	CreatedAt       time.Time
}

// Key returns the slot ledger key the reservation consumes.
func (r *Reservation) Key() SlotKey {
	return SlotKey{
		RestaurantID: r.RestaurantID,
		Date:         r.Date,
		Time:         r.Time,
		TableType:    r.TableType,
	}
}

// SlotAvailability is one row of an availability listing: remaining tables
// per type at a slot time.
type SlotAvailability struct {
	Time       string `json:"time"`
	TwoSeater  int    `json:"twoSeater"`
	FourSeater int    `json:"fourSeater"`
}

// Identity is the authenticated caller as resolved from a trusted token.
// The admin flag is never taken from client-supplied state.
type Identity struct {
	UserID uuid.UUID
	Admin  bool
}

// ParseDate validates a wire-format reservation date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ParseTime validates a wire-format slot time.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}
