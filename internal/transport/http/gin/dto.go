package httpgin

import (
	"time"

	"github.com/arunkumar-com/tablebook/internal/domain"
)

type CreateReservationRequest struct {
	RestaurantID string `json:"restaurantId" binding:"required,uuid"`
	Date         string `json:"date" binding:"required"`
	Time         string `json:"time" binding:"required"`
	TableType    string `json:"tableType" binding:"required"`
	// NumberOfGuests is accepted for wire compatibility but ignored; the
	// engine derives the guest count from the table type.
	NumberOfGuests  int    `json:"numberOfGuests"`
	SpecialRequests string `json:"specialRequests"`
}

type ReservationResponse struct {
	ID              string `json:"id"`
	RestaurantID    string `json:"restaurantId"`
	Restaurant      string `json:"restaurant,omitempty"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	TableType       string `json:"tableType"`
	NumberOfGuests  int    `json:"numberOfGuests"`
	SpecialRequests string `json:"specialRequests,omitempty"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt"`
}

func toReservationResponse(r *domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:              r.ID.String(),
		RestaurantID:    r.RestaurantID.String(),
		Restaurant:      r.RestaurantName,
		Date:            r.Date,
		Time:            r.Time,
		TableType:       string(r.TableType),
		NumberOfGuests:  r.NumberOfGuests,
		SpecialRequests: r.SpecialRequests,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
}

func toReservationResponses(rs []domain.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(rs))
	for i := range rs {
		out = append(out, toReservationResponse(&rs[i]))
	}
	return out
}

type SlotsResponse struct {
	Slots []domain.SlotAvailability `json:"slots"`
}

type RestaurantResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Open     string         `json:"open"`
	Close    string         `json:"close"`
	Schedule []string       `json:"schedule"`
	Tables   map[string]int `json:"tables"`
}

func toRestaurantResponse(r *domain.Restaurant) RestaurantResponse {
	tables := make(map[string]int, len(r.Tables))
	for t, n := range r.Tables {
		tables[string(t)] = n
	}
	return RestaurantResponse{
		ID:       r.ID.String(),
		Name:     r.Name,
		Open:     formatHour(r.OpenHour),
		Close:    formatHour(r.CloseHour),
		Schedule: r.Schedule(),
		Tables:   tables,
	}
}

func formatHour(h int) string {
	return time.Date(0, 1, 1, h, 0, 0, 0, time.UTC).Format(domain.TimeLayout)
}

type ReconcileResponse struct {
	Fixed int64 `json:"fixed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
