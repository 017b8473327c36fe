package redis

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "tablebook:v1"

func KeySlots(restaurantID uuid.UUID, date string) string {
	return fmt.Sprintf("%s:restaurant:%s:slots:%s", ns, restaurantID, date)
}

func KeyRestaurant(restaurantID uuid.UUID) string {
	return fmt.Sprintf("%s:restaurant:%s:config", ns, restaurantID)
}

func KeyIdemBooking(userID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s:%s", ns, userID, idemKey)
}

func ChannelSlotsChanged() string {
	return ns + ":slots:changed"
}
