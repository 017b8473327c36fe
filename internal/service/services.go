package service

import (
	"log/slog"

	"github.com/arunkumar-com/tablebook/internal/service/booking"
	"github.com/arunkumar-com/tablebook/internal/service/query"
	"github.com/arunkumar-com/tablebook/internal/service/reconcile"
	redisrepo "github.com/arunkumar-com/tablebook/internal/repository/redis"
)

// Stores groups the storage contracts the services consume. Satisfied by the
// Postgres repositories in production and by the memory store in tests.
type Stores struct {
	Restaurants  booking.Restaurants
	Ledger       booking.Ledger
	LedgerReader query.LedgerReader
	Reservations ReservationStore
	Reconciler   reconcile.Reconciler
}

// ReservationStore is the union of the booking and query reservation needs.
type ReservationStore interface {
	booking.Reservations
	query.Reservations
}

type Services struct {
	Booking   *booking.Service
	Query     *query.Service
	Reconcile *reconcile.Service
}

type Config struct {
	Booking booking.Config
	Query   query.Config
}

func NewServices(
	stores Stores,
	cache *redisrepo.Cache,
	pubsub *redisrepo.SlotsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Booking: booking.New(
			stores.Restaurants,
			stores.Ledger,
			stores.Reservations,
			cache,
			pubsub,
			limiter,
			cfg.Booking,
		),
		Query: query.New(
			stores.Restaurants,
			stores.LedgerReader,
			stores.Reservations,
			cache,
			cfg.Query,
		),
		Reconcile: reconcile.New(stores.Reconciler, logger),
	}
}
