package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arunkumar-com/tablebook/internal/domain"
	"github.com/arunkumar-com/tablebook/internal/repository"
	redisrepo "github.com/arunkumar-com/tablebook/internal/repository/redis"
)

type Restaurants interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error)
}

// LedgerReader reads consumed counts without touching them.
type LedgerReader interface {
	ConsumedForDate(ctx context.Context, restaurantID uuid.UUID, date string) (map[string]map[domain.TableType]int, error)
}

type Reservations interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error)
	ListAll(ctx context.Context) ([]domain.Reservation, error)
}

type Config struct {
	SlotsTTL time.Duration

	// RestaurantTTL caches restaurant configuration, which only changes out
	// of band, so a longer TTL than slots is fine.
	RestaurantTTL time.Duration
}

// Service answers read queries: availability listings and reservation
// lookups. Listings are side-effect free; they reflect ledger state at call
// time and may lag bookings in flight.
type Service struct {
	restaurants  Restaurants
	ledger       LedgerReader
	reservations Reservations
	cache        *redisrepo.Cache
	cfg          Config
}

func New(
	restaurants Restaurants,
	ledger LedgerReader,
	reservations Reservations,
	cache *redisrepo.Cache,
	cfg Config,
) *Service {
	if cfg.SlotsTTL <= 0 {
		cfg.SlotsTTL = 15 * time.Second
	}

	if cfg.RestaurantTTL <= 0 {
		cfg.RestaurantTTL = time.Minute
	}

	return &Service{
		restaurants:  restaurants,
		ledger:       ledger,
		reservations: reservations,
		cache:        cache,
		cfg:          cfg,
	}
}

// GetRestaurant returns restaurant configuration.
//
// Returns query.ErrRestaurantNotFound for an unknown ID.
func (s *Service) GetRestaurant(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	const op = "service.query.GetRestaurant"

	if s.cache == nil {
		r, err := s.loadRestaurant(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return r, nil
	}

	r, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyRestaurant(id),
		s.cfg.RestaurantTTL,
		func(ctx context.Context) (*domain.Restaurant, error) {
			return s.loadRestaurant(ctx, id)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return r, nil
}

func (s *Service) loadRestaurant(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	r, err := s.restaurants.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}

	return r, nil
}

// ListSlots returns one entry per scheduled slot time, ascending, with
// remaining capacity per table type clamped at zero. A restaurant with no
// schedule yields an empty list.
//
// Returns:
//   - error: query.ErrRestaurantNotFound for an unknown restaurant.
//   - error: query.ErrInvalidDate for a malformed date.
func (s *Service) ListSlots(ctx context.Context, restaurantID uuid.UUID, date string) ([]domain.SlotAvailability, error) {
	const op = "service.query.ListSlots"

	if _, err := domain.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%s: %q: %w", op, date, ErrInvalidDate)
	}

	if s.cache == nil {
		slots, err := s.loadSlots(ctx, restaurantID, date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return slots, nil
	}

	key := redisrepo.KeySlots(restaurantID, date)

	slots, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.SlotsTTL,
		func(ctx context.Context) ([]domain.SlotAvailability, error) {
			return s.loadSlots(ctx, restaurantID, date)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return slots, nil
}

func (s *Service) loadSlots(ctx context.Context, restaurantID uuid.UUID, date string) ([]domain.SlotAvailability, error) {
	restaurant, err := s.restaurants.Get(ctx, restaurantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}

	schedule := restaurant.Schedule()
	if len(schedule) == 0 {
		return []domain.SlotAvailability{}, nil
	}

	consumed, err := s.ledger.ConsumedForDate(ctx, restaurantID, date)
	if err != nil {
		return nil, err
	}

	remaining := func(slot string, t domain.TableType) int {
		total := restaurant.Tables[t]
		n := total - consumed[slot][t]
		if n < 0 {
			return 0
		}
		return n
	}

	out := make([]domain.SlotAvailability, 0, len(schedule))
	for _, slot := range schedule {
		out = append(out, domain.SlotAvailability{
			Time:       slot,
			TwoSeater:  remaining(slot, domain.TwoSeater),
			FourSeater: remaining(slot, domain.FourSeater),
		})
	}

	return out, nil
}

// ListOwn returns the caller's reservations, newest first.
func (s *Service) ListOwn(ctx context.Context, ident domain.Identity) ([]domain.Reservation, error) {
	const op = "service.query.ListOwn"

	out, err := s.reservations.ListByUser(ctx, ident.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// ListAll returns every reservation. Admin only; the gate lives here, not in
// the store.
//
// Returns query.ErrForbidden for non-admin callers.
func (s *Service) ListAll(ctx context.Context, ident domain.Identity) ([]domain.Reservation, error) {
	const op = "service.query.ListAll"

	if !ident.Admin {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	out, err := s.reservations.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// GetReservation returns one reservation to its owner or an admin.
//
// Returns:
//   - error: query.ErrReservationNotFound for an unknown ID.
//   - error: query.ErrForbidden when the caller is neither owner nor admin.
func (s *Service) GetReservation(ctx context.Context, ident domain.Identity, id uuid.UUID) (*domain.Reservation, error) {
	const op = "service.query.GetReservation"

	res, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrReservationNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if res.UserID != ident.UserID && !ident.Admin {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	return res, nil
}
