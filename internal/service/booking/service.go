package booking

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

// Restaurants is the capacity model: read-only restaurant configuration.
type Restaurants interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error)
}

// Ledger is the slot ledger. Reserve must be an atomic check-and-increment:
// it fails with repository.ErrCapacityExceeded rather than ever letting
// consumed pass total.
type Ledger interface {
	Reserve(ctx context.Context, key domain.SlotKey, total int) error
	Release(ctx context.Context, key domain.SlotKey) error
}

// Reservations is the reservation store.
type Reservations interface {
	Create(ctx context.Context, res *domain.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)
}

type Config struct {
	// Timeout bounds a single booking attempt. An expired attempt aborts and
	// compensates instead of leaving partial state.
	Timeout time.Duration

	// Now is the clock used for the today-or-future date check.
	Now func() time.Time
}

// Service runs booking attempts: validate, reserve capacity, persist, or
// fail cleanly with compensation.
type Service struct {
	restaurants  Restaurants
	ledger       Ledger
	reservations Reservations
	cache        *redisrepo.Cache
	pubsub       *redisrepo.SlotsPubSub
	limiter      *redisrepo.SlidingWindowLimiter
	cfg          Config
}

func New(
	restaurants Restaurants,
	ledger Ledger,
	reservations Reservations,
	cache *redisrepo.Cache,
	pubsub *redisrepo.SlotsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		restaurants:  restaurants,
		ledger:       ledger,
		reservations: reservations,
		cache:        cache,
		pubsub:       pubsub,
		limiter:      limiter,
		cfg:          cfg,
	}
}

type Request struct {
	RestaurantID    uuid.UUID
	Date            string
	Time            string
	TableType       domain.TableType
	SpecialRequests string
}

// Book runs one booking attempt for the authenticated caller.
//
// The flow is validate, then Ledger.Reserve, then persist. The guest count
// of the created reservation is derived from the table type; any
// client-supplied count never reaches this layer. If persistence fails after
// a successful reserve, the held capacity is released before the error
// surfaces.
//
// Returns:
//   - error: booking.ErrInvalidInput on a past date, off-schedule time, or
//     unsupported table type.
//   - error: booking.ErrRestaurantNotFound for an unknown restaurant.
//   - error: booking.ErrNoAvailability when the slot is full.
//   - error: booking.ErrPersistenceFailure when the store write failed; the
//     ledger hold has already been released.
//   - error: booking.ErrRateLimited when rlKey exceeded its budget.
func (s *Service) Book(
	ctx context.Context,
	ident domain.Identity,
	req Request,
	rlKey string,
) (*domain.Reservation, error) {
	const op = "service.booking.Book"

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: retry in %s: %w", op, retry, ErrRateLimited)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	restaurant, err := s.restaurants.Get(ctx, req.RestaurantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRestaurantNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	total, err := s.validate(restaurant, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := domain.SlotKey{
		RestaurantID: req.RestaurantID,
		Date:         req.Date,
		Time:         req.Time,
		TableType:    req.TableType,
	}

	if err := s.ledger.Reserve(ctx, key, total); err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) {
			return nil, fmt.Errorf("%s: %w", op, ErrNoAvailability)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &domain.Reservation{
		ID:              uuid.New(),
		UserID:          ident.UserID,
		RestaurantID:    req.RestaurantID,
		RestaurantName:  restaurant.Name,
		Date:            req.Date,
		Time:            req.Time,
		TableType:       req.TableType,
		NumberOfGuests:  req.TableType.Seats(),
		SpecialRequests: req.SpecialRequests,
		Status:          domain.StatusActive,
		CreatedAt:       s.cfg.Now().UTC(),
	}

	if err := s.reservations.Create(ctx, res); err != nil {
		// Compensate: give the held capacity back even if the request
		// context has already expired.
		_ = s.ledger.Release(context.WithoutCancel(ctx), key)
		return nil, fmt.Errorf("%s: %v: %w", op, err, ErrPersistenceFailure)
	}

	s.slotsChanged(ctx, req.RestaurantID, req.Date)

	return res, nil
}

// Cancel soft-deletes a reservation and frees its ledger capacity. Only the
// owner or an admin may cancel; cancelling an already-cancelled reservation
// is an idempotent no-op with no ledger change.
//
// Returns:
//   - error: booking.ErrReservationNotFound for an unknown ID.
//   - error: booking.ErrForbidden when the caller is neither owner nor admin.
func (s *Service) Cancel(ctx context.Context, ident domain.Identity, id uuid.UUID) error {
	const op = "service.booking.Cancel"

	res, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrReservationNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.UserID != ident.UserID && !ident.Admin {
		return fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	changed, err := s.reservations.MarkCancelled(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !changed {
		// Already cancelled; the ledger was released the first time.
		return nil
	}

	// Mark-cancelled happens before release, so readers never see freed
	// capacity next to an active reservation. A failed release leaves the
	// ledger overstating consumption until the reconciler corrects it.
	_ = s.ledger.Release(context.WithoutCancel(ctx), res.Key())

	s.slotsChanged(ctx, res.RestaurantID, res.Date)

	return nil
}

func (s *Service) validate(restaurant *domain.Restaurant, req Request) (int, error) {
	if _, err := domain.ParseDate(req.Date); err != nil {
		return 0, fmt.Errorf("bad date %q: %w", req.Date, ErrInvalidInput)
	}

	// ISO dates compare correctly as strings.
	if today := s.cfg.Now().UTC().Format(domain.DateLayout); req.Date < today {
		return 0, fmt.Errorf("date %s is in the past: %w", req.Date, ErrInvalidInput)
	}

	if !restaurant.HasSlot(req.Time) {
		return 0, fmt.Errorf("time %q is not on the schedule: %w", req.Time, ErrInvalidInput)
	}

	if !req.TableType.Valid() {
		return 0, fmt.Errorf("bad table type %q: %w", req.TableType, ErrInvalidInput)
	}

	total, ok := restaurant.TotalInventory(req.TableType)
	if !ok {
		return 0, fmt.Errorf("table type %q not offered: %w", req.TableType, ErrInvalidInput)
	}

	return total, nil
}

func (s *Service) slotsChanged(ctx context.Context, restaurantID uuid.UUID, date string) {
	ctx = context.WithoutCancel(ctx)
	if s.cache != nil {
		_ = s.cache.InvalidateSlots(ctx, restaurantID, date)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishSlotsChanged(ctx, restaurantID, date)
	}
}
