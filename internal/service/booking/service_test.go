package booking_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arunkumar-com/tablebook/internal/domain"
	"github.com/arunkumar-com/tablebook/internal/repository/memory"
	"github.com/arunkumar-com/tablebook/internal/service/booking"
)

var testNow = time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*booking.Service, *memory.Store, *domain.Restaurant) {
	t.Helper()

	store := memory.NewStore()
	restaurant := &domain.Restaurant{
		ID:        uuid.New(),
		Name:      "Chez Nous",
		OpenHour:  11,
		CloseHour: 22,
		Tables: map[domain.TableType]int{
			domain.TwoSeater:  2,
			domain.FourSeater: 1,
		},
	}
	store.AddRestaurant(restaurant)

	svc := booking.New(store, store, store, nil, nil, nil, booking.Config{
		Now: func() time.Time { return testNow },
	})

	return svc, store, restaurant
}

func request(restaurantID uuid.UUID) booking.Request {
	return booking.Request{
		RestaurantID: restaurantID,
		Date:         "2025-06-01",
		Time:         "18:00",
		TableType:    domain.TwoSeater,
	}
}

func TestBook(t *testing.T) {
	ctx := context.Background()
	ident := domain.Identity{UserID: uuid.New()}

	t.Run("success", func(t *testing.T) {
		svc, store, restaurant := newFixture(t)

		req := request(restaurant.ID)
		req.SpecialRequests = "window seat"

		res, err := svc.Book(ctx, ident, req, "")
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, ident.UserID, res.UserID)
		assert.Equal(t, "Chez Nous", res.RestaurantName)
		assert.Equal(t, domain.StatusActive, res.Status)
		assert.Equal(t, "window seat", res.SpecialRequests)
		assert.Equal(t, testNow, res.CreatedAt)

		stored, err := store.FindByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, res.ID, stored.ID)

		n, err := store.Consumed(ctx, res.Key())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("guest count comes from the table type", func(t *testing.T) {
		svc, _, restaurant := newFixture(t)

		res, err := svc.Book(ctx, ident, request(restaurant.ID), "")
		require.NoError(t, err)
		assert.Equal(t, 2, res.NumberOfGuests)

		req := request(restaurant.ID)
		req.Time = "19:00"
		req.TableType = domain.FourSeater
		res, err = svc.Book(ctx, ident, req, "")
		require.NoError(t, err)
		assert.Equal(t, 4, res.NumberOfGuests)
	})

	t.Run("unknown restaurant", func(t *testing.T) {
		svc, _, _ := newFixture(t)

		_, err := svc.Book(ctx, ident, request(uuid.New()), "")
		require.ErrorIs(t, err, booking.ErrRestaurantNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		svc, _, restaurant := newFixture(t)

		cases := []struct {
			name   string
			mutate func(*booking.Request)
		}{
			{"malformed date", func(r *booking.Request) { r.Date = "06/01/2025" }},
			{"past date", func(r *booking.Request) { r.Date = "2025-05-29" }},
			{"off-schedule time", func(r *booking.Request) { r.Time = "23:00" }},
			{"half-hour time", func(r *booking.Request) { r.Time = "18:30" }},
			{"unsupported table type", func(r *booking.Request) { r.TableType = "sixSeater" }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := request(restaurant.ID)
				tc.mutate(&req)
				_, err := svc.Book(ctx, ident, req, "")
				require.ErrorIs(t, err, booking.ErrInvalidInput)
			})
		}
	})

	t.Run("booking today is allowed", func(t *testing.T) {
		svc, _, restaurant := newFixture(t)

		req := request(restaurant.ID)
		req.Date = testNow.Format(domain.DateLayout)
		_, err := svc.Book(ctx, ident, req, "")
		require.NoError(t, err)
	})

	t.Run("no availability once full", func(t *testing.T) {
		svc, _, restaurant := newFixture(t)

		_, err := svc.Book(ctx, ident, request(restaurant.ID), "")
		require.NoError(t, err)
		_, err = svc.Book(ctx, ident, request(restaurant.ID), "")
		require.NoError(t, err)

		_, err = svc.Book(ctx, ident, request(restaurant.ID), "")
		require.ErrorIs(t, err, booking.ErrNoAvailability)

		// same time, other table type still has room
		req := request(restaurant.ID)
		req.TableType = domain.FourSeater
		_, err = svc.Book(ctx, ident, req, "")
		require.NoError(t, err)
	})

	t.Run("cancel frees the slot for the next booking", func(t *testing.T) {
		svc, _, restaurant := newFixture(t)

		first, err := svc.Book(ctx, ident, request(restaurant.ID), "")
		require.NoError(t, err)
		_, err = svc.Book(ctx, ident, request(restaurant.ID), "")
		require.NoError(t, err)
		_, err = svc.Book(ctx, ident, request(restaurant.ID), "")
		require.ErrorIs(t, err, booking.ErrNoAvailability)

		require.NoError(t, svc.Cancel(ctx, ident, first.ID))

		_, err = svc.Book(ctx, ident, request(restaurant.ID), "")
		require.NoError(t, err)
	})
}

// Concurrent attempts at the last units of capacity must admit exactly the
// inventory and reject the rest; the ledger never overshoots.
func TestBookConcurrent(t *testing.T) {
	const workers = 20

	ctx := context.Background()
	svc, store, restaurant := newFixture(t)

	var (
		wg        sync.WaitGroup
		confirmed atomic.Int64
		rejected  atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ident := domain.Identity{UserID: uuid.New()}
			_, err := svc.Book(ctx, ident, request(restaurant.ID), "")
			switch {
			case err == nil:
				confirmed.Add(1)
			case errors.Is(err, booking.ErrNoAvailability):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2), confirmed.Load())
	assert.Equal(t, int64(workers-2), rejected.Load())

	n, err := store.Consumed(ctx, domain.SlotKey{
		RestaurantID: restaurant.ID,
		Date:         "2025-06-01",
		Time:         "18:00",
		TableType:    domain.TwoSeater,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// failingReservations rejects every write so the compensation path can be
// observed.
type failingReservations struct {
	*memory.Store
}

func (f *failingReservations) Create(ctx context.Context, res *domain.Reservation) error {
	return errors.New("disk on fire")
}

func TestBookCompensatesOnPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	ident := domain.Identity{UserID: uuid.New()}

	store := memory.NewStore()
	restaurant := &domain.Restaurant{
		ID:        uuid.New(),
		Name:      "Chez Nous",
		OpenHour:  11,
		CloseHour: 22,
		Tables:    map[domain.TableType]int{domain.TwoSeater: 2},
	}
	store.AddRestaurant(restaurant)

	svc := booking.New(store, store, &failingReservations{store}, nil, nil, nil, booking.Config{
		Now: func() time.Time { return testNow },
	})

	_, err := svc.Book(ctx, ident, request(restaurant.ID), "")
	require.ErrorIs(t, err, booking.ErrPersistenceFailure)

	// the reserved unit was given back
	n, err := store.Consumed(ctx, domain.SlotKey{
		RestaurantID: restaurant.ID,
		Date:         "2025-06-01",
		Time:         "18:00",
		TableType:    domain.TwoSeater,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// stalledReservations never completes a write, so the booking deadline
// expires between reserve and persist.
type stalledReservations struct {
	*memory.Store
}

func (f *stalledReservations) Create(ctx context.Context, res *domain.Reservation) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestBookTimeoutReleasesHold(t *testing.T) {
	ctx := context.Background()
	ident := domain.Identity{UserID: uuid.New()}

	store := memory.NewStore()
	restaurant := &domain.Restaurant{
		ID:        uuid.New(),
		Name:      "Chez Nous",
		OpenHour:  11,
		CloseHour: 22,
		Tables:    map[domain.TableType]int{domain.TwoSeater: 2},
	}
	store.AddRestaurant(restaurant)

	svc := booking.New(store, store, &stalledReservations{store}, nil, nil, nil, booking.Config{
		Timeout: 20 * time.Millisecond,
		Now:     func() time.Time { return testNow },
	})

	_, err := svc.Book(ctx, ident, request(restaurant.ID), "")
	require.ErrorIs(t, err, booking.ErrPersistenceFailure)

	// the aborted attempt compensated despite the expired context
	n, err := store.Consumed(ctx, domain.SlotKey{
		RestaurantID: restaurant.ID,
		Date:         "2025-06-01",
		Time:         "18:00",
		TableType:    domain.TwoSeater,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	owner := domain.Identity{UserID: uuid.New()}

	t.Run("unknown reservation", func(t *testing.T) {
		svc, _, _ := newFixture(t)
		err := svc.Cancel(ctx, owner, uuid.New())
		require.ErrorIs(t, err, booking.ErrReservationNotFound)
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		svc, _, restaurant := newFixture(t)
		res, err := svc.Book(ctx, owner, request(restaurant.ID), "")
		require.NoError(t, err)

		stranger := domain.Identity{UserID: uuid.New()}
		err = svc.Cancel(ctx, stranger, res.ID)
		require.ErrorIs(t, err, booking.ErrForbidden)

		stored, err := svc.Book(ctx, owner, request(restaurant.ID), "")
		require.NoError(t, err)
		assert.NotNil(t, stored)
	})

	t.Run("admin may cancel anyone's reservation", func(t *testing.T) {
		svc, store, restaurant := newFixture(t)
		res, err := svc.Book(ctx, owner, request(restaurant.ID), "")
		require.NoError(t, err)

		admin := domain.Identity{UserID: uuid.New(), Admin: true}
		require.NoError(t, svc.Cancel(ctx, admin, res.ID))

		stored, err := store.FindByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, stored.Status)
	})

	t.Run("repeat cancel releases capacity once", func(t *testing.T) {
		svc, store, restaurant := newFixture(t)

		first, err := svc.Book(ctx, owner, request(restaurant.ID), "")
		require.NoError(t, err)
		second, err := svc.Book(ctx, owner, request(restaurant.ID), "")
		require.NoError(t, err)

		require.NoError(t, svc.Cancel(ctx, owner, first.ID))
		require.NoError(t, svc.Cancel(ctx, owner, first.ID))
		require.NoError(t, svc.Cancel(ctx, owner, first.ID))

		// only first's unit came back; second still holds its own
		n, err := store.Consumed(ctx, second.Key())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
