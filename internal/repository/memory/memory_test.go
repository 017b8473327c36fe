package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arunkumar-com/tablebook/internal/domain"
	"github.com/arunkumar-com/tablebook/internal/repository"
	"github.com/arunkumar-com/tablebook/internal/repository/memory"
)

func slotKey(restaurantID uuid.UUID) domain.SlotKey {
	return domain.SlotKey{
		RestaurantID: restaurantID,
		Date:         "2025-06-01",
		Time:         "18:00",
		TableType:    domain.TwoSeater,
	}
}

func TestReserveRelease(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	key := slotKey(uuid.New())

	require.NoError(t, s.Reserve(ctx, key, 2))
	require.NoError(t, s.Reserve(ctx, key, 2))

	err := s.Reserve(ctx, key, 2)
	require.ErrorIs(t, err, repository.ErrCapacityExceeded)

	n, err := s.Consumed(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Release(ctx, key))
	require.NoError(t, s.Reserve(ctx, key, 2))
}

func TestReserveZeroCapacity(t *testing.T) {
	s := memory.NewStore()
	err := s.Reserve(context.Background(), slotKey(uuid.New()), 0)
	require.ErrorIs(t, err, repository.ErrCapacityExceeded)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	key := slotKey(uuid.New())

	require.NoError(t, s.Release(ctx, key))
	require.NoError(t, s.Release(ctx, key))

	n, err := s.Consumed(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// Hammering one slot from many goroutines must admit exactly the configured
// capacity and never a unit more.
func TestReserveConcurrent(t *testing.T) {
	const (
		capacity = 3
		workers  = 50
	)

	ctx := context.Background()
	s := memory.NewStore()
	key := slotKey(uuid.New())

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Reserve(ctx, key, capacity); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(capacity), succeeded.Load())

	n, err := s.Consumed(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, capacity, n)
}

func TestConsumedForDate(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	restaurantID := uuid.New()

	reserve := func(date, slot string, tt domain.TableType) {
		t.Helper()
		require.NoError(t, s.Reserve(ctx, domain.SlotKey{
			RestaurantID: restaurantID,
			Date:         date,
			Time:         slot,
			TableType:    tt,
		}, 10))
	}

	reserve("2025-06-01", "18:00", domain.TwoSeater)
	reserve("2025-06-01", "18:00", domain.TwoSeater)
	reserve("2025-06-01", "19:00", domain.FourSeater)
	reserve("2025-06-02", "18:00", domain.TwoSeater)

	got, err := s.ConsumedForDate(ctx, restaurantID, "2025-06-01")
	require.NoError(t, err)

	assert.Equal(t, map[string]map[domain.TableType]int{
		"18:00": {domain.TwoSeater: 2},
		"19:00": {domain.FourSeater: 1},
	}, got)
}

func TestReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	restaurant := &domain.Restaurant{
		ID:        uuid.New(),
		Name:      "Trattoria Uno",
		OpenHour:  11,
		CloseHour: 22,
		Tables:    map[domain.TableType]int{domain.TwoSeater: 2},
	}
	s.AddRestaurant(restaurant)

	res := &domain.Reservation{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		RestaurantID: restaurant.ID,
		Date:         "2025-06-01",
		Time:         "18:00",
		TableType:    domain.TwoSeater,
		Status:       domain.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.Create(ctx, res))

	t.Run("create denormalizes restaurant name", func(t *testing.T) {
		got, err := s.FindByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, "Trattoria Uno", got.RestaurantName)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		err := s.Create(ctx, res)
		require.ErrorIs(t, err, repository.ErrConflict)
	})

	t.Run("unknown id not found", func(t *testing.T) {
		_, err := s.FindByID(ctx, uuid.New())
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("mark cancelled is idempotent", func(t *testing.T) {
		changed, err := s.MarkCancelled(ctx, res.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.MarkCancelled(ctx, res.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := s.FindByID(ctx, res.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, got.Status)
	})

	t.Run("mark cancelled unknown id", func(t *testing.T) {
		_, err := s.MarkCancelled(ctx, uuid.New())
		require.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	userID := uuid.New()

	base := time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, &domain.Reservation{
			ID:           uuid.New(),
			UserID:       userID,
			RestaurantID: uuid.New(),
			Date:         "2025-06-01",
			Time:         "18:00",
			TableType:    domain.TwoSeater,
			Status:       domain.StatusActive,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// another user's reservation must not leak into ListByUser
	require.NoError(t, s.Create(ctx, &domain.Reservation{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Status:    domain.StatusActive,
		CreatedAt: base,
	}))

	own, err := s.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, own, 3)
	assert.True(t, own[0].CreatedAt.After(own[1].CreatedAt))
	assert.True(t, own[1].CreatedAt.After(own[2].CreatedAt))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	restaurantID := uuid.New()
	key := domain.SlotKey{
		RestaurantID: restaurantID,
		Date:         "2025-06-01",
		Time:         "18:00",
		TableType:    domain.TwoSeater,
	}

	// one active reservation, but the ledger drifted to 3
	require.NoError(t, s.Create(ctx, &domain.Reservation{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		RestaurantID: restaurantID,
		Date:         key.Date,
		Time:         key.Time,
		TableType:    key.TableType,
		Status:       domain.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Reserve(ctx, key, 10))
	}

	fixed, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fixed)

	n, err := s.Consumed(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// idempotent once converged
	fixed, err = s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}
