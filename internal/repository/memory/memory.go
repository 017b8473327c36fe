// Package memory provides in-process implementations of the engine's storage
// contracts. The ledger serializes reserve/release per key behind a mutex,
// which makes the package a convenient backend for unit and concurrency
// tests and for single-node runs without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/arunkumar-com/tablebook/internal/domain"
	"github.com/arunkumar-com/tablebook/internal/repository"
)

type Store struct {
	mu           sync.Mutex
	restaurants  map[uuid.UUID]*domain.Restaurant
	reservations map[uuid.UUID]*domain.Reservation
	consumed     map[domain.SlotKey]int
}

func NewStore() *Store {
	return &Store{
		restaurants:  make(map[uuid.UUID]*domain.Restaurant),
		reservations: make(map[uuid.UUID]*domain.Reservation),
		consumed:     make(map[domain.SlotKey]int),
	}
}

// AddRestaurant seeds restaurant configuration.
func (s *Store) AddRestaurant(r *domain.Restaurant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.Tables = make(map[domain.TableType]int, len(r.Tables))
	for k, v := range r.Tables {
		cp.Tables[k] = v
	}
	s.restaurants[r.ID] = &cp
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.restaurants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	cp := *r
	return &cp, nil
}

// Reserve is the check-and-increment critical section: under the lock no two
// callers can both observe the last unit of capacity as free.
func (s *Store) Reserve(ctx context.Context, key domain.SlotKey, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumed[key]+1 > total {
		return repository.ErrCapacityExceeded
	}

	s.consumed[key]++
	return nil
}

func (s *Store) Release(ctx context.Context, key domain.SlotKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumed[key] > 0 {
		s.consumed[key]--
	}
	return nil
}

func (s *Store) Consumed(ctx context.Context, key domain.SlotKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed[key], nil
}

func (s *Store) ConsumedForDate(
	ctx context.Context,
	restaurantID uuid.UUID,
	date string,
) (map[string]map[domain.TableType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[domain.TableType]int)
	for key, n := range s.consumed {
		if key.RestaurantID != restaurantID || key.Date != date {
			continue
		}
		if out[key.Time] == nil {
			out[key.Time] = make(map[domain.TableType]int)
		}
		out[key.Time][key.TableType] = n
	}

	return out, nil
}

func (s *Store) Create(ctx context.Context, res *domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[res.ID]; ok {
		return repository.ErrConflict
	}

	cp := *res
	if r, ok := s.restaurants[res.RestaurantID]; ok {
		cp.RestaurantName = r.Name
	}
	s.reservations[res.ID] = &cp

	return nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	cp := *res
	return &cp, nil
}

func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Reservation
	for _, res := range s.reservations {
		if res.UserID == userID {
			out = append(out, *res)
		}
	}
	sortByCreated(out)

	return out, nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Reservation
	for _, res := range s.reservations {
		out = append(out, *res)
	}
	sortByCreated(out)

	return out, nil
}

func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[id]
	if !ok {
		return false, repository.ErrNotFound
	}

	if res.Status != domain.StatusActive {
		return false, nil
	}

	res.Status = domain.StatusCancelled
	return true, nil
}

// Reconcile recomputes consumed counts from active reservations, the same
// self-heal the Postgres ledger performs. Returns the number of keys fixed.
func (s *Store) Reconcile(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actual := make(map[domain.SlotKey]int)
	for _, res := range s.reservations {
		if res.Status == domain.StatusActive {
			actual[res.Key()]++
		}
	}

	var fixed int64
	for key, n := range s.consumed {
		if actual[key] != n {
			fixed++
			if actual[key] == 0 {
				delete(s.consumed, key)
			} else {
				s.consumed[key] = actual[key]
			}
		}
	}
	for key, n := range actual {
		if _, ok := s.consumed[key]; !ok {
			s.consumed[key] = n
			fixed++
		}
	}

	return fixed, nil
}

func sortByCreated(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID.String() > rs[j].ID.String()
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}
