package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arunkumar-com/tablebook/internal/domain"
)

// RestaurantRepo reads restaurant configuration: the schedule window and the
// per-table-type inventory that seeds the capacity model.
type RestaurantRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *RestaurantRepo) With(db DB) *RestaurantRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *RestaurantRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get retrieves a restaurant with its table inventory.
//
// Returns repository.ErrNotFound for an unknown restaurant ID.
func (r *RestaurantRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	const op = "postgres.RestaurantRepo.Get"

	db := r.handle()

	var res domain.Restaurant
	err := db.QueryRow(ctx,
		`SELECT id, name, open_hour, close_hour
       	 FROM restaurants WHERE id = $1`,
		id,
	).Scan(&res.ID, &res.Name, &res.OpenHour, &res.CloseHour)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	rows, err := db.Query(ctx,
		`SELECT table_type, total_count
       	 FROM restaurant_tables WHERE restaurant_id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	res.Tables = make(map[domain.TableType]int)
	for rows.Next() {
		var tt string
		var n int
		if err := rows.Scan(&tt, &n); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		res.Tables[domain.TableType(tt)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &res, nil
}
