package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arunkumar-com/tablebook/internal/domain"
)

// ReservationRepo persists reservation history. Reservations are only ever
// soft-cancelled, never deleted.
type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const reservationColumns = `
	res.id, res.user_id, res.restaurant_id, rest.name,
	res.date, res.slot_time, res.table_type,
	res.number_of_guests, res.special_requests, res.status, res.created_at`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var out domain.Reservation
	var date time.Time
	if err := row.Scan(
		&out.ID, &out.UserID, &out.RestaurantID, &out.RestaurantName,
		&date, &out.Time, &out.TableType,
		&out.NumberOfGuests, &out.SpecialRequests, &out.Status, &out.CreatedAt,
	); err != nil {
		return nil, err
	}
	out.Date = date.Format(domain.DateLayout)
	return &out, nil
}

func (r *ReservationRepo) Create(ctx context.Context, res *domain.Reservation) error {
	const op = "postgres.ReservationRepo.Create"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO reservations
			(id, user_id, restaurant_id, date, slot_time, table_type,
			 number_of_guests, special_requests, status, created_at)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.ID, res.UserID, res.RestaurantID, res.Date, res.Time, res.TableType,
		res.NumberOfGuests, res.SpecialRequests, res.Status, res.CreatedAt,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// FindByID retrieves a reservation with its restaurant name joined in.
//
// Returns repository.ErrNotFound for an unknown ID.
func (r *ReservationRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.FindByID"

	db := r.handle()

	out, err := scanReservation(db.QueryRow(ctx,
		`SELECT`+reservationColumns+`
       	 FROM reservations res
       	 JOIN restaurants rest ON rest.id = res.restaurant_id
      	 WHERE res.id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *ReservationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ListByUser"

	return r.list(ctx, op,
		`SELECT`+reservationColumns+`
       	 FROM reservations res
       	 JOIN restaurants rest ON rest.id = res.restaurant_id
      	 WHERE res.user_id = $1
      	 ORDER BY res.created_at DESC`,
		userID,
	)
}

func (r *ReservationRepo) ListAll(ctx context.Context) ([]domain.Reservation, error) {
	const op = "postgres.ReservationRepo.ListAll"

	return r.list(ctx, op,
		`SELECT`+reservationColumns+`
       	 FROM reservations res
       	 JOIN restaurants rest ON rest.id = res.restaurant_id
      	 ORDER BY res.created_at DESC`,
	)
}

func (r *ReservationRepo) list(ctx context.Context, op, sql string, args ...any) ([]domain.Reservation, error) {
	db := r.handle()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// MarkCancelled flips an active reservation to cancelled. The status guard
// makes cancellation idempotent: a second call finds no active row and
// reports changed=false, so the caller knows not to release ledger capacity
// again.
//
// Returns:
//   - bool: true when the reservation was active and is now cancelled.
func (r *ReservationRepo) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "postgres.ReservationRepo.MarkCancelled"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE reservations
        	SET status = $2
      	 WHERE id = $1 AND status = $3`,
		id, domain.StatusCancelled, domain.StatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected() > 0, nil
}
