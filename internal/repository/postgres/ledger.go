package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arunkumar-com/tablebook/internal/domain"
	"github.com/arunkumar-com/tablebook/internal/repository"
)

// LedgerRepo maintains per-slot consumed counts. The counts are a cache over
// active reservations; Reconcile recomputes them from the reservations table.
type LedgerRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *LedgerRepo) With(db DB) *LedgerRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *LedgerRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Reserve atomically consumes one unit of capacity for the key, but only
// while consumed stays within total. The check and the increment are a
// single conditional UPDATE, so concurrent callers for the same key can
// never push consumed past total.
//
// Returns:
//   - error: repository.ErrCapacityExceeded when the slot is full.
func (r *LedgerRepo) Reserve(ctx context.Context, key domain.SlotKey, total int) error {
	const op = "postgres.LedgerRepo.Reserve"

	if r.db != nil {
		if err := r.reserveCore(ctx, r.db, key, total); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	if err := r.reserveCore(ctx, tx, key, total); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *LedgerRepo) reserveCore(ctx context.Context, db DB, key domain.SlotKey, total int) error {
	if total <= 0 {
		return repository.ErrCapacityExceeded
	}

	// Ensure the row exists, then conditionally increment. ON CONFLICT DO
	// NOTHING keeps the insert race-safe; the UPDATE takes a row lock so the
	// capacity check and the increment are one critical section.
	if _, err := db.Exec(ctx,
		`INSERT INTO slot_ledger (restaurant_id, date, slot_time, table_type, consumed)
       	 VALUES ($1, $2, $3, $4, 0)
      	 ON CONFLICT (restaurant_id, date, slot_time, table_type) DO NOTHING`,
		key.RestaurantID, key.Date, key.Time, key.TableType,
	); err != nil {
		return translateDBErr(err)
	}

	tag, err := db.Exec(ctx,
		`UPDATE slot_ledger
        	SET consumed = consumed + 1
      	 WHERE restaurant_id = $1 AND date = $2 AND slot_time = $3 AND table_type = $4
        	AND consumed < $5`,
		key.RestaurantID, key.Date, key.Time, key.TableType, total,
	)
	if err != nil {
		return translateDBErr(err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrCapacityExceeded
	}

	return nil
}

// Release returns one unit of capacity for the key. Floors at zero; a
// release for a key with no consumption is a no-op.
func (r *LedgerRepo) Release(ctx context.Context, key domain.SlotKey) error {
	const op = "postgres.LedgerRepo.Release"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE slot_ledger
        	SET consumed = GREATEST(consumed - 1, 0)
      	 WHERE restaurant_id = $1 AND date = $2 AND slot_time = $3 AND table_type = $4`,
		key.RestaurantID, key.Date, key.Time, key.TableType,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// ConsumedForDate returns consumed counts for every ledger row of a
// restaurant on a date, keyed by slot time then table type. Slots with no
// row are simply absent.
func (r *LedgerRepo) ConsumedForDate(
	ctx context.Context,
	restaurantID uuid.UUID,
	date string,
) (map[string]map[domain.TableType]int, error) {
	const op = "postgres.LedgerRepo.ConsumedForDate"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT slot_time, table_type, consumed
       	 FROM slot_ledger
      	 WHERE restaurant_id = $1 AND date = $2`,
		restaurantID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	out := make(map[string]map[domain.TableType]int)
	for rows.Next() {
		var slot, tt string
		var n int
		if err := rows.Scan(&slot, &tt, &n); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		if out[slot] == nil {
			out[slot] = make(map[domain.TableType]int)
		}
		out[slot][domain.TableType(tt)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Reconcile recomputes consumed counts from active reservations and fixes
// any drifted rows. Returns the number of rows corrected.
func (r *LedgerRepo) Reconcile(ctx context.Context) (int64, error) {
	const op = "postgres.LedgerRepo.Reconcile"

	db := r.handle()

	var fixed int64

	tag, err := db.Exec(ctx,
		`UPDATE slot_ledger sl
        	SET consumed = a.cnt
       	 FROM (
			SELECT restaurant_id, date, slot_time, table_type, COUNT(*) AS cnt
			  FROM reservations
			 WHERE status = 'active'
			 GROUP BY restaurant_id, date, slot_time, table_type
		 ) a
      	 WHERE sl.restaurant_id = a.restaurant_id
        	AND sl.date = a.date
        	AND sl.slot_time = a.slot_time
        	AND sl.table_type = a.table_type
        	AND sl.consumed <> a.cnt`,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	fixed += tag.RowsAffected()

	tag, err = db.Exec(ctx,
		`UPDATE slot_ledger sl
        	SET consumed = 0
      	 WHERE sl.consumed <> 0
        	AND NOT EXISTS (
				SELECT 1 FROM reservations res
				 WHERE res.status = 'active'
				   AND res.restaurant_id = sl.restaurant_id
				   AND res.date = sl.date
				   AND res.slot_time = sl.slot_time
				   AND res.table_type = sl.table_type
			)`,
	)
	if err != nil {
		return fixed, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	fixed += tag.RowsAffected()

	return fixed, nil
}
