package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/subcart/internal/cart"
)

// Store is a Postgres-backed Provider.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a catalog store over the provided pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const productColumns = `id, title, price, is_subscription, sign_up_fee,
trial_length, trial_period, billing_interval, billing_period, length,
sync_day, sync_month, needs_shipping, one_time_shipping`

// Product implements Provider.
func (s *Store) Product(ctx context.Context, id uuid.UUID) (Product, error) {
	if s == nil || s.pool == nil {
		return Product{}, errors.New("catalog: store not configured")
	}
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	var p Product
	var trialPeriod, period string
	err := row.Scan(
		&p.ID, &p.Title, &p.Price, &p.IsSubscription, &p.SignUpFee,
		&p.TrialLength, &trialPeriod, &p.Interval, &period, &p.Length,
		&p.SyncDay, &p.SyncMonth, &p.NeedsShipping, &p.OneTimeShipping,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	p.TrialPeriod = periodFromString(trialPeriod)
	p.Period = periodFromString(period)
	return p, nil
}

// Upsert inserts or replaces a product row. Used by the seed tooling.
func (s *Store) Upsert(ctx context.Context, p Product) error {
	if s == nil || s.pool == nil {
		return errors.New("catalog: store not configured")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO products (`+productColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  price = EXCLUDED.price,
  is_subscription = EXCLUDED.is_subscription,
  sign_up_fee = EXCLUDED.sign_up_fee,
  trial_length = EXCLUDED.trial_length,
  trial_period = EXCLUDED.trial_period,
  billing_interval = EXCLUDED.billing_interval,
  billing_period = EXCLUDED.billing_period,
  length = EXCLUDED.length,
  sync_day = EXCLUDED.sync_day,
  sync_month = EXCLUDED.sync_month,
  needs_shipping = EXCLUDED.needs_shipping,
  one_time_shipping = EXCLUDED.one_time_shipping`,
		p.ID, p.Title, p.Price, p.IsSubscription, p.SignUpFee,
		p.TrialLength, string(p.TrialPeriod), p.Interval, string(p.Period), p.Length,
		p.SyncDay, p.SyncMonth, p.NeedsShipping, p.OneTimeShipping,
	)
	return err
}

// List returns a page of products ordered by title, plus the total count.
func (s *Store) List(ctx context.Context, page, perPage int) ([]Product, int, error) {
	if s == nil || s.pool == nil {
		return nil, 0, errors.New("catalog: store not configured")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY title, id LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		var trialPeriod, period string
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Price, &p.IsSubscription, &p.SignUpFee,
			&p.TrialLength, &trialPeriod, &p.Interval, &period, &p.Length,
			&p.SyncDay, &p.SyncMonth, &p.NeedsShipping, &p.OneTimeShipping,
		); err != nil {
			return nil, 0, err
		}
		p.TrialPeriod = periodFromString(trialPeriod)
		p.Period = periodFromString(period)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func periodFromString(value string) cart.Period {
	switch value {
	case "day", "week", "month", "year":
		return cart.Period(value)
	default:
		return ""
	}
}
