package deliverystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hookfreight/hookfreight/internal/idgen"
	"github.com/hookfreight/hookfreight/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgDeliveryStore is a pgxpool-backed Store. The (event_id, parent_delivery_id)
// uniqueness invariant is enforced by a Postgres unique index (see
// internal/dbx/migrations), so a concurrent duplicate insert fails at the
// database layer rather than needing an application-level lock.
type pgDeliveryStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*pgDeliveryStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgDeliveryStore{pool: pool}
}

func (s *pgDeliveryStore) Append(ctx context.Context, d *models.Delivery) (string, error) {
	if d.ID == "" {
		d.ID = idgen.Delivery()
	}

	var headersJSON []byte
	var err error
	if d.ResponseHeaders != nil {
		headersJSON, err = json.Marshal(d.ResponseHeaders)
		if err != nil {
			return "", fmt.Errorf("marshal response headers: %w", err)
		}
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO deliveries
			(id, event_id, parent_delivery_id, status, destination_url, response_status, response_headers, response_body, duration_ms, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		d.ID, d.EventID, d.ParentDeliveryID, d.Status, d.DestinationURL, d.ResponseStatus, headersJSON, d.ResponseBody, d.DurationMs, d.ErrorMessage,
	).Scan(&d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", models.ErrDuplicateDelivery
		}
		return "", fmt.Errorf("insert delivery: %w", err)
	}
	return d.ID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const deliveryColumns = `
	id, event_id, parent_delivery_id, status, destination_url, response_status, response_headers, response_body, duration_ms, error_message, created_at
`

func scanDelivery(rows pgx.Rows) (*models.Delivery, error) {
	var d models.Delivery
	var headersJSON []byte
	if err := rows.Scan(
		&d.ID, &d.EventID, &d.ParentDeliveryID, &d.Status, &d.DestinationURL, &d.ResponseStatus, &headersJSON, &d.ResponseBody, &d.DurationMs, &d.ErrorMessage, &d.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &d.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal response headers: %w", err)
		}
	}
	return &d, nil
}

func (s *pgDeliveryStore) Get(ctx context.Context, deliveryID string) (*models.Delivery, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM deliveries WHERE id = $1`, deliveryColumns), deliveryID)
	if err != nil {
		return nil, fmt.Errorf("query delivery: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, models.ErrDeliveryNotFound
	}
	return scanDelivery(rows)
}

func (s *pgDeliveryStore) GetByEvent(ctx context.Context, eventID string, limit, offset int) (Page, error) {
	limit = ClampLimit(limit)
	offset = ClampOffset(offset)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM deliveries
		WHERE event_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, deliveryColumns),
		eventID, limit+1, offset,
	)
	if err != nil {
		return Page{}, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var items []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return Page{}, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}
	return Page{Items: items, HasNext: hasNext}, nil
}
