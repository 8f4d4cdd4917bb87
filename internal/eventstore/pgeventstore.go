package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hookfreight/hookfreight/internal/idgen"
	"github.com/hookfreight/hookfreight/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgEventStore is a pgxpool-backed Store, grounded on the teacher's
// pglogstore package: parameterized queries, explicit column lists, and a
// descending (received_at, id) ORDER BY for stable pagination under bursts.
type pgEventStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*pgEventStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgEventStore{pool: pool}
}

func (s *pgEventStore) Append(ctx context.Context, event *models.Event) (string, error) {
	if event.ID == "" {
		event.ID = idgen.Event()
	}

	queryJSON, err := json.Marshal(event.Query)
	if err != nil {
		return "", fmt.Errorf("marshal query: %w", err)
	}
	headersJSON, err := json.Marshal(event.Headers)
	if err != nil {
		return "", fmt.Errorf("marshal headers: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO events
			(id, endpoint_id, method, original_url, source_url, path, query, headers, body, source_ip, user_agent, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING received_at`,
		event.ID, event.EndpointID, event.Method, event.OriginalURL, event.SourceURL, event.Path,
		queryJSON, headersJSON, event.Body, event.SourceIP, event.UserAgent, event.SizeBytes,
	).Scan(&event.ReceivedAt)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return event.ID, nil
}

const eventColumns = `
	id, endpoint_id, received_at, method, original_url, source_url, path, query, headers, body, source_ip, user_agent, size_bytes
`

func scanEvent(rows pgx.Rows) (*models.Event, error) {
	var e models.Event
	var queryJSON, headersJSON []byte
	if err := rows.Scan(
		&e.ID, &e.EndpointID, &e.ReceivedAt, &e.Method, &e.OriginalURL, &e.SourceURL, &e.Path,
		&queryJSON, &headersJSON, &e.Body, &e.SourceIP, &e.UserAgent, &e.SizeBytes,
	); err != nil {
		return nil, err
	}
	if len(queryJSON) > 0 {
		if err := json.Unmarshal(queryJSON, &e.Query); err != nil {
			return nil, fmt.Errorf("unmarshal query: %w", err)
		}
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &e.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	return &e, nil
}

func (s *pgEventStore) Get(ctx context.Context, eventID string) (*models.Event, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM events WHERE id = $1`, eventColumns), eventID)
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, models.ErrEventNotFound
	}
	return scanEvent(rows)
}

func (s *pgEventStore) ListByEndpoint(ctx context.Context, endpointID string, limit, offset int) (Page, error) {
	limit = ClampLimit(limit)
	offset = ClampOffset(offset)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM events
		WHERE endpoint_id = $1
		ORDER BY received_at DESC, id DESC
		LIMIT $2 OFFSET $3`, eventColumns),
		endpointID, limit+1, offset,
	)
	if err != nil {
		return Page{}, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var items []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return Page{}, err
		}
		items = append(items, e)
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
