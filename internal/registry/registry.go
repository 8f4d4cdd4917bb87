// Package registry is the Endpoint/App store the ingest path and delivery
// worker look up, plus seeding inserts and the app-delete cascade
// (SPEC_FULL.md's "Registry", §2's Endpoint
// Registry collaborator made concrete for a single-binary deployment).
// Grounded on the teacher's pglogstore.go query-construction style.
package registry

import (
	"context"
	"fmt"

	"github.com/hookfreight/hookfreight/internal/idgen"
	"github.com/hookfreight/hookfreight/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Registry struct {
	pool *pgxpool.Pool
}

// Resolver is the narrow read surface the delivery worker pool depends on,
// letting tests substitute an in-memory fake instead of a pgxpool.Pool.
type Resolver interface {
	GetEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error)
}

func New(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

const endpointColumns = `
	id, app_id, hook_token, forward_url, forwarding_enabled,
	auth_header_name, auth_header_value, http_timeout_ms, is_active, created_at
`

func (r *Registry) scanEndpointRows(rows pgx.Rows) (*models.Endpoint, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, models.ErrEndpointNotFound
	}

	var ep models.Endpoint
	var authName, authValue *string
	if err := rows.Scan(
		&ep.ID, &ep.AppID, &ep.HookToken, &ep.ForwardURL, &ep.ForwardingEnabled,
		&authName, &authValue, &ep.HTTPTimeoutMs, &ep.IsActive, &ep.CreatedAt,
	); err != nil {
		return nil, err
	}
	if authName != nil && authValue != nil {
		ep.Authentication = &models.Authentication{HeaderName: *authName, HeaderValue: *authValue}
	}
	return &ep, nil
}

// GetEndpointByHookToken resolves the ingest path's lookup step.
func (r *Registry) GetEndpointByHookToken(ctx context.Context, hookToken string) (*models.Endpoint, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM endpoints WHERE hook_token = $1`, endpointColumns), hookToken)
	if err != nil {
		return nil, fmt.Errorf("query endpoint by hook_token: %w", err)
	}
	return r.scanEndpointRows(rows)
}

// GetEndpoint resolves the worker pool's lookup step.
func (r *Registry) GetEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM endpoints WHERE id = $1`, endpointColumns), endpointID)
	if err != nil {
		return nil, fmt.Errorf("query endpoint by id: %w", err)
	}
	return r.scanEndpointRows(rows)
}

func (r *Registry) GetApp(ctx context.Context, appID string) (*models.App, error) {
	var app models.App
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM apps WHERE id = $1`, appID).
		Scan(&app.ID, &app.Name, &app.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrAppNotFound
		}
		return nil, fmt.Errorf("query app: %w", err)
	}
	return &app, nil
}

// CreateApp and CreateEndpoint exist only to let tests and operators seed
// data; the tenancy CRUD surface itself remains out of scope (SPEC_FULL.md §3).

func (r *Registry) CreateApp(ctx context.Context, name string) (*models.App, error) {
	app := &models.App{ID: idgen.App(), Name: name}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO apps (id, name) VALUES ($1, $2) RETURNING created_at`,
		app.ID, app.Name,
	).Scan(&app.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert app: %w", err)
	}
	return app, nil
}

type NewEndpoint struct {
	AppID             string
	HookToken         string
	ForwardURL        string
	ForwardingEnabled bool
	Authentication    *models.Authentication
	HTTPTimeoutMs     int
	IsActive          bool
}

func (r *Registry) CreateEndpoint(ctx context.Context, in NewEndpoint) (*models.Endpoint, error) {
	if in.HTTPTimeoutMs <= 0 {
		in.HTTPTimeoutMs = models.DefaultHTTPTimeoutMs
	}
	if in.HTTPTimeoutMs > models.MaxHTTPTimeoutMs {
		in.HTTPTimeoutMs = models.MaxHTTPTimeoutMs
	}

	ep := &models.Endpoint{
		ID:                idgen.Endpoint(),
		AppID:             in.AppID,
		HookToken:         in.HookToken,
		ForwardURL:        in.ForwardURL,
		ForwardingEnabled: in.ForwardingEnabled,
		Authentication:    in.Authentication,
		HTTPTimeoutMs:     in.HTTPTimeoutMs,
		IsActive:          in.IsActive,
	}

	var authName, authValue *string
	if ep.Authentication != nil {
		authName = &ep.Authentication.HeaderName
		authValue = &ep.Authentication.HeaderValue
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO endpoints
			(id, app_id, hook_token, forward_url, forwarding_enabled, auth_header_name, auth_header_value, http_timeout_ms, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		ep.ID, ep.AppID, ep.HookToken, ep.ForwardURL, ep.ForwardingEnabled, authName, authValue, ep.HTTPTimeoutMs, ep.IsActive,
	).Scan(&ep.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrDuplicateHookToken
		}
		return nil, fmt.Errorf("insert endpoint: %w", err)
	}
	return ep, nil
}

// DeleteApp cascades app -> endpoints -> events -> deliveries in one
// transaction, per SPEC_FULL.md §5's app-delete cascade: for each batch of up
// to 1000 endpoint ids delete their events' deliveries, then the events, then
// the endpoints; the app row goes last.
func (r *Registry) DeleteApp(ctx context.Context, appID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const batchSize = 1000
	for {
		rows, err := tx.Query(ctx, `SELECT id FROM endpoints WHERE app_id = $1 LIMIT $2`, appID, batchSize)
		if err != nil {
			return fmt.Errorf("select endpoint batch: %w", err)
		}
		var batch []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			batch = append(batch, id)
		}
		rows.Close()
		if len(batch) == 0 {
			break
		}

		if _, err := tx.Exec(ctx, `DELETE FROM deliveries WHERE event_id IN (SELECT id FROM events WHERE endpoint_id = ANY($1))`, batch); err != nil {
			return fmt.Errorf("delete deliveries for batch: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM events WHERE endpoint_id = ANY($1)`, batch); err != nil {
			return fmt.Errorf("delete events for batch: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM endpoints WHERE id = ANY($1)`, batch); err != nil {
			return fmt.Errorf("delete endpoints for batch: %w", err)
		}
		if len(batch) < batchSize {
			break
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM apps WHERE id = $1`, appID)
	if err != nil {
		return fmt.Errorf("delete app: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAppNotFound
	}

	return tx.Commit(ctx)
}
