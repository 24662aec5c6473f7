package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acctax/taxflow/internal/common"
	"github.com/acctax/taxflow/internal/entity"
)

type ClientRepository interface {
	// GetOrCreate returns the client for email, creating it on first sight.
	// Existing clients get their last_processed_date touched.
	GetOrCreate(ctx context.Context, email, name string) (*entity.Client, error)
	GetByEmail(ctx context.Context, email string) (*entity.Client, error)
	List(ctx context.Context) ([]entity.Client, error)
}

type clientRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewClientRepository(pool *pgxpool.Pool, logger *slog.Logger) ClientRepository {
	return &clientRepo{pool: pool, logger: logger}
}

const clientColumns = `client_id, email, name, created_date, last_processed_date, is_active`

func scanClient(row pgx.Row) (*entity.Client, error) {
	var c entity.Client
	err := row.Scan(&c.ID, &c.Email, &c.Name, &c.CreatedDate, &c.LastProcessedDate, &c.IsActive)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepo) GetOrCreate(ctx context.Context, email, name string) (*entity.Client, error) {
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	// Upsert keyed on the unique email; the insert returns the row id
	// atomically, so there is no insert-then-select-identity race.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO clients (email, name)
		VALUES ($1, $2)
		ON CONFLICT (email)
		DO UPDATE SET last_processed_date = now()
		RETURNING `+clientColumns,
		email, name)
	c, err := scanClient(row)
	if err != nil {
		r.logger.Error("client.get_or_create.failed", "email", email, "error", err)
		return nil, common.StorageError("get or create client", err)
	}
	r.logger.Info("client.get_or_create.ok", "email", email, "client_id", c.ID)
	return c, nil
}

func (r *clientRepo) GetByEmail(ctx context.Context, email string) (*entity.Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE email = $1`, email)
	c, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("client.get_by_email.failed", "email", email, "error", err)
		return nil, common.StorageError("get client by email", err)
	}
	return c, nil
}

func (r *clientRepo) List(ctx context.Context) ([]entity.Client, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+clientColumns+` FROM clients
		ORDER BY last_processed_date DESC NULLS LAST`)
	if err != nil {
		r.logger.Error("client.list.failed", "error", err)
		return nil, common.StorageError("list clients", err)
	}
	defer rows.Close()

	var out []entity.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, common.StorageError("scan client", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("list clients", err)
	}
	return out, nil
}
