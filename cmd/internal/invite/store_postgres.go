package invite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tavern/cmd/internal/pgschema"
)

const inviteColumns = "id, world_id, created_by, created_at, expires_at, revoked_at"

// PostgresStore keeps invites in <schema>.world_invites.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema selects the schema holding world_invites.
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgschema.ValidIdent(schema) {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, ErrInvalidInput
	}
	st := &PostgresStore{pool: pool, schema: pgschema.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *PostgresStore) table() string { return pgschema.Ident(s.schema, "world_invites") }

func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Invite, error) {
	if in.ID == "" || strings.TrimSpace(in.WorldID) == "" || in.TokenHash == "" {
		return Invite{}, ErrInvalidInput
	}
	rows, err := s.pool.Query(ctx,
		`INSERT INTO `+s.table()+` (id, world_id, token_hash, created_by, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+inviteColumns,
		in.ID, in.WorldID, in.TokenHash, in.CreatedBy, in.CreatedAt, in.ExpiresAt,
	)
	if err != nil {
		return Invite{}, err
	}
	inv, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Invite])
	if isUniqueViolation(err) {
		// token_hash is unique.
		return Invite{}, ErrInvalidInput
	}
	return inv, err
}

func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Invite, error) {
	if tokenHash == "" {
		return Invite{}, ErrInvalidInput
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+inviteColumns+` FROM `+s.table()+` WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return Invite{}, err
	}
	inv, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Invite])
	if errors.Is(err, pgx.ErrNoRows) {
		return Invite{}, ErrNotFound
	}
	return inv, err
}

func (s *PostgresStore) ListByWorld(ctx context.Context, worldID string) ([]Invite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+inviteColumns+` FROM `+s.table()+`
		  WHERE world_id = $1
		  ORDER BY created_at DESC, id DESC`, worldID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Invite])
}

// Revoke stamps revoked_at once; later calls keep the first timestamp.
func (s *PostgresStore) Revoke(ctx context.Context, inviteID string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET revoked_at = COALESCE(revoked_at, $1) WHERE id = $2`,
		now, inviteID)
	switch {
	case err != nil:
		return err
	case tag.RowsAffected() == 0:
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
