package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tavern/cmd/identity/ids"
	"tavern/cmd/internal/pgschema"
	"tavern/cmd/internal/remote"
)

// PostgresStore persists profiles in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "tavern").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgschema.ValidIdent(schema) {
			return remote.Invalid("profile.WithSchema", "invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: pgschema.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, remote.Invalid("profile.NewPostgresStore", "nil pool")
	}
	return st, nil
}

const profileColumns = `id, auth_user_id, COALESCE(username, ''), created_at, updated_at`

func (s *PostgresStore) GetByAuthID(ctx context.Context, authUserID string) (Profile, error) {
	const op = "profile.GetByAuthID"

	authUserID = strings.TrimSpace(authUserID)
	if authUserID == "" {
		return Profile{}, remote.Invalid(op, "auth user id is required")
	}
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	profiles := pgschema.Ident(s.schema, "profiles")

	var p Profile
	err := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM `+profiles+` WHERE auth_user_id = $1`,
		authUserID,
	).Scan(&p.ID, &p.AuthUserID, &p.Username, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, notFound(op)
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Profile, error) {
	const op = "profile.Create"

	authUserID := strings.TrimSpace(in.AuthUserID)
	if authUserID == "" {
		return Profile{}, remote.Invalid(op, "auth user id is required")
	}
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	username, usernameNorm, err := usernameColumns(in.Username)
	if err != nil {
		return Profile{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Profile{}, err
	}

	profiles := pgschema.Ident(s.schema, "profiles")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+profiles+` (id, auth_user_id, username, username_norm, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		id, authUserID, username, usernameNorm, now,
	)
	if err != nil {
		if field, ok := classifyUniqueViolation(err); ok {
			return Profile{}, ConflictError{Op: op, Field: field}
		}
		return Profile{}, err
	}

	out := Profile{ID: id, AuthUserID: authUserID, CreatedAt: now, UpdatedAt: now}
	if username != nil {
		out.Username = *username
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, authUserID string, in UpdateInput) (Profile, error) {
	const op = "profile.Update"

	authUserID = strings.TrimSpace(authUserID)
	if authUserID == "" {
		return Profile{}, remote.Invalid(op, "auth user id is required")
	}
	if in.Username == nil {
		return s.GetByAuthID(ctx, authUserID)
	}
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	username, usernameNorm, err := usernameColumns(*in.Username)
	if err != nil {
		return Profile{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	profiles := pgschema.Ident(s.schema, "profiles")

	var p Profile
	err = s.pool.QueryRow(ctx,
		`UPDATE `+profiles+`
		    SET username = $1, username_norm = $2, updated_at = $3
		  WHERE auth_user_id = $4
		RETURNING `+profileColumns,
		username, usernameNorm, now, authUserID,
	).Scan(&p.ID, &p.AuthUserID, &p.Username, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, notFound(op)
	}
	if err != nil {
		if field, ok := classifyUniqueViolation(err); ok {
			return Profile{}, ConflictError{Op: op, Field: field}
		}
		return Profile{}, err
	}
	return p, nil
}

// usernameColumns validates raw and returns the (username, username_norm)
// column values; both nil for an empty username.
func usernameColumns(raw string) (*string, *string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil, nil
	}
	u, err := ValidateUsername(raw)
	if err != nil {
		return nil, nil, err
	}
	n := NormalizeUsername(u)
	return &u, &n, nil
}

func classifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}

	switch c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)); {
	case c == "uq_profiles_username_norm", strings.Contains(c, "username"):
		return "username", true
	case c == "uq_profiles_auth_user_id", strings.Contains(c, "auth_user"):
		return "auth_user_id", true
	default:
		return "unique", true
	}
}
