package membership

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tavern/cmd/internal/pgschema"
)

// PostgresStore keeps memberships in <schema>.world_members, whose
// (world_id, user_id) unique constraint arbitrates concurrent joins.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	now    func() time.Time
}

type StoreOption func(*PostgresStore) error

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

// WithClock sets the source of joined_at.
func WithClock(now func() time.Time) StoreOption {
	return func(s *PostgresStore) error {
		if now == nil {
			return ErrInvalidInput
		}
		s.now = now
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, ErrInvalidInput
	}
	st := &PostgresStore{pool: pool, schema: pgschema.DefaultSchema, now: time.Now}
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

func (s *PostgresStore) table() string { return pgschema.Ident(s.schema, "world_members") }

func (s *PostgresStore) IsMember(ctx context.Context, worldID, userID string) (bool, error) {
	worldID, userID = strings.TrimSpace(worldID), strings.TrimSpace(userID)
	if worldID == "" || userID == "" {
		return false, nil
	}
	var found bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table()+` WHERE world_id = $1 AND user_id = $2)`,
		worldID, userID).Scan(&found)
	return found, err
}

// AddMember inserts (world, user, role). A row that already exists is left
// untouched and reported as ErrAlreadyMember.
func (s *PostgresStore) AddMember(ctx context.Context, worldID, userID string, role Role) (Membership, error) {
	worldID, userID = strings.TrimSpace(worldID), strings.TrimSpace(userID)
	if worldID == "" || userID == "" || !role.Valid() {
		return Membership{}, ErrInvalidInput
	}

	m := Membership{WorldID: worldID, UserID: userID, Role: role}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table()+` (world_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (world_id, user_id) DO NOTHING
		 RETURNING joined_at`,
		worldID, userID, string(role), s.now().UTC()).Scan(&m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Membership{}, ErrAlreadyMember
	}
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}
