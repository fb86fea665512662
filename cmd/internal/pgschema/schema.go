// Package pgschema holds the DDL for the remote tables the engine reads and
// writes. Production schemas are managed out of band; this is applied by
// `tavern migrate` for local stacks and by the integration tests.
package pgschema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the schema every Postgres store uses unless overridden.
const DefaultSchema = "tavern"

// DDL returns the idempotent schema script for schema.
func DDL(schema string) string {
	profiles := Ident(schema, "profiles")
	invites := Ident(schema, "world_invites")
	members := Ident(schema, "world_members")

	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  auth_user_id TEXT NOT NULL,
  username TEXT NULL,
  username_norm TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_profiles_auth_user_id UNIQUE (auth_user_id),
  CONSTRAINT uq_profiles_username_norm UNIQUE (username_norm),
  CONSTRAINT chk_profiles_id_ulid_len CHECK (char_length(id) = 26)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  world_id TEXT NOT NULL,
  token_hash TEXT NOT NULL,
  created_by TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL,
  revoked_at TIMESTAMPTZ NULL,
  CONSTRAINT uq_world_invites_token_hash UNIQUE (token_hash),
  CONSTRAINT chk_world_invites_token_hash_len CHECK (char_length(token_hash) = 64)
);

CREATE INDEX IF NOT EXISTS ix_world_invites_world_id ON %s (world_id);

CREATE TABLE IF NOT EXISTS %s (
  world_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'player',
  joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_world_members_world_user UNIQUE (world_id, user_id),
  CONSTRAINT chk_world_members_role CHECK (role IN ('owner', 'dm', 'player'))
);
`, pgx.Identifier{schema}.Sanitize(), profiles, invites, invites, members)
}

// Apply runs DDL against pool.
func Apply(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = DefaultSchema
	}
	if _, err := pool.Exec(ctx, DDL(schema)); err != nil {
		return fmt.Errorf("apply schema %q: %w", schema, err)
	}
	return nil
}

// Ident returns the sanitized, schema-qualified table name.
func Ident(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// ValidIdent reports whether s is a plain lower-case Postgres identifier.
func ValidIdent(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
