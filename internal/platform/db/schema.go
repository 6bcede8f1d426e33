package db

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidSchemaName reports whether name is a plain lower-case identifier.
func ValidSchemaName(name string) bool {
	return schemaNamePattern.MatchString(name)
}

// CreateSchema creates schema if needed and applies every migration from src
// to it. A nil src only creates the schema.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool, schema string, src fs.FS) error {
	if !ValidSchemaName(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteSchema(schema))); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if src != nil {
		if _, err := NewMigrator(pool, src).Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}
	return nil
}

// DropSchema removes schema and everything in it.
func DropSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if !ValidSchemaName(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	_, err := pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", quoteSchema(schema)))
	return err
}
