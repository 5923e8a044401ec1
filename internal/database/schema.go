package database

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// InitSchema applies the schema on a fresh database. It checks whether the
// evaluation.employee_evaluation table exists as a proxy for whether the
// schema has been loaded. If present, it's a no-op.
func (db *DB) InitSchema(ctx context.Context) error {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'evaluation' AND tablename = 'employee_evaluation')`,
	).Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		db.log.Debug().Msg("schema already initialized, applying migrations")
		return db.migrate(ctx)
	}

	db.log.Info().Msg("fresh database detected, applying schema")
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	db.log.Info().Msg("schema applied successfully")
	return nil
}

// migrate applies additive changes to an existing schema. Every statement
// must be idempotent.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx,
		`ALTER TABLE evaluation.employee_evaluation_reports ADD COLUMN IF NOT EXISTS recording_key text`,
	)
	return err
}
