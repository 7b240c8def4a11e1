package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func schemaVersion(ctx context.Context, conn *sqlx.DB) (int, error) {
	var version int
	if err := conn.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate applies every migration newer than the stored user_version, in
// order, and returns the versions it applied.
func migrate(ctx context.Context, conn *sqlx.DB) ([]int, error) {
	current, err := schemaVersion(ctx, conn)
	if err != nil {
		return nil, err
	}
	if current >= latestVersion() {
		return nil, nil
	}

	var applied []int
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, conn, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, conn *sqlx.DB, m Migration) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx.Tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// modernc/sqlite only persists user_version outside a transaction. The
	// DDL is idempotent, so a crash before this line re-runs the migration.
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
