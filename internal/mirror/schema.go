package mirror

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaDDL string

// currentSchemaVersion is bumped whenever migrations are appended below.
const currentSchemaVersion = 1

// migration is one forward step, identified by the version it upgrades to.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// migrations are applied in order starting from the store's recorded
// schema_version. There is only the bootstrap step today; future column
// additions append here rather than probing live table shape.
var migrations = []migration{
	{
		version: 1,
		apply: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, schemaDDL)
			return err
		},
	},
}

// migrate brings the schema up to currentSchemaVersion. When reset is true
// and an existing mirror_records table predates the current version, it is
// dropped and recreated; otherwise migrations are additive only.
func migrate(ctx context.Context, db *sql.DB, reset bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			_ = rbErr
		}
	}()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS technisync_meta (schema_version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create technisync_meta: %w", err)
	}

	version := 0
	row := tx.QueryRowContext(ctx, `SELECT schema_version FROM technisync_meta LIMIT 1`)
	if err := row.Scan(&version); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read schema_version: %w", err)
	}

	if reset && version > 0 && version < currentSchemaVersion {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS mirror_records`); err != nil {
			return fmt.Errorf("drop mirror_records for reset: %w", err)
		}
		version = 0
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := m.apply(ctx, tx); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		version = m.version
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM technisync_meta`); err != nil {
		return fmt.Errorf("clear technisync_meta: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO technisync_meta (schema_version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("write schema_version: %w", err)
	}

	return tx.Commit()
}
