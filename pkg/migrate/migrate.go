package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stackgate/admind/pkg/observability"
)

// Migration is one versioned schema change. Versions are applied in
// order and recorded in schema_migrations; a version runs at most once.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// All returns the schema migrations in order.
func All() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					domain TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'enabled',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (domain, name)
				);

				CREATE INDEX idx_roles_domain ON roles(domain);
			`,
		},
		{
			Version:     2,
			Description: "Create casbin_rules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS casbin_rules (
					id BIGSERIAL PRIMARY KEY,
					ptype VARCHAR(16) NOT NULL,
					v0 VARCHAR(255) NOT NULL DEFAULT '',
					v1 VARCHAR(255) NOT NULL DEFAULT '',
					v2 VARCHAR(255) NOT NULL DEFAULT '',
					v3 VARCHAR(255) NOT NULL DEFAULT '',
					v4 VARCHAR(255) NOT NULL DEFAULT '',
					v5 VARCHAR(255) NOT NULL DEFAULT ''
				);

				CREATE INDEX idx_casbin_rules_ptype ON casbin_rules(ptype);
				CREATE INDEX idx_casbin_rules_v0 ON casbin_rules(v0);
				CREATE UNIQUE INDEX idx_casbin_rules_tuple ON casbin_rules(ptype, v0, v1, v2, v3, v4, v5);
			`,
		},
		{
			Version:     3,
			Description: "Create menus and role_menus tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS menus (
					id TEXT PRIMARY KEY,
					domain TEXT NOT NULL,
					parent_id TEXT REFERENCES menus(id) ON DELETE SET NULL,
					name TEXT NOT NULL,
					path TEXT NOT NULL,
					component TEXT NOT NULL DEFAULT '',
					title TEXT NOT NULL DEFAULT '',
					icon TEXT NOT NULL DEFAULT '',
					sort_order INTEGER NOT NULL DEFAULT 0,
					hidden BOOLEAN NOT NULL DEFAULT FALSE,
					status TEXT NOT NULL DEFAULT 'enabled',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_menus_domain ON menus(domain);
				CREATE INDEX idx_menus_parent_id ON menus(parent_id);

				CREATE TABLE IF NOT EXISTS role_menus (
					role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					menu_id TEXT NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, menu_id)
				);

				CREATE INDEX idx_role_menus_menu_id ON role_menus(menu_id);
			`,
		},
		{
			Version:     4,
			Description: "Create scheduled_jobs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS scheduled_jobs (
					id TEXT PRIMARY KEY,
					domain TEXT NOT NULL,
					name TEXT NOT NULL,
					handler_name TEXT NOT NULL,
					cron_expression TEXT NOT NULL,
					timezone TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'enabled',
					payload TEXT NOT NULL DEFAULT '',
					retry_attempts INTEGER NOT NULL DEFAULT 0,
					retry_delay_ms BIGINT NOT NULL DEFAULT 0,
					timeout_ms BIGINT NOT NULL DEFAULT 0,
					priority INTEGER NOT NULL DEFAULT 0,
					total_runs BIGINT NOT NULL DEFAULT 0,
					success_runs BIGINT NOT NULL DEFAULT 0,
					failed_runs BIGINT NOT NULL DEFAULT 0,
					last_run_at TIMESTAMP,
					last_run_status TEXT,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE (domain, name)
				);

				CREATE INDEX idx_scheduled_jobs_domain ON scheduled_jobs(domain);
				CREATE INDEX idx_scheduled_jobs_status ON scheduled_jobs(status);
			`,
		},
		{
			Version:     5,
			Description: "Create job_execution_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS job_execution_logs (
					id TEXT PRIMARY KEY,
					job_id TEXT NOT NULL REFERENCES scheduled_jobs(id) ON DELETE CASCADE,
					run_id TEXT NOT NULL UNIQUE,
					status TEXT NOT NULL,
					data TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_job_execution_logs_job_id ON job_execution_logs(job_id);
				CREATE INDEX idx_job_execution_logs_created_at ON job_execution_logs(created_at);
			`,
		},
	}
}

// Run applies the pending migrations in one pass. Each migration runs
// in its own transaction together with its tracking row.
func Run(ctx context.Context, db *sql.DB, migrations []Migration, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		if logger != nil {
			logger.WithFields(map[string]interface{}{
				"version":     migration.Version,
				"description": migration.Description,
			}).Info("migration applied")
		}
	}

	return nil
}
