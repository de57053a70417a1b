package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS links (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				title TEXT,
				favicon TEXT,
				thumbnail TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- One canonical link per URL; concurrent resolvers recover from
			-- the conflict by re-selecting.
			CREATE UNIQUE INDEX IF NOT EXISTS idx_links_url ON links(url);

			CREATE TABLE IF NOT EXISTS user_links (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				link_id TEXT NOT NULL,
				content TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (link_id) REFERENCES links(id)
			);

			CREATE INDEX IF NOT EXISTS idx_user_links_user_id ON user_links(user_id);
			CREATE INDEX IF NOT EXISTS idx_user_links_link_id ON user_links(link_id);
			CREATE INDEX IF NOT EXISTS idx_user_links_created_at ON user_links(created_at DESC);

			CREATE TABLE IF NOT EXISTS tags (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				text TEXT NOT NULL
			);

			-- Tag vocabulary is per-user; text matching is exact and
			-- case-sensitive.
			CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_user_text ON tags(user_id, text);

			CREATE TABLE IF NOT EXISTS user_link_tags (
				user_link_id TEXT NOT NULL,
				tag_id INTEGER NOT NULL,
				PRIMARY KEY (user_link_id, tag_id),
				FOREIGN KEY (user_link_id) REFERENCES user_links(id) ON DELETE CASCADE,
				FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_user_link_tags_tag_id ON user_link_tags(tag_id);
		`,
	},
	{
		Version: 2,
		Name:    "add_link_slug",
		SQL: `
			-- Slug derived from the enriched title for friendly URLs
			ALTER TABLE links ADD COLUMN slug TEXT;

			CREATE INDEX IF NOT EXISTS idx_links_slug ON links(slug) WHERE slug IS NOT NULL;
		`,
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(db *sql.DB) error {
	// Create schema_version table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Apply pending migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		log.Printf("Applying migration %d: %s", migration.Version, migration.Name)
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		// Execute migration SQL
		_, err = tx.Exec(migration.SQL)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		// Record migration
		_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
