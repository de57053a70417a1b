package storage

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// Link is the canonical record for a distinct URL, shared across all users
// who save it. Descriptive fields are populated by enrichment.
type Link struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     *string   `json:"title,omitempty"`
	Favicon   *string   `json:"favicon,omitempty"`
	Thumbnail *string   `json:"thumbnail,omitempty"`
	Slug      *string   `json:"slug,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserLink is one user's saved instance of a Link. The same user may save
// the same link more than once; each save gets its own row.
type UserLink struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	LinkID    string    `json:"link_id"`
	Content   *string   `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag is a user-scoped text label. Tag vocabulary is per-user, not global.
type Tag struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// New creates a new Storage instance and runs migrations
func New(databasePath string) (*Storage, error) {
	log.Printf("Opening database at: %s", databasePath)
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// isUniqueConstraintErr reports whether an error came from a violated
// uniqueness constraint. The sqlite driver does not export a typed error
// for this, so match on the message.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
