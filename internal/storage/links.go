package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// GetLink retrieves a link by ID
func (s *Storage) GetLink(id string) (*Link, error) {
	return s.queryLink("SELECT id, url, title, favicon, thumbnail, slug, created_at FROM links WHERE id = ?", id)
}

// GetLinkByURL retrieves a link by exact URL
func (s *Storage) GetLinkByURL(url string) (*Link, error) {
	return s.queryLink("SELECT id, url, title, favicon, thumbnail, slug, created_at FROM links WHERE url = ?", url)
}

func (s *Storage) queryLink(query string, arg string) (*Link, error) {
	var link Link
	err := s.db.QueryRow(query, arg).Scan(
		&link.ID, &link.URL, &link.Title, &link.Favicon, &link.Thumbnail, &link.Slug, &link.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("link not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query link: %w", err)
	}
	return &link, nil
}

// GetOrCreateLink looks up a link by exact URL, creating a bare row with
// only the URL populated when none exists. An existing link is returned
// unchanged; no re-fetch or re-validation happens here. The unique index on
// links.url means a concurrent creator wins the insert; the loser recovers
// by re-selecting the committed row.
func (s *Storage) GetOrCreateLink(url string) (*Link, error) {
	link, err := s.GetLinkByURL(url)
	if err == nil {
		return link, nil
	}
	if err.Error() != "link not found" {
		return nil, err
	}

	id := uuid.New().String()
	_, err = s.db.Exec("INSERT INTO links (id, url) VALUES (?, ?)", id, url)
	if err != nil {
		if isUniqueConstraintErr(err) {
			// Lost the race to a concurrent save of the same URL
			return s.GetLinkByURL(url)
		}
		return nil, fmt.Errorf("failed to insert link: %w", err)
	}

	return s.GetLinkByURL(url)
}

// UpdateLinkMetadata overwrites the descriptive fields of the link with the
// given URL. This is a full overwrite, not a merge: a nil field clears the
// stored value rather than leaving stale data behind. Scoped by URL because
// concurrent saves of the same URL all reference the one canonical row.
func (s *Storage) UpdateLinkMetadata(url string, title, favicon, thumbnail, slug *string) error {
	result, err := s.db.Exec(`
		UPDATE links
		SET title = ?, favicon = ?, thumbnail = ?, slug = ?
		WHERE url = ?
	`, title, favicon, thumbnail, slug, url)
	if err != nil {
		return fmt.Errorf("failed to update link metadata: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("link not found")
	}

	return nil
}
