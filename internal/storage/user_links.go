package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SavedLink is a user link joined with its canonical link and tag texts,
// the shape the read API serves.
type SavedLink struct {
	UserLink
	URL       string   `json:"url"`
	Title     *string  `json:"title,omitempty"`
	Favicon   *string  `json:"favicon,omitempty"`
	Thumbnail *string  `json:"thumbnail,omitempty"`
	Slug      *string  `json:"slug,omitempty"`
	Tags      []string `json:"tags"`
}

// CreateUserLink inserts a new user link row unconditionally and returns it.
// There is deliberately no existence check: saving the same link twice is
// two saves, each with its own row. The generated ID is what the enrichment
// pipeline uses to attach content and tags.
func (s *Storage) CreateUserLink(userID, linkID string) (*UserLink, error) {
	ul := &UserLink{
		ID:        uuid.New().String(),
		UserID:    userID,
		LinkID:    linkID,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO user_links (id, user_id, link_id, created_at)
		VALUES (?, ?, ?, ?)
	`, ul.ID, ul.UserID, ul.LinkID, ul.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user link: %w", err)
	}

	return ul, nil
}

// GetUserLink retrieves a user link by ID
func (s *Storage) GetUserLink(id string) (*UserLink, error) {
	var ul UserLink
	err := s.db.QueryRow(`
		SELECT id, user_id, link_id, content, created_at
		FROM user_links
		WHERE id = ?
	`, id).Scan(&ul.ID, &ul.UserID, &ul.LinkID, &ul.Content, &ul.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user link not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user link: %w", err)
	}
	return &ul, nil
}

// UpdateUserLinkContent sets the content snapshot on a user link
func (s *Storage) UpdateUserLinkContent(userLinkID, content string) error {
	result, err := s.db.Exec("UPDATE user_links SET content = ? WHERE id = ?", content, userLinkID)
	if err != nil {
		return fmt.Errorf("failed to update user link content: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user link not found")
	}

	return nil
}

// GetSavedLink retrieves a user link joined with its link and tags
func (s *Storage) GetSavedLink(id string) (*SavedLink, error) {
	var sl SavedLink
	err := s.db.QueryRow(`
		SELECT ul.id, ul.user_id, ul.link_id, ul.content, ul.created_at,
		       l.url, l.title, l.favicon, l.thumbnail, l.slug
		FROM user_links ul
		JOIN links l ON l.id = ul.link_id
		WHERE ul.id = ?
	`, id).Scan(&sl.ID, &sl.UserID, &sl.LinkID, &sl.Content, &sl.CreatedAt,
		&sl.URL, &sl.Title, &sl.Favicon, &sl.Thumbnail, &sl.Slug)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user link not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query saved link: %w", err)
	}

	tags, err := s.listUserLinkTagTexts(sl.ID)
	if err != nil {
		return nil, err
	}
	sl.Tags = tags

	return &sl, nil
}

// ListSavedLinks returns a user's saved links, most recent first
func (s *Storage) ListSavedLinks(userID string, limit, offset int) ([]*SavedLink, error) {
	rows, err := s.db.Query(`
		SELECT ul.id, ul.user_id, ul.link_id, ul.content, ul.created_at,
		       l.url, l.title, l.favicon, l.thumbnail, l.slug
		FROM user_links ul
		JOIN links l ON l.id = ul.link_id
		WHERE ul.user_id = ?
		ORDER BY ul.created_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved links: %w", err)
	}
	defer rows.Close()

	var saved []*SavedLink
	for rows.Next() {
		var sl SavedLink
		err := rows.Scan(&sl.ID, &sl.UserID, &sl.LinkID, &sl.Content, &sl.CreatedAt,
			&sl.URL, &sl.Title, &sl.Favicon, &sl.Thumbnail, &sl.Slug)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved link: %w", err)
		}
		saved = append(saved, &sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	for _, sl := range saved {
		tags, err := s.listUserLinkTagTexts(sl.ID)
		if err != nil {
			return nil, err
		}
		sl.Tags = tags
	}

	return saved, nil
}

func (s *Storage) listUserLinkTagTexts(userLinkID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT t.text
		FROM user_link_tags ult
		JOIN tags t ON t.id = ult.tag_id
		WHERE ult.user_link_id = ?
		ORDER BY t.text
	`, userLinkID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user link tags: %w", err)
	}
	defer rows.Close()

	texts := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan tag text: %w", err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return texts, nil
}
