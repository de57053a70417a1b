package storage

import (
	"fmt"
	"strings"
)

// GetTagsByTexts returns the user's tags whose text is in the given set.
// Matching is exact and case-sensitive.
func (s *Storage) GetTagsByTexts(userID string, texts []string) ([]*Tag, error) {
	if len(texts) == 0 {
		return []*Tag{}, nil
	}

	placeholders := make([]string, len(texts))
	args := make([]interface{}, 0, len(texts)+1)
	args = append(args, userID)
	for i, text := range texts {
		placeholders[i] = "?"
		args = append(args, text)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, text
		FROM tags
		WHERE user_id = ? AND text IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Text); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, &tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tags, nil
}

// CreateTags bulk-inserts new tags for a user, one transaction covering the
// whole batch, and returns the created rows. The unique index on
// (user_id, text) rejects the batch when a concurrent run already created
// one of the texts; callers recover by re-querying.
func (s *Storage) CreateTags(userID string, texts []string) ([]*Tag, error) {
	if len(texts) == 0 {
		return []*Tag{}, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO tags (user_id, text) VALUES (?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare tag insert: %w", err)
	}
	defer stmt.Close()

	tags := make([]*Tag, 0, len(texts))
	for _, text := range texts {
		result, err := stmt.Exec(userID, text)
		if err != nil {
			return nil, fmt.Errorf("failed to insert tag %q: %w", text, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get tag id: %w", err)
		}
		tags = append(tags, &Tag{ID: id, UserID: userID, Text: text})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return tags, nil
}

// ListTagTexts returns every tag text in a user's vocabulary
func (s *Storage) ListTagTexts(userID string) ([]string, error) {
	rows, err := s.db.Query("SELECT text FROM tags WHERE user_id = ? ORDER BY text", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag texts: %w", err)
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

// AddUserLinkTags bulk-inserts join rows pairing a user link with tag IDs.
// Callers pass tag IDs that are unique within the batch; the composite
// primary key rejects anything else.
func (s *Storage) AddUserLinkTags(userLinkID string, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO user_link_tags (user_link_id, tag_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare user link tag insert: %w", err)
	}
	defer stmt.Close()

	for _, tagID := range tagIDs {
		if _, err := stmt.Exec(userLinkID, tagID); err != nil {
			return fmt.Errorf("failed to insert user link tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SearchByTags returns IDs of the user's saved links carrying any of the
// given tag texts, with optional fuzzy matching
func (s *Storage) SearchByTags(userID string, searchTexts []string, fuzzy bool) ([]string, error) {
	if len(searchTexts) == 0 {
		return []string{}, nil
	}

	var conditions []string
	args := []interface{}{userID}

	for _, text := range searchTexts {
		if fuzzy {
			conditions = append(conditions, "t.text LIKE ?")
			args = append(args, "%"+text+"%")
		} else {
			conditions = append(conditions, "t.text = ?")
			args = append(args, text)
		}
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT ult.user_link_id
		FROM user_link_tags ult
		JOIN tags t ON t.id = ult.tag_id
		WHERE t.user_id = ? AND (%s)
		ORDER BY ult.user_link_id
	`, strings.Join(conditions, " OR "))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search tags: %w", err)
	}
	defer rows.Close()

	var userLinkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user link ID: %w", err)
		}
		userLinkIDs = append(userLinkIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return userLinkIDs, nil
}
