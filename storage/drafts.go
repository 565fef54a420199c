package storage

import (
	"errors"
	"fmt"
)

// SaveDraft inserts or replaces a failed-send draft.
func (s *Store) SaveDraft(draft Draft) error {
	if draft.DraftID == "" {
		return errors.New("draft_id is required")
	}
	if draft.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	if draft.Content == "" {
		return errors.New("content is required")
	}
	if draft.CreatedAt == 0 {
		draft.CreatedAt = nowUnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO drafts (
			draft_id,
			conversation_id,
			content,
			failure,
			created_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(draft_id) DO UPDATE SET
			content = excluded.content,
			failure = excluded.failure`,
		draft.DraftID,
		draft.ConversationID,
		draft.Content,
		draft.Failure,
		draft.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert draft %q: %w", draft.DraftID, err)
	}

	return nil
}

// ListDrafts returns drafts ordered newest first. An empty conversationID
// lists drafts of every conversation.
func (s *Store) ListDrafts(conversationID string) ([]Draft, error) {
	query := `SELECT
			draft_id,
			conversation_id,
			content,
			failure,
			created_at
		FROM drafts`
	args := []any{}
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_at DESC, draft_id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	drafts := make([]Draft, 0)
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft row: %w", err)
		}
		drafts = append(drafts, *draft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draft rows: %w", err)
	}

	return drafts, nil
}

// GetDraft fetches one draft by ID.
func (s *Store) GetDraft(draftID string) (*Draft, error) {
	row := s.db.QueryRow(
		`SELECT
			draft_id,
			conversation_id,
			content,
			failure,
			created_at
		FROM drafts
		WHERE draft_id = ?`,
		draftID,
	)

	draft, err := scanDraft(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get draft %q: %w", draftID, err)
	}

	return draft, nil
}

// DeleteDraft removes one draft.
func (s *Store) DeleteDraft(draftID string) error {
	res, err := s.db.Exec(`DELETE FROM drafts WHERE draft_id = ?`, draftID)
	if err != nil {
		return fmt.Errorf("delete draft %q: %w", draftID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for draft delete: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanDraft(row scanner) (*Draft, error) {
	var draft Draft
	if err := row.Scan(
		&draft.DraftID,
		&draft.ConversationID,
		&draft.Content,
		&draft.Failure,
		&draft.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &draft, nil
}
