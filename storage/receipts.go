package storage

import (
	"errors"
	"fmt"
)

// InsertSeenReceipt records that the local user marked a message as seen.
func (s *Store) InsertSeenReceipt(conversationID, messageID string, seenAt int64) error {
	if messageID == "" {
		return errors.New("message_id is required")
	}
	if conversationID == "" {
		return errors.New("conversation_id is required")
	}
	if seenAt == 0 {
		seenAt = nowUnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO seen_receipts (message_id, conversation_id, seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET seen_at = excluded.seen_at`,
		messageID,
		conversationID,
		seenAt,
	)
	if err != nil {
		return fmt.Errorf("insert seen receipt %q: %w", messageID, err)
	}

	return nil
}

// HasSeenReceipt returns true if the message was already marked seen.
func (s *Store) HasSeenReceipt(messageID string) (bool, error) {
	if messageID == "" {
		return false, errors.New("message_id is required")
	}

	var exists int
	if err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM seen_receipts WHERE message_id = ?)`,
		messageID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check seen receipt %q: %w", messageID, err)
	}

	return exists == 1, nil
}

// ListSeenReceipts returns the receipts of one conversation, newest first.
func (s *Store) ListSeenReceipts(conversationID string) ([]SeenReceipt, error) {
	if conversationID == "" {
		return nil, errors.New("conversation_id is required")
	}

	rows, err := s.db.Query(
		`SELECT message_id, conversation_id, seen_at
		FROM seen_receipts
		WHERE conversation_id = ?
		ORDER BY seen_at DESC, message_id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list seen receipts for %q: %w", conversationID, err)
	}
	defer rows.Close()

	receipts := make([]SeenReceipt, 0)
	for rows.Next() {
		var r SeenReceipt
		if err := rows.Scan(&r.MessageID, &r.ConversationID, &r.SeenAt); err != nil {
			return nil, fmt.Errorf("scan seen receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen receipt rows: %w", err)
	}

	return receipts, nil
}

// PruneSeenReceipts removes receipts older than cutoff timestamp.
func (s *Store) PruneSeenReceipts(cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := s.db.Exec(`DELETE FROM seen_receipts WHERE seen_at < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune seen receipts: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for seen receipt prune: %w", err)
	}

	return rowsAffected, nil
}
