package storage

import (
	"database/sql"
	"fmt"
	"time"

	"swipechat/errs"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = fmt.Errorf("storage: %w", errs.ErrNotFound)
)

// Session is the SQLite representation of the signed-in user.
type Session struct {
	UserID      string
	Name        string
	Email       string
	AccessToken string
	ExpiresAt   *int64
	SavedAt     int64
}

// Expired reports whether the token expiry has passed at now (unix millis).
func (s Session) Expired(now int64) bool {
	return s.ExpiresAt != nil && *s.ExpiresAt <= now
}

// SeenReceipt records that the local user acknowledged a message.
type SeenReceipt struct {
	MessageID      string
	ConversationID string
	SeenAt         int64
}

// Draft keeps the text of a message whose dispatch failed.
type Draft struct {
	DraftID        string
	ConversationID string
	Content        string
	Failure        string
	CreatedAt      int64
}

type scanner interface {
	Scan(dest ...any) error
}

func nullInt64(ptr *int64) sql.NullInt64 {
	if ptr == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ptr, Valid: true}
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
