package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// SaveSession stores the signed-in user, replacing any previous session.
func (s *Store) SaveSession(session Session) error {
	if session.UserID == "" {
		return errors.New("user_id is required")
	}
	if session.AccessToken == "" {
		return errors.New("access_token is required")
	}
	if session.SavedAt == 0 {
		session.SavedAt = nowUnixMilli()
	}

	token := session.AccessToken
	if s.tokens != nil {
		sealed, err := s.tokens.Seal(token, session.UserID)
		if err != nil {
			return fmt.Errorf("seal access token: %w", err)
		}
		token = sealed
	}

	_, err := s.db.Exec(
		`INSERT INTO session (
			id,
			user_id,
			name,
			email,
			access_token,
			expires_at,
			saved_at
		) VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			email = excluded.email,
			access_token = excluded.access_token,
			expires_at = excluded.expires_at,
			saved_at = excluded.saved_at`,
		session.UserID,
		session.Name,
		session.Email,
		token,
		nullInt64(session.ExpiresAt),
		session.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("save session for user %q: %w", session.UserID, err)
	}

	return nil
}

// LoadSession returns the stored session or ErrNotFound.
func (s *Store) LoadSession() (*Session, error) {
	row := s.db.QueryRow(
		`SELECT
			user_id,
			name,
			email,
			access_token,
			expires_at,
			saved_at
		FROM session
		WHERE id = 1`,
	)

	session, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if s.tokens != nil {
		token, err := s.tokens.Open(session.AccessToken, session.UserID)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		session.AccessToken = token
	}

	return session, nil
}

// ClearSession removes the stored session. Clearing an empty store is not an error.
func (s *Store) ClearSession() error {
	if _, err := s.db.Exec(`DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func scanSession(row scanner) (*Session, error) {
	var (
		session   Session
		expiresAt sql.NullInt64
	)

	if err := row.Scan(
		&session.UserID,
		&session.Name,
		&session.Email,
		&session.AccessToken,
		&expiresAt,
		&session.SavedAt,
	); err != nil {
		return nil, err
	}

	session.ExpiresAt = int64Ptr(expiresAt)
	return &session, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
