package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken indicates an access token that is not a parseable JWT.
var ErrMalformedToken = errors.New("network: malformed access token")

// TokenClaims are the claims the client reads from its access token. The
// client cannot verify the signature; it only uses them for expiry and
// identity hints.
type TokenClaims struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the user id from "id", falling back to "sub".
func (c *TokenClaims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Expiry returns the token expiry, or the zero time when absent.
func (c *TokenClaims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ParseTokenClaims decodes the claims of an access token without verifying it.
func ParseTokenClaims(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// AccessToken decodes the login response token, which the API sends either
// as a bare string or as {"accessToken": "..."}.
type AccessToken string

// UnmarshalJSON accepts both token shapes.
func (t *AccessToken) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*t = AccessToken(raw)
		return nil
	}

	var obj struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode access token: %w", err)
	}
	*t = AccessToken(obj.AccessToken)
	return nil
}
