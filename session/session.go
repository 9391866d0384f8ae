// Package session maps opaque session tokens to GitHub OAuth credentials and
// the user snapshot captured at login. The frontend only ever holds the
// session token, never the raw access token.
//
// Sessions never expire and tokens never rotate; a session disappears only
// when the client explicitly clears it. With the in-memory store, restarting
// the process drops every session.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Credentials is the OAuth exchange result folded into a session.
type Credentials struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Session struct {
	Credentials
	User      json.RawMessage `json:"user"`
	CreatedAt time.Time       `json:"created_at"`
}

// Token returns the credentials in the form the oauth2 transport expects.
func (s Session) Token() *oauth2.Token {
	return &oauth2.Token{AccessToken: s.AccessToken, TokenType: s.TokenType}
}

// Store persists sessions keyed by token. An unknown token is reported
// through found=false, not through an error; callers decide that it means
// "unauthenticated".
type Store interface {
	Create(ctx context.Context, creds Credentials, user json.RawMessage) (string, error)
	Get(ctx context.Context, token string) (Session, bool, error)
	Delete(ctx context.Context, token string) (bool, error)
}

const tokenBytes = 32

// NewToken returns 32 random bytes as unpadded base64url. No collision check
// is made against existing sessions.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
