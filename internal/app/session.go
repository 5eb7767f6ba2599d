package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"teamflow/api/internal/auth"
	"teamflow/api/internal/session"
	"teamflow/api/internal/store"
)

// Session is the authenticated caller attached to a request.
type Session struct {
	UserID   int64
	UserName string
}

// TokenPair is an issued access/refresh token set.
type TokenPair struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
}

// SessionManager issues short-lived access tokens and keeps refresh
// tokens in Redis, stored by hash so a dump never leaks usable tokens.
type SessionManager struct {
	secret     []byte
	ttl        time.Duration
	refreshTTL time.Duration
	sessions   *session.RedisStore
}

func NewSessionManager(secret string, ttl, refreshTTL time.Duration, sessions *session.RedisStore) *SessionManager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &SessionManager{
		secret:     []byte(secret),
		ttl:        ttl,
		refreshTTL: refreshTTL,
		sessions:   sessions,
	}
}

// Create issues a token pair for a signed-in user.
func (m *SessionManager) Create(ctx context.Context, user store.User) (TokenPair, error) {
	expiresAt := time.Now().Add(m.ttl)
	token, err := auth.IssueToken(m.secret, auth.Claims{
		UserID: user.ID,
		Name:   user.Name,
		JTI:    randomToken(8),
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue token: %w", err)
	}

	refreshToken := randomToken(32)
	refreshExpiry := time.Now().Add(m.refreshTTL)
	if err := m.sessions.Save(ctx, auth.HashToken(refreshToken), user.ID, user.Name, refreshExpiry); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// FromToken validates an access token and returns its session.
func (m *SessionManager) FromToken(token string) (Session, error) {
	claims, err := auth.ParseToken(m.secret, token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.UserID, UserName: claims.Name}, nil
}

// Refresh rotates a refresh token and issues a new pair.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, Session, error) {
	hash := auth.HashToken(refreshToken)
	data, err := m.sessions.Lookup(ctx, hash)
	if err != nil {
		return TokenPair{}, Session{}, err
	}
	if err := m.sessions.Revoke(ctx, hash); err != nil {
		return TokenPair{}, Session{}, err
	}

	user := store.User{ID: data.UserID, Name: data.Name}
	pair, err := m.Create(ctx, user)
	if err != nil {
		return TokenPair{}, Session{}, err
	}
	return pair, Session{UserID: data.UserID, UserName: data.Name}, nil
}

// Logout revokes a refresh token.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return m.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

func randomToken(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
