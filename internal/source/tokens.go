package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// refreshBuffer is how long before expiry a token is refreshed.
const refreshBuffer = 5 * time.Minute

// Tokens holds one OAuth token pair for the report source.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ObtainedAt   int64  `json:"obtained_at"`
}

// Expired reports whether the access token is past, or within the refresh
// buffer of, its expiry.
func (t Tokens) Expired(now time.Time) bool {
	expiresAt := time.Unix(t.ObtainedAt+t.ExpiresIn, 0)
	return !now.Before(expiresAt.Add(-refreshBuffer))
}

// TokenSource hands out a valid access token, refreshing it through the
// OAuth refresh-token grant when needed. The report source issues rotating
// refresh tokens, so every refresh replaces the stored pair.
type TokenSource struct {
	mu     sync.Mutex
	tokens Tokens

	http        *resty.Client
	baseURL     string
	clientID    string
	redirectURI string
	scope       string

	// onUpdate, when set, persists refreshed tokens.
	onUpdate func(Tokens)
}

// NewTokenSource creates a TokenSource seeded with an initial token pair.
func NewTokenSource(http *resty.Client, baseURL, clientID, redirectURI, scope string, initial Tokens, onUpdate func(Tokens)) *TokenSource {
	return &TokenSource{
		tokens:      initial,
		http:        http,
		baseURL:     baseURL,
		clientID:    clientID,
		redirectURI: redirectURI,
		scope:       scope,
		onUpdate:    onUpdate,
	}
}

// Token returns a valid access token, refreshing first when the stored one
// is expired or about to expire.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tokens.Expired(time.Now()) {
		return s.tokens.AccessToken, nil
	}

	var refreshed Tokens
	resp, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"client_id":     s.clientID,
			"refresh_token": s.tokens.RefreshToken,
			"redirect_uri":  s.redirectURI,
			"scope":         s.scope,
		}).
		SetResult(&refreshed).
		Post(s.baseURL + "/oauth/token")
	if err != nil {
		return "", fmt.Errorf("failed to refresh tokens: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token refresh returned status %d", resp.StatusCode())
	}

	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = s.tokens.RefreshToken
	}
	if refreshed.ExpiresIn == 0 {
		refreshed.ExpiresIn = 3600
	}
	refreshed.ObtainedAt = time.Now().Unix()
	s.tokens = refreshed

	if s.onUpdate != nil {
		s.onUpdate(refreshed)
	}
	return refreshed.AccessToken, nil
}
