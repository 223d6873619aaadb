package webex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vesaa/webexsync/internal/logging"
	"github.com/vesaa/webexsync/internal/metrics"
)

// ErrAuthentication is returned when the access token cannot be refreshed.
var ErrAuthentication = errors.New("failed to authenticate")

// OAuthConfig holds the long-lived refresh credentials.
type OAuthConfig struct {
	// TokenURL is the refresh endpoint, usually {api}/access_token.
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenManager owns the bearer credential used for every API call.
// It loads the credential from its cache at construction and refreshes it
// lazily when it is missing or expired.
type TokenManager struct {
	oauth      OAuthConfig
	httpClient *http.Client
	cache      *FileCache
	now        func() time.Time

	mu   sync.Mutex
	cred Credential
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager builds a manager and loads any cached credential.
// A missing or corrupt cache is logged and the manager starts empty.
func NewTokenManager(oauth OAuthConfig, httpClient *http.Client, cache *FileCache, opts ...TokenOption) *TokenManager {
	m := &TokenManager{
		oauth:      oauth,
		httpClient: httpClient,
		cache:      cache,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	cred, err := cache.Load()
	switch {
	case errors.Is(err, ErrNoCredential):
		logging.Debug().Str("path", cache.Path()).Msg("No cached token")
	case err != nil:
		logging.Warn().Err(err).Str("path", cache.Path()).Msg("Ignoring unreadable token cache")
	default:
		m.cred = cred
		logging.Info().Time("expires_at", cred.ExpiresAt()).Msg("Token loaded from file")
	}
	return m
}

// EnsureValid refreshes the token when none is held or it has expired.
func (m *TokenManager) EnsureValid(ctx context.Context) error {
	m.mu.Lock()
	expired := m.cred.Expired(m.now())
	m.mu.Unlock()
	if !expired {
		return nil
	}
	_, err := m.Refresh(ctx)
	return err
}

// Token returns the current access token, possibly empty.
func (m *TokenManager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.AccessToken
}

// ExpiresAt returns the expiry of the held credential; zero when none.
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred.AccessToken == "" {
		return time.Time{}
	}
	return m.cred.ExpiresAt()
}

// Refresh exchanges the refresh token for a new access token, stores it and
// writes it to the cache. On failure the held credential is left unchanged.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	logging.Info().Msg("Refreshing token")

	cred, err := m.requestToken(ctx)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		logging.Error().Err(err).Msg("Error fetching token")
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	if err := m.cache.Save(cred); err != nil {
		logging.Error().Err(err).Str("path", m.cache.Path()).Msg("Error writing token file")
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	logging.Info().Time("expires_at", cred.ExpiresAt()).Msg("Token refreshed")
	return cred.AccessToken, nil
}

func (m *TokenManager) requestToken(ctx context.Context) (Credential, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {m.oauth.ClientID},
		"client_secret": {m.oauth.ClientSecret},
		"refresh_token": {m.oauth.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.oauth.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	requestedAt := m.now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Credential{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Credential{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Credential{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return Credential{}, errors.New("token response has no access_token")
	}
	return Credential{
		AccessToken: tr.AccessToken,
		ExpireAt:    requestedAt.UnixMilli() + tr.ExpiresIn*1000,
	}, nil
}
