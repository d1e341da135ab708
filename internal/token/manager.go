// Package token keeps per-account access tokens valid.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/vijay-prabhu/crmgmail/internal/account"
	"github.com/vijay-prabhu/crmgmail/internal/email/gmail"
	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
	"github.com/vijay-prabhu/crmgmail/internal/metrics"
)

const (
	defaultExpiresIn = 3600
	minExpiresIn     = 60
	expirySkew       = 30
	defaultTimeout   = 20 * time.Second
)

// Store is the slice of the account registry the manager needs
type Store interface {
	Get(ctx context.Context, id string) (*account.Account, error)
	Tokens(ctx context.Context, id string) (*account.TokenSet, error)
	SaveTokens(ctx context.Context, id string, tokens account.TokenSet) error
}

// Config configures the OAuth endpoints
type Config struct {
	AuthURL     string // Empty uses Google's
	TokenURL    string // Empty uses Google's
	RedirectURL string
	Timeout     time.Duration
	HTTPClient  *http.Client // Overrides Timeout when set
}

// Manager exchanges authorization codes and refreshes access tokens
type Manager struct {
	store       Store
	endpoint    oauth2.Endpoint
	redirectURL string
	client      *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager creates a Manager
func NewManager(store Store, cfg Config, logger *slog.Logger) *Manager {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// Credentials go in the form body, so a rejected request is not retried with basic auth.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:       store,
		endpoint:    endpoint,
		redirectURL: cfg.RedirectURL,
		client:      client,
		logger:      logger,
		now:         time.Now,
	}
}

// OAuthConfig returns the oauth2 configuration for an account's client
func (m *Manager) OAuthConfig(a *account.Account) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		Endpoint:     m.endpoint,
		RedirectURL:  m.redirectURL,
		Scopes:       gmail.Scopes,
	}
}

// RedirectURL returns the callback URL registered with every OAuth client
func (m *Manager) RedirectURL() string {
	return m.redirectURL
}

func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

// AccessToken returns a valid access token for accountID, refreshing it when expired
func (m *Manager) AccessToken(ctx context.Context, accountID string) (string, error) {
	tokens, err := m.store.Tokens(ctx, accountID)
	if err != nil || tokens == nil || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return "", mailerr.Wrap(mailerr.ErrNotAuthorized, "Google account is not authorized yet.", err)
	}

	if tokens.ExpiresAt != 0 && m.now().Unix() < tokens.ExpiresAt {
		return tokens.AccessToken, nil
	}

	return m.refresh(ctx, accountID, *tokens)
}

func (m *Manager) refresh(ctx context.Context, accountID string, tokens account.TokenSet) (string, error) {
	a, err := m.store.Get(ctx, accountID)
	if err != nil {
		return "", mailerr.Wrap(mailerr.ErrRefreshFailed, "Unable to refresh access token.", err)
	}
	if a == nil {
		return "", mailerr.New(mailerr.ErrAccountNotFound, "Selected Gmail account was not found.")
	}

	source := m.OAuthConfig(a).TokenSource(m.httpContext(ctx), &oauth2.Token{RefreshToken: tokens.RefreshToken})
	tok, err := source.Token()
	if err != nil {
		metrics.TokenRefresh(false)
		m.logger.Warn("token refresh failed", "account_id", accountID, "error", err)
		return "", mailerr.Wrap(mailerr.ErrRefreshFailed, describe(err, "Unable to refresh access token."), err)
	}

	tokens.AccessToken = tok.AccessToken
	tokens.ExpiresAt = m.expiresAt(tok)
	if tok.RefreshToken != "" {
		tokens.RefreshToken = tok.RefreshToken
	}

	if err := m.store.SaveTokens(ctx, accountID, tokens); err != nil {
		metrics.TokenRefresh(false)
		return "", mailerr.Wrap(mailerr.ErrRefreshFailed, mailerr.Message(err, "Unable to refresh access token."), err)
	}

	metrics.TokenRefresh(true)
	m.logger.Debug("access token refreshed", "account_id", accountID)
	return tokens.AccessToken, nil
}

// Exchange trades an authorization code for tokens and stores them. A
// response without a refresh token keeps the stored one; when there is none
// nothing is persisted.
func (m *Manager) Exchange(ctx context.Context, accountID, code string) error {
	a, err := m.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if a == nil {
		return mailerr.New(mailerr.ErrAccountNotFound, "Selected Gmail account was not found.")
	}

	tok, err := m.OAuthConfig(a).Exchange(m.httpContext(ctx), code)
	if err != nil {
		m.logger.Warn("token exchange failed", "account_id", accountID, "error", err)
		return mailerr.Wrap(mailerr.ErrTokenExchangeFailed, describe(err, "Token exchange failed."), err)
	}

	tokens := account.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    m.expiresAt(tok),
		Scope:        extraString(tok, "scope"),
		TokenType:    tok.TokenType,
	}
	if tokens.TokenType == "" {
		tokens.TokenType = "Bearer"
	}

	if tokens.RefreshToken == "" {
		if existing, err := m.store.Tokens(ctx, accountID); err == nil && existing.Authorized() {
			tokens.RefreshToken = existing.RefreshToken
		}
	}
	if tokens.RefreshToken == "" {
		return mailerr.New(mailerr.ErrMissingRefreshToken, "Missing refresh token. Reconnect and grant offline access.")
	}

	if err := m.store.SaveTokens(ctx, accountID, tokens); err != nil {
		return err
	}

	m.logger.Info("account connected", "account_id", accountID)
	return nil
}

// expiresAt computes now + max(60, expires_in) - 30
func (m *Manager) expiresAt(tok *oauth2.Token) int64 {
	expiresIn := int64(defaultExpiresIn)
	if v, ok := extraInt(tok, "expires_in"); ok {
		expiresIn = v
	} else if !tok.Expiry.IsZero() {
		expiresIn = int64(tok.Expiry.Sub(m.now()).Round(time.Second).Seconds())
	}
	if expiresIn < 0 {
		expiresIn = -expiresIn
	}
	if expiresIn < minExpiresIn {
		expiresIn = minExpiresIn
	}
	return m.now().Unix() + expiresIn - expirySkew
}

func extraInt(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func extraString(tok *oauth2.Token, key string) string {
	s, _ := tok.Extra(key).(string)
	return s
}

// describe returns the provider's error_description, or fallback
func describe(err error, fallback string) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorDescription != "" {
		return re.ErrorDescription
	}
	return fallback
}
