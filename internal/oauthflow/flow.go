// Package oauthflow drives the browser authorization round trip for linked accounts.
package oauthflow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"

	"github.com/vijay-prabhu/crmgmail/internal/account"
	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
	"github.com/vijay-prabhu/crmgmail/internal/metrics"
	"github.com/vijay-prabhu/crmgmail/internal/settings"
)

// Status codes reported back to the settings page
const (
	StatusConnected        = "connected"
	StatusOAuthError       = "oauth_error"
	StatusInvalidState     = "invalid_state"
	StatusMissingCode      = "missing_code"
	StatusTokenFailed      = "token_failed"
	StatusDisconnected     = "disconnected"
	StatusDisconnectFailed = "disconnect_failed"
)

const (
	// StateTTL bounds how long a pending authorization stays valid.
	StateTTL = 10 * time.Minute
	// NonceTTL bounds how long a disconnect nonce stays valid.
	NonceTTL = 24 * time.Hour

	stateBytes = 24
)

// ErrMissingCredentials is returned by Begin when the account has no OAuth client configured.
var ErrMissingCredentials = errors.New("account has no OAuth client credentials")

// Registry is the slice of the account registry the flow needs
type Registry interface {
	Get(ctx context.Context, id string) (*account.Account, error)
	Disconnect(ctx context.Context, id string) error
}

// Exchanger builds OAuth configs and trades codes for tokens
type Exchanger interface {
	OAuthConfig(a *account.Account) *oauth2.Config
	Exchange(ctx context.Context, accountID, code string) error
}

// CallbackParams are the query parameters of the OAuth redirect
type CallbackParams struct {
	State string
	Code  string
	Error string
}

// Flow issues authorize URLs, validates callbacks and handles disconnects
type Flow struct {
	registry  Registry
	exchanger Exchanger
	states    settings.TransientStore
	nonces    *securecookie.SecureCookie
	logger    *slog.Logger
}

// New creates a Flow. secret keys the disconnect nonces.
func New(registry Registry, exchanger Exchanger, states settings.TransientStore, secret string, logger *slog.Logger) (*Flow, error) {
	if secret == "" {
		return nil, fmt.Errorf("oauth flow requires a secret")
	}
	if logger == nil {
		logger = slog.Default()
	}

	hash := sha256.Sum256([]byte("disconnect-nonce:" + secret))
	sc := securecookie.New(hash[:], nil)
	sc.MaxAge(int(NonceTTL / time.Second))
	sc.SetSerializer(securecookie.JSONEncoder{})

	return &Flow{
		registry:  registry,
		exchanger: exchanger,
		states:    states,
		nonces:    sc,
		logger:    logger,
	}, nil
}

// AuthorizeURL returns the provider consent URL for accountID, or an empty
// string when the account or its credentials are missing
func (f *Flow) AuthorizeURL(ctx context.Context, accountID, state string) (string, error) {
	a, err := f.registry.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !a.HasCredentials() {
		return "", nil
	}

	return f.exchanger.OAuthConfig(a).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// Begin starts an authorization for user and returns the URL to redirect to
func (f *Flow) Begin(ctx context.Context, user, accountID string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	authURL, err := f.AuthorizeURL(ctx, accountID, state)
	if err != nil {
		return "", err
	}
	if authURL == "" {
		return "", ErrMissingCredentials
	}

	if err := f.states.SetTransient(ctx, stateKey(user, state), accountID, StateTTL); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}

	return authURL, nil
}

// Complete validates a callback for user and exchanges its code.
// It always returns a status code; the error carries the cause for logging.
func (f *Flow) Complete(ctx context.Context, user string, params CallbackParams) (string, error) {
	status, err := f.complete(ctx, user, params)
	metrics.OAuthOutcome(status)
	if err != nil {
		f.logger.Warn("oauth callback failed", "status", status, "error", err)
	}
	return status, err
}

func (f *Flow) complete(ctx context.Context, user string, params CallbackParams) (string, error) {
	if params.Error != "" {
		return StatusOAuthError, fmt.Errorf("provider returned %q", params.Error)
	}

	state := strings.TrimSpace(params.State)
	if state == "" {
		return StatusInvalidState, mailerr.New(mailerr.ErrInvalidState, "Invalid OAuth state. Please try again.")
	}

	key := stateKey(user, state)
	accountID, ok, err := f.states.GetTransient(ctx, key)
	if err != nil {
		return StatusInvalidState, mailerr.Wrap(mailerr.ErrInvalidState, "Invalid OAuth state. Please try again.", err)
	}
	if !ok || accountID == "" {
		return StatusInvalidState, mailerr.New(mailerr.ErrInvalidState, "Invalid OAuth state. Please try again.")
	}

	if err := f.states.DeleteTransient(ctx, key); err != nil {
		f.logger.Warn("failed to delete oauth state", "error", err)
	}

	code := strings.TrimSpace(params.Code)
	if code == "" {
		return StatusMissingCode, errors.New("callback carried no authorization code")
	}

	if err := f.exchanger.Exchange(ctx, accountID, code); err != nil {
		return StatusTokenFailed, err
	}

	f.logger.Info("oauth callback completed", "account_id", accountID)
	return StatusConnected, nil
}

// DisconnectNonce issues a signed, time-limited token allowing user to disconnect accountID
func (f *Flow) DisconnectNonce(user, accountID string) (string, error) {
	id := account.NormalizeID(accountID)
	if id == "" {
		return "", mailerr.New(mailerr.ErrAccountNotFound, "Selected Gmail account was not found.")
	}
	nonce, err := f.nonces.Encode(nonceName(user, id), id)
	if err != nil {
		return "", fmt.Errorf("failed to issue nonce: %w", err)
	}
	return nonce, nil
}

// Disconnect clears the tokens of accountID when nonce is valid for user
func (f *Flow) Disconnect(ctx context.Context, user, accountID, nonce string) string {
	status := f.disconnect(ctx, user, accountID, nonce)
	metrics.OAuthOutcome(status)
	return status
}

func (f *Flow) disconnect(ctx context.Context, user, accountID, nonce string) string {
	id := account.NormalizeID(accountID)
	if id == "" {
		return StatusDisconnectFailed
	}

	var signed string
	if err := f.nonces.Decode(nonceName(user, id), nonce, &signed); err != nil || signed != id {
		f.logger.Warn("disconnect nonce rejected", "account_id", id, "error", err)
		return StatusDisconnectFailed
	}

	if err := f.registry.Disconnect(ctx, id); err != nil {
		f.logger.Error("disconnect failed", "account_id", id, "error", err)
		return StatusDisconnectFailed
	}

	f.logger.Info("account disconnected", "account_id", id)
	return StatusDisconnected
}

func stateKey(user, state string) string {
	return settings.StatePrefix + user + "_" + state
}

func nonceName(user, accountID string) string {
	return "disconnect_" + user + "_" + accountID
}

// generateState returns 32 URL-safe random characters
func generateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
