// Package account manages linked mailbox accounts and their sealed OAuth tokens.
package account

import (
	"strings"

	"github.com/vijay-prabhu/crmgmail/internal/email"
)

// Account is one linked mailbox with its own OAuth client
type Account struct {
	ID           string `json:"-"`
	Label        string `json:"label"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Tokens       string `json:"tokens"` // Sealed TokenSet, empty until authorized
}

// HasCredentials reports whether the OAuth client id and secret are set
func (a *Account) HasCredentials() bool {
	return a != nil && a.ClientID != "" && a.ClientSecret != ""
}

// DisplayName returns the label, or the id when no label is set
func (a *Account) DisplayName() string {
	if a.Label != "" {
		return a.Label
	}
	return a.ID
}

// TokenSet is the decrypted OAuth token state of an account
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // Unix seconds
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// Authorized reports whether the set can be refreshed
func (t *TokenSet) Authorized() bool {
	return t != nil && t.RefreshToken != ""
}

// RawAccount is unsanitized account input from a form or CLI
type RawAccount struct {
	Label        string `json:"label"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Remove       bool   `json:"remove"`
}

// NormalizeID lowercases id and keeps only [a-z0-9_-]
func NormalizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeText strips tags and folds all whitespace to single spaces
func sanitizeText(s string) string {
	return strings.Join(strings.Fields(email.StripTags(s)), " ")
}
