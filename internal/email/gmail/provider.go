// Package gmail implements email.Provider over the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/vijay-prabhu/crmgmail/internal/email"
	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
)

// Scopes requested during authorization
var Scopes = []string{
	gmail.GmailReadonlyScope,
}

// DefaultTimeout bounds every Gmail API call
const DefaultTimeout = 20 * time.Second

var metadataHeaders = []string{"From", "To", "Subject", "Date"}

// Config configures a Provider
type Config struct {
	Endpoint  string            // Base URL override, e.g. for tests. Empty uses Google's.
	Timeout   time.Duration     // Per-request timeout. Zero uses DefaultTimeout.
	Transport http.RoundTripper // Base transport. Nil uses http.DefaultTransport.
}

// Provider implements the email.Provider interface for Gmail. It holds no
// credentials; every call carries its own access token.
type Provider struct {
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
}

var _ email.Provider = (*Provider)(nil)

// New creates a new Gmail provider
func New(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Provider{
		endpoint:  cfg.Endpoint,
		timeout:   timeout,
		transport: cfg.Transport,
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "gmail"
}

// service builds a Gmail service that authenticates with token
func (p *Provider) service(ctx context.Context, token string) (*gmail.Service, error) {
	client := &http.Client{
		Timeout: p.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   p.transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return service, nil
}

// ListMessageIDs returns up to limit ids of messages matching query
func (p *Provider) ListMessageIDs(ctx context.Context, token, query string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}

	service, err := p.service(ctx, token)
	if err != nil {
		return nil, apiError(err)
	}

	resp, err := service.Users.Messages.List("me").
		Q(query).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError(err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		if msg == nil || msg.Id == "" {
			continue
		}
		ids = append(ids, msg.Id)
		if len(ids) >= limit {
			break
		}
	}

	return ids, nil
}

// GetMessageMetadata retrieves headers and snippet for one message
func (p *Provider) GetMessageMetadata(ctx context.Context, token, id string) (*email.RawMessage, error) {
	service, err := p.service(ctx, token)
	if err != nil {
		return nil, apiError(err)
	}

	msg, err := service.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError(err)
	}

	return convertMessage(msg), nil
}

// apiError maps Gmail failures to ErrProviderAPI, keeping Google's message when present
func apiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return mailerr.Wrap(mailerr.ErrProviderAPI, gerr.Message, err)
	}
	return mailerr.Wrap(mailerr.ErrProviderAPI, "Gmail API request failed.", err)
}
