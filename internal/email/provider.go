package email

import "context"

// Provider defines the interface for mail providers queried with a bearer token
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// ListMessageIDs returns up to limit message ids matching query, newest first
	ListMessageIDs(ctx context.Context, token, query string, limit int) ([]string, error)

	// GetMessageMetadata retrieves the From, To, Subject and Date headers and
	// the snippet of one message. Bodies are never fetched.
	GetMessageMetadata(ctx context.Context, token, id string) (*RawMessage, error)
}
