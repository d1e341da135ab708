package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vijay-prabhu/crmgmail/internal/crypto"
	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
	"github.com/vijay-prabhu/crmgmail/internal/settings"
)

// Registry persists accounts as a single JSON option. Token writes invalidate
// every cached correspondence entry.
type Registry struct {
	mu     sync.Mutex
	kv     settings.KV
	sealer *crypto.Sealer
	newID  func() string
}

// NewRegistry creates a Registry over kv
func NewRegistry(kv settings.KV, sealer *crypto.Sealer) *Registry {
	return &Registry{
		kv:     kv,
		sealer: sealer,
		newID:  generateID,
	}
}

func generateID() string {
	return "account_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// List loads all accounts keyed by id. Malformed entries are dropped.
func (r *Registry) List(ctx context.Context) (map[string]Account, error) {
	value, ok, err := r.kv.GetOption(ctx, settings.OptionAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	accounts := make(map[string]Account)
	if !ok || strings.TrimSpace(value) == "" {
		return accounts, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return accounts, nil
	}

	// Ids that normalize alike resolve to the last raw id in sorted order.
	rawIDs := make([]string, 0, len(entries))
	for rawID := range entries {
		rawIDs = append(rawIDs, rawID)
	}
	sort.Strings(rawIDs)

	for _, rawID := range rawIDs {
		entry := entries[rawID]
		if !isObject(entry) {
			continue
		}
		id := NormalizeID(rawID)
		if id == "" {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal(entry, &fields); err != nil {
			continue
		}

		accounts[id] = Account{
			ID:           id,
			Label:        sanitizeText(stringField(fields, "label")),
			ClientID:     sanitizeText(stringField(fields, "client_id")),
			ClientSecret: sanitizeText(stringField(fields, "client_secret")),
			Tokens:       stringField(fields, "tokens"),
		}
	}

	return accounts, nil
}

// Sorted returns the accounts ordered by id
func (r *Registry) Sorted(ctx context.Context) ([]Account, error) {
	accounts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the account with id, or nil when it does not exist
func (r *Registry) Get(ctx context.Context, id string) (*Account, error) {
	accounts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// Upsert replaces the stored accounts with raw. Entries marked Remove or
// with no data are dropped, invalid ids are regenerated and tokens already
// stored under an id are carried forward.
func (r *Registry) Upsert(ctx context.Context, raw map[string]RawAccount) (map[string]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	rawIDs := make([]string, 0, len(raw))
	for id := range raw {
		rawIDs = append(rawIDs, id)
	}
	sort.Strings(rawIDs)

	accounts := make(map[string]Account, len(raw))
	for _, rawID := range rawIDs {
		in := raw[rawID]
		if in.Remove {
			continue
		}

		id := NormalizeID(rawID)
		if id == "" {
			id = r.uniqueID(accounts, existing)
		}

		a := Account{
			ID:           id,
			Label:        sanitizeText(in.Label),
			ClientID:     sanitizeText(in.ClientID),
			ClientSecret: sanitizeText(in.ClientSecret),
		}
		if prev, ok := existing[id]; ok {
			a.Tokens = prev.Tokens
		}

		if a.Label == "" && a.ClientID == "" && a.ClientSecret == "" && a.Tokens == "" {
			continue
		}

		accounts[id] = a
	}

	if err := r.save(ctx, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Add stores a new account with a generated id
func (r *Registry) Add(ctx context.Context, label, clientID, clientSecret string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	a := Account{
		ID:           r.uniqueID(accounts),
		Label:        sanitizeText(label),
		ClientID:     sanitizeText(clientID),
		ClientSecret: sanitizeText(clientSecret),
	}
	if a.Label == "" && a.ClientID == "" && a.ClientSecret == "" {
		return nil, fmt.Errorf("account needs a label or OAuth client credentials")
	}

	accounts[a.ID] = a
	if err := r.save(ctx, accounts); err != nil {
		return nil, err
	}
	return &a, nil
}

// Remove deletes the account and its tokens. Unknown ids are a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.List(ctx)
	if err != nil {
		return err
	}
	a, ok := accounts[id]
	if !ok {
		return nil
	}

	delete(accounts, id)
	if err := r.save(ctx, accounts); err != nil {
		return err
	}
	if a.Tokens != "" {
		return r.invalidate(ctx)
	}
	return nil
}

// Tokens returns the decrypted token set, or nil when the account has none
func (r *Registry) Tokens(ctx context.Context, id string) (*TokenSet, error) {
	a, err := r.Get(ctx, id)
	if err != nil || a == nil || a.Tokens == "" {
		return nil, err
	}
	return r.open(a.Tokens)
}

func (r *Registry) open(sealed string) (*TokenSet, error) {
	var tokens TokenSet
	if err := r.sealer.Decrypt(sealed, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// IsAuthorized reports whether the account holds a refresh token
func (r *Registry) IsAuthorized(ctx context.Context, id string) bool {
	tokens, err := r.Tokens(ctx, id)
	return err == nil && tokens.Authorized()
}

// Authorized returns the authorized accounts ordered by id
func (r *Registry) Authorized(ctx context.Context) ([]Account, error) {
	accounts, err := r.Sorted(ctx)
	if err != nil {
		return nil, err
	}

	var out []Account
	for _, a := range accounts {
		if a.Tokens == "" {
			continue
		}
		tokens, err := r.open(a.Tokens)
		if err != nil || !tokens.Authorized() {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// AuthorizedIDs returns the sorted ids of authorized accounts
func (r *Registry) AuthorizedIDs(ctx context.Context) ([]string, error) {
	accounts, err := r.Authorized(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids, nil
}

// AnyAuthorized reports whether at least one account is authorized
func (r *Registry) AnyAuthorized(ctx context.Context) bool {
	ids, err := r.AuthorizedIDs(ctx)
	return err == nil && len(ids) > 0
}

// SaveTokens seals and stores tokens for id and invalidates cached correspondence
func (r *Registry) SaveTokens(ctx context.Context, id string, tokens TokenSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.List(ctx)
	if err != nil {
		return err
	}
	a, ok := accounts[id]
	if !ok {
		return mailerr.New(mailerr.ErrAccountNotFound, "Selected Gmail account was not found.")
	}

	sealed, err := r.sealer.Encrypt(tokens)
	if err != nil {
		return err
	}

	a.Tokens = sealed
	accounts[id] = a
	if err := r.save(ctx, accounts); err != nil {
		return err
	}
	return r.invalidate(ctx)
}

// Disconnect clears the tokens of id, keeping its label and credentials
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts, err := r.List(ctx)
	if err != nil {
		return err
	}
	a, ok := accounts[id]
	if !ok {
		return nil
	}

	a.Tokens = ""
	accounts[id] = a
	if err := r.save(ctx, accounts); err != nil {
		return err
	}
	return r.invalidate(ctx)
}

func (r *Registry) save(ctx context.Context, accounts map[string]Account) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}
	if err := r.kv.SetOption(ctx, settings.OptionAccounts, string(data)); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	return nil
}

func (r *Registry) invalidate(ctx context.Context) error {
	if _, err := r.kv.DeleteTransientsByPrefix(ctx, settings.CachePrefix); err != nil {
		return fmt.Errorf("failed to clear correspondence cache: %w", err)
	}
	return nil
}

func (r *Registry) uniqueID(taken ...map[string]Account) string {
	for {
		id := r.newID()
		free := true
		for _, m := range taken {
			if _, ok := m[id]; ok {
				free = false
			}
		}
		if free {
			return id
		}
	}
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}
