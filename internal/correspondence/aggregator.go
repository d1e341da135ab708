// Package correspondence merges recent messages exchanged with a contact
// across every authorized account.
package correspondence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vijay-prabhu/crmgmail/internal/account"
	"github.com/vijay-prabhu/crmgmail/internal/email"
	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
	"github.com/vijay-prabhu/crmgmail/internal/metrics"
	"github.com/vijay-prabhu/crmgmail/internal/settings"
)

const (
	DefaultMaxParallelAccounts = 4
	DefaultMaxParallelMessages = 8
)

// Registry lists the accounts that can be queried
type Registry interface {
	Authorized(ctx context.Context) ([]account.Account, error)
}

// TokenSource yields a valid access token per account
type TokenSource interface {
	AccessToken(ctx context.Context, accountID string) (string, error)
}

// Config bounds the fan-out of a lookup
type Config struct {
	MaxParallelAccounts int
	MaxParallelMessages int
}

// Aggregator answers "recent correspondence with X" from cache or the provider
type Aggregator struct {
	registry    Registry
	tokens      TokenSource
	provider    email.Provider
	cache       settings.TransientStore
	settings    *settings.Settings
	logger      *slog.Logger
	maxAccounts int
	maxMessages int
}

// New creates an Aggregator
func New(registry Registry, tokens TokenSource, provider email.Provider, cache settings.TransientStore, st *settings.Settings, cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.MaxParallelAccounts <= 0 {
		cfg.MaxParallelAccounts = DefaultMaxParallelAccounts
	}
	if cfg.MaxParallelMessages <= 0 {
		cfg.MaxParallelMessages = DefaultMaxParallelMessages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		registry:    registry,
		tokens:      tokens,
		provider:    provider,
		cache:       cache,
		settings:    st,
		logger:      logger,
		maxAccounts: cfg.MaxParallelAccounts,
		maxMessages: cfg.MaxParallelMessages,
	}
}

// Recent returns at most limit messages exchanged with contact, newest first.
// A zero limit uses the configured email limit; any other value goes through
// ExplicitLimit. Failing accounts are skipped; only an invalid address or
// having no authorized account is an error.
func (a *Aggregator) Recent(ctx context.Context, contact string, limit int) ([]email.MessageRecord, error) {
	addr, ok := email.ValidateAddress(contact)
	if !ok {
		return nil, mailerr.New(mailerr.ErrInvalidEmail, "Contact email is invalid.")
	}

	if limit == 0 {
		limit = a.settings.EmailLimit(ctx)
	} else {
		limit = ExplicitLimit(limit)
	}

	accounts, err := a.registry.Authorized(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, mailerr.New(mailerr.ErrNotAuthorized, "No Gmail accounts are authorized yet.")
	}

	ids := make([]string, len(accounts))
	for i, acct := range accounts {
		ids[i] = acct.ID
	}
	key := CacheKey(addr, limit, ids)

	if cached, ok := a.cached(ctx, key); ok {
		metrics.CacheHit()
		return cached, nil
	}
	metrics.CacheMiss()

	perAccount := make([][]email.MessageRecord, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxAccounts)

	for i, acct := range accounts {
		index := i
		acct := acct

		g.Go(func() error {
			perAccount[index] = a.fetchAccount(gctx, acct, addr, limit)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := Merge(perAccount, limit)

	if data, err := json.Marshal(results); err == nil {
		if err := a.cache.SetTransient(ctx, key, string(data), a.settings.CacheTTL(ctx)); err != nil {
			a.logger.Warn("failed to cache correspondence", "error", err)
		}
	}

	return results, nil
}

// ExplicitLimit normalizes a caller supplied limit to its magnitude, at least 1.
// Unlike the stored email limit it is not restricted to the allowed choices.
func ExplicitLimit(n int) int {
	if n < 0 {
		n = -n
	}
	return max(1, n)
}

func (a *Aggregator) cached(ctx context.Context, key string) ([]email.MessageRecord, bool) {
	value, ok, err := a.cache.GetTransient(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var records []email.MessageRecord
	if err := json.Unmarshal([]byte(value), &records); err != nil || records == nil {
		return nil, false
	}
	return records, true
}

// fetchAccount queries one account. Any failure is logged and yields what was collected.
func (a *Aggregator) fetchAccount(ctx context.Context, acct account.Account, contact string, limit int) []email.MessageRecord {
	token, err := a.tokens.AccessToken(ctx, acct.ID)
	if err != nil {
		a.skip(acct.ID, "token", err)
		return nil
	}

	start := time.Now()
	ids, err := a.provider.ListMessageIDs(ctx, token, email.ContactQuery(contact), limit)
	metrics.ObserveProvider("list", start)
	if err != nil {
		a.skip(acct.ID, "list", err)
		return nil
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]*email.MessageRecord, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxMessages)

	for i, id := range ids {
		index := i
		id := id

		g.Go(func() error {
			start := time.Now()
			raw, err := a.provider.GetMessageMetadata(gctx, token, id)
			metrics.ObserveProvider("get", start)
			if err != nil {
				a.skip(acct.ID, "get", err)
				return nil
			}
			rec := email.ToRecord(raw, contact, acct.ID, acct.Label)
			records[index] = &rec
			return nil
		})
	}
	_ = g.Wait()

	out := make([]email.MessageRecord, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

func (a *Aggregator) skip(accountID, stage string, err error) {
	metrics.AccountFailure(accountID, stage)
	a.logger.Warn("skipping account", "account_id", accountID, "stage", stage, "error", err)
}

// ClearCache deletes every cached correspondence entry
func (a *Aggregator) ClearCache(ctx context.Context) (int64, error) {
	n, err := a.cache.DeleteTransientsByPrefix(ctx, settings.CachePrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to clear correspondence cache: %w", err)
	}
	return n, nil
}

// Merge de-duplicates records by id, keeping the later timestamp, then sorts
// newest first and truncates to limit. Ties keep encounter order.
func Merge(perAccount [][]email.MessageRecord, limit int) []email.MessageRecord {
	merged := make([]email.MessageRecord, 0)
	index := make(map[string]int)

	for _, records := range perAccount {
		for _, rec := range records {
			if rec.ID == "" {
				continue
			}
			if i, ok := index[rec.ID]; ok {
				if rec.Timestamp > merged[i].Timestamp {
					merged[i] = rec
				}
				continue
			}
			index[rec.ID] = len(merged)
			merged = append(merged, rec)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// CacheKey derives the cache key for a lookup. It is independent of the
// order of accountIDs and the case of addr.
func CacheKey(addr string, limit int, accountIDs []string) string {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)

	if limit < 0 {
		limit = -limit
	}
	source := strings.ToLower(addr) + "|" + strconv.Itoa(limit) + "|" + strings.Join(ids, ",")
	sum := sha256.Sum256([]byte(source))
	return settings.CachePrefix + hex.EncodeToString(sum[:])
}
