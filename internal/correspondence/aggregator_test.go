package correspondence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vijay-prabhu/crmgmail/internal/account"
	"github.com/vijay-prabhu/crmgmail/internal/email"
	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
	"github.com/vijay-prabhu/crmgmail/internal/settings"
)

type fakeRegistry struct {
	accounts []account.Account
}

func (r *fakeRegistry) Authorized(context.Context) ([]account.Account, error) {
	return r.accounts, nil
}

type fakeTokens struct {
	failing map[string]bool
}

func (f *fakeTokens) AccessToken(_ context.Context, accountID string) (string, error) {
	if f.failing[accountID] {
		return "", mailerr.New(mailerr.ErrRefreshFailed, "Token has been expired or revoked.")
	}
	return "token-" + accountID, nil
}

type fakeMessage struct {
	id        string
	from      string
	timestamp int64
}

// fakeProvider serves messages per access token
type fakeProvider struct {
	mu        sync.Mutex
	messages  map[string][]fakeMessage
	listErr   map[string]error
	getErr    map[string]error
	calls     int
	lastLimit int
	lastQuery string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ListMessageIDs(_ context.Context, token, query string, limit int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastLimit = limit
	p.lastQuery = query
	if err := p.listErr[token]; err != nil {
		return nil, err
	}
	var ids []string
	for _, m := range p.messages[token] {
		if len(ids) == limit {
			break
		}
		ids = append(ids, m.id)
	}
	return ids, nil
}

func (p *fakeProvider) GetMessageMetadata(_ context.Context, token, id string) (*email.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err := p.getErr[id]; err != nil {
		return nil, err
	}
	for _, m := range p.messages[token] {
		if m.id != id {
			continue
		}
		raw := &email.RawMessage{ID: m.id, ThreadID: "thread-" + m.id, Timestamp: m.timestamp}
		raw.SetHeader("From", m.from)
		raw.SetHeader("Subject", "Subject "+m.id)
		return raw, nil
	}
	return nil, mailerr.New(mailerr.ErrProviderAPI, "Requested entity was not found.")
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type testEnv struct {
	agg      *Aggregator
	registry *fakeRegistry
	tokens   *fakeTokens
	provider *fakeProvider
	store    *settings.MemoryStore
}

func setupAggregator(t *testing.T, accountIDs ...string) *testEnv {
	t.Helper()
	env := &testEnv{
		registry: &fakeRegistry{},
		tokens:   &fakeTokens{failing: map[string]bool{}},
		provider: &fakeProvider{
			messages: map[string][]fakeMessage{},
			listErr:  map[string]error{},
			getErr:   map[string]error{},
		},
		store: settings.NewMemoryStore(),
	}
	for _, id := range accountIDs {
		env.registry.accounts = append(env.registry.accounts, account.Account{ID: id, Label: strings.ToUpper(id)})
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.agg = New(env.registry, env.tokens, env.provider, env.store, settings.New(env.store), Config{}, logger)
	return env
}

func (env *testEnv) give(accountID string, msgs ...fakeMessage) {
	env.provider.messages["token-"+accountID] = append(env.provider.messages["token-"+accountID], msgs...)
}

func ids(records []email.MessageRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestRecentSortsAndLimits(t *testing.T) {
	env := setupAggregator(t, "a", "b")
	ctx := context.Background()

	env.give("a",
		fakeMessage{"a1", "Jane <jane@example.com>", 100},
		fakeMessage{"a2", "me@company.com", 300},
		fakeMessage{"a3", "jane@example.com", 200},
	)
	env.give("b",
		fakeMessage{"b1", "jane@example.com", 250},
		fakeMessage{"b2", "other@company.com", 50},
	)

	records, err := env.agg.Recent(ctx, "jane@example.com", 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}

	if want := []string{"a2", "b1", "a3"}; !reflect.DeepEqual(ids(records), want) {
		t.Errorf("ids = %v, want %v", ids(records), want)
	}
	if env.provider.lastQuery != "from:jane@example.com OR to:jane@example.com" {
		t.Errorf("query = %q", env.provider.lastQuery)
	}
	if env.provider.lastLimit != 3 {
		t.Errorf("list limit = %d, want 3", env.provider.lastLimit)
	}

	byID := map[string]email.MessageRecord{}
	for _, r := range records {
		byID[r.ID] = r
	}
	if byID["a2"].Direction != email.DirectionOutgoing || byID["b1"].Direction != email.DirectionIncoming {
		t.Errorf("unexpected directions: %+v", records)
	}
	if byID["b1"].AccountLabel != "B" || byID["b1"].AccountID != "b" {
		t.Errorf("unexpected account provenance: %+v", byID["b1"])
	}
}

func TestRecentDefaultLimit(t *testing.T) {
	env := setupAggregator(t, "a")
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		env.give("a", fakeMessage{fmt.Sprintf("m%02d", i), "jane@example.com", int64(i)})
	}

	records, err := env.agg.Recent(ctx, "jane@example.com", 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != settings.DefaultEmailLimit {
		t.Errorf("got %d records, want %d", len(records), settings.DefaultEmailLimit)
	}

	settings.New(env.store).SetEmailLimit(ctx, 20)
	records, _ = env.agg.Recent(ctx, "jane@example.com", 0)
	if len(records) != 20 {
		t.Errorf("got %d records, want 20", len(records))
	}
}

func TestRecentExplicitLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"outside the setting choices", 3, 3},
		{"single message", 1, 1},
		{"negative uses magnitude", -5, 5},
		{"larger than any choice", 60, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupAggregator(t, "a")
			for i := 0; i < 70; i++ {
				env.give("a", fakeMessage{fmt.Sprintf("m%02d", i), "jane@example.com", int64(i)})
			}

			records, err := env.agg.Recent(context.Background(), "jane@example.com", tt.limit)
			if err != nil {
				t.Fatalf("Recent failed: %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("got %d records, want %d", len(records), tt.want)
			}
			if env.provider.lastLimit != tt.want {
				t.Errorf("list limit = %d, want %d", env.provider.lastLimit, tt.want)
			}
		})
	}
}

func TestSectionExplicitLimit(t *testing.T) {
	env := setupAggregator(t, "a")
	for i := 0; i < 20; i++ {
		env.give("a", fakeMessage{fmt.Sprintf("m%02d", i), "jane@example.com", int64(i)})
	}

	section := env.agg.Section(context.Background(), "jane@example.com", 3)
	if section.Message != "" {
		t.Fatalf("unexpected message: %q", section.Message)
	}
	if want := []string{"m19", "m18", "m17"}; !reflect.DeepEqual(ids(section.Records), want) {
		t.Errorf("ids = %v, want %v", ids(section.Records), want)
	}
}

func TestExplicitLimit(t *testing.T) {
	for in, want := range map[int]int{0: 1, 1: 1, 3: 3, -5: 5, 7: 7} {
		if got := ExplicitLimit(in); got != want {
			t.Errorf("ExplicitLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRecentDeduplicatesAcrossAccounts(t *testing.T) {
	env := setupAggregator(t, "a", "b")
	ctx := context.Background()

	env.give("a", fakeMessage{"shared", "jane@example.com", 100}, fakeMessage{"only-a", "jane@example.com", 150})
	env.give("b", fakeMessage{"shared", "jane@example.com", 200})

	records, err := env.agg.Recent(ctx, "jane@example.com", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}

	if want := []string{"shared", "only-a"}; !reflect.DeepEqual(ids(records), want) {
		t.Fatalf("ids = %v, want %v", ids(records), want)
	}
	if records[0].Timestamp != 200 || records[0].AccountID != "b" {
		t.Errorf("expected the later copy to win: %+v", records[0])
	}
}

func TestRecentServesFromCache(t *testing.T) {
	env := setupAggregator(t, "a")
	ctx := context.Background()

	env.give("a", fakeMessage{"m1", "jane@example.com", 100})

	first, err := env.agg.Recent(ctx, "jane@example.com", 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	calls := env.provider.callCount()

	second, err := env.agg.Recent(ctx, "JANE@example.com", 5)
	if err != nil {
		t.Fatalf("cached Recent failed: %v", err)
	}
	if got := env.provider.callCount(); got != calls {
		t.Errorf("expected no provider calls on cache hit, got %d more", got-calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached = %+v, want %+v", second, first)
	}

	// A different limit is a different entry.
	env.agg.Recent(ctx, "jane@example.com", 10)
	if got := env.provider.callCount(); got == calls {
		t.Error("expected a provider call for a new limit")
	}
}

func TestRecentCacheExpires(t *testing.T) {
	env := setupAggregator(t, "a")
	ctx := context.Background()

	now := time.Now()
	env.store.SetClock(func() time.Time { return now })
	env.give("a", fakeMessage{"m1", "jane@example.com", 100})

	env.agg.Recent(ctx, "jane@example.com", 5)
	calls := env.provider.callCount()

	env.store.SetClock(func() time.Time { return now.Add(16 * time.Minute) })
	env.agg.Recent(ctx, "jane@example.com", 5)
	if env.provider.callCount() == calls {
		t.Error("expected the entry to expire after the default 15 minutes")
	}
}

func TestRecentCachesEmptyResult(t *testing.T) {
	env := setupAggregator(t, "a")
	ctx := context.Background()

	records, err := env.agg.Recent(ctx, "nobody@example.com", 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", records)
	}
	if n := env.store.TransientCount(settings.CachePrefix); n != 1 {
		t.Errorf("expected empty result cached, got %d entries", n)
	}
}

func TestRecentPartialFailure(t *testing.T) {
	tests := []struct {
		name         string
		breakAccount func(env *testEnv)
	}{
		{"token failure", func(env *testEnv) { env.tokens.failing["bad"] = true }},
		{"list failure", func(env *testEnv) {
			env.provider.listErr["token-bad"] = mailerr.New(mailerr.ErrProviderAPI, "Rate limit exceeded")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupAggregator(t, "bad", "good")
			ctx := context.Background()

			env.give("bad", fakeMessage{"x1", "jane@example.com", 500})
			env.give("good", fakeMessage{"g1", "jane@example.com", 100}, fakeMessage{"g2", "jane@example.com", 50})
			tt.breakAccount(env)

			records, err := env.agg.Recent(ctx, "jane@example.com", 10)
			if err != nil {
				t.Fatalf("Recent should succeed with partial results, got %v", err)
			}
			if want := []string{"g1", "g2"}; !reflect.DeepEqual(ids(records), want) {
				t.Errorf("ids = %v, want %v", ids(records), want)
			}
		})
	}
}

func TestRecentSkipsFailedMessages(t *testing.T) {
	env := setupAggregator(t, "a")
	ctx := context.Background()

	env.give("a", fakeMessage{"m1", "jane@example.com", 100}, fakeMessage{"m2", "jane@example.com", 200})
	env.provider.getErr["m2"] = errors.New("connection reset")

	records, err := env.agg.Recent(ctx, "jane@example.com", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if want := []string{"m1"}; !reflect.DeepEqual(ids(records), want) {
		t.Errorf("ids = %v, want %v", ids(records), want)
	}
}

func TestRecentErrors(t *testing.T) {
	env := setupAggregator(t)
	ctx := context.Background()

	for _, input := range []string{"", "not-an-email", "Jane <jane@example.com>"} {
		if _, err := env.agg.Recent(ctx, input, 5); !errors.Is(err, mailerr.ErrInvalidEmail) {
			t.Errorf("Recent(%q) error = %v, want ErrInvalidEmail", input, err)
		}
	}

	_, err := env.agg.Recent(ctx, "jane@example.com", 5)
	if !errors.Is(err, mailerr.ErrNotAuthorized) {
		t.Errorf("error = %v, want ErrNotAuthorized", err)
	}
	if env.provider.callCount() != 0 {
		t.Error("no provider calls expected without accounts")
	}
}

func TestMerge(t *testing.T) {
	rec := func(id string, ts int64, acct string) email.MessageRecord {
		return email.MessageRecord{ID: id, Timestamp: ts, AccountID: acct}
	}

	tests := []struct {
		name  string
		input [][]email.MessageRecord
		limit int
		want  []email.MessageRecord
	}{
		{
			name:  "empty",
			input: nil,
			limit: 5,
			want:  []email.MessageRecord{},
		},
		{
			name:  "ties keep encounter order",
			input: [][]email.MessageRecord{{rec("a", 10, "x"), rec("b", 10, "x")}, {rec("c", 10, "y")}},
			limit: 5,
			want:  []email.MessageRecord{rec("a", 10, "x"), rec("b", 10, "x"), rec("c", 10, "y")},
		},
		{
			name:  "duplicate keeps max timestamp",
			input: [][]email.MessageRecord{{rec("a", 30, "x"), rec("b", 20, "x")}, {rec("a", 10, "y"), rec("b", 40, "y")}},
			limit: 5,
			want:  []email.MessageRecord{rec("b", 40, "y"), rec("a", 30, "x")},
		},
		{
			name:  "equal duplicate keeps first",
			input: [][]email.MessageRecord{{rec("a", 10, "x")}, {rec("a", 10, "y")}},
			limit: 5,
			want:  []email.MessageRecord{rec("a", 10, "x")},
		},
		{
			name:  "empty ids dropped",
			input: [][]email.MessageRecord{{rec("", 99, "x"), rec("a", 1, "x")}},
			limit: 5,
			want:  []email.MessageRecord{rec("a", 1, "x")},
		},
		{
			name:  "truncates",
			input: [][]email.MessageRecord{{rec("a", 1, "x"), rec("b", 2, "x"), rec("c", 3, "x")}},
			limit: 2,
			want:  []email.MessageRecord{rec("c", 3, "x"), rec("b", 2, "x")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.input, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCacheKey(t *testing.T) {
	base := CacheKey("jane@example.com", 10, []string{"a", "b", "c"})

	if !strings.HasPrefix(base, settings.CachePrefix) {
		t.Errorf("key %q lacks prefix", base)
	}
	if len(base) != len(settings.CachePrefix)+64 {
		t.Errorf("key %q has unexpected length", base)
	}

	same := []string{
		CacheKey("JANE@Example.com", 10, []string{"c", "a", "b"}),
		CacheKey("jane@example.com", 10, []string{"b", "c", "a"}),
	}
	for _, k := range same {
		if k != base {
			t.Errorf("expected %q to equal %q", k, base)
		}
	}

	different := []string{
		CacheKey("jane@example.com", 5, []string{"a", "b", "c"}),
		CacheKey("jane@example.com", 10, []string{"a", "b"}),
		CacheKey("john@example.com", 10, []string{"a", "b", "c"}),
	}
	for _, k := range different {
		if k == base {
			t.Errorf("expected %q to differ", k)
		}
	}

	input := []string{"z", "a"}
	CacheKey("x@example.com", 1, input)
	if input[0] != "z" {
		t.Error("CacheKey must not reorder the caller's slice")
	}
}

func TestClearCache(t *testing.T) {
	env := setupAggregator(t, "a")
	ctx := context.Background()

	env.store.SetTransient(ctx, settings.CachePrefix+"1", "[]", time.Hour)
	env.store.SetTransient(ctx, settings.CachePrefix+"2", "[]", time.Hour)
	env.store.SetTransient(ctx, settings.StatePrefix+"admin_s", "a", time.Hour)

	n, err := env.agg.ClearCache(ctx)
	if err != nil {
		t.Fatalf("ClearCache failed: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared %d entries, want 2", n)
	}
	if env.store.TransientCount(settings.StatePrefix) != 1 {
		t.Error("ClearCache must not touch oauth state")
	}
}

func TestProfileSection(t *testing.T) {
	ctx := context.Background()

	t.Run("no email", func(t *testing.T) {
		env := setupAggregator(t, "a")
		s := env.agg.ProfileSection(ctx, "")
		if s.Heading != SectionHeading || s.Message != MsgNoContactEmail || s.Level != "warning" {
			t.Errorf("unexpected section: %+v", s)
		}
	})

	t.Run("not authorized", func(t *testing.T) {
		env := setupAggregator(t)
		if s := env.agg.ProfileSection(ctx, "jane@example.com"); s.Message != MsgNotAuthorized {
			t.Errorf("unexpected section: %+v", s)
		}
	})

	t.Run("no emails", func(t *testing.T) {
		env := setupAggregator(t, "a")
		if s := env.agg.ProfileSection(ctx, "jane@example.com"); s.Message != MsgNoEmails || s.Level != "info" {
			t.Errorf("unexpected section: %+v", s)
		}
	})

	t.Run("records", func(t *testing.T) {
		env := setupAggregator(t, "a")
		env.give("a", fakeMessage{"m1", "jane@example.com", 100})
		s := env.agg.ProfileSection(ctx, "jane@example.com")
		if s.Message != "" || len(s.Records) != 1 {
			t.Errorf("unexpected section: %+v", s)
		}
	})
}
