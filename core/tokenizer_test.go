package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type failingTokenStore struct {
	*MemoryTokenStore
	saveErr error
}

func (f failingTokenStore) Save(context.Context, CardToken, time.Duration) error {
	return f.saveErr
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func cardPriv() Privilege {
	return NewPrivilege("user-1", ScopeCardTokens, ScopePCIAudit)
}

func ptr[T any](v T) *T { return &v }

func newTestTokenizer(t *testing.T, store TokenStore, c *clock) (*Tokenizer, *AccessLog, *MemoryAccessLogSink) {
	t.Helper()
	sink := NewMemoryAccessLogSink()
	audit := NewAccessLog(AccessLogConfig{Sink: sink, Now: c.now})
	tk, err := NewTokenizer(TokenizerConfig{Store: store, AccessLog: audit, Now: c.now})
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}
	return tk, audit, sink
}

var tokenPattern = regexp.MustCompile(`^tok_[0-9a-f]{32}$`)

func TestTokenizeCardAssignsExpiryByType(t *testing.T) {
	c := newClock()
	tk, _, _ := newTestTokenizer(t, NewMemoryTokenStore(), c)

	cases := []struct {
		typ  TokenType
		want time.Duration
	}{
		{TokenPayment, 24 * time.Hour},
		{TokenDisplay, 15 * time.Minute},
		{TokenRecurring, 0},
	}
	for _, tc := range cases {
		tok, err := tk.TokenizeCard(context.Background(), cardPriv(), TokenizeRequest{
			UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: tc.typ,
			ExpiryMonth: ptr(12), ExpiryYear: ptr(2028),
		})
		if err != nil {
			t.Fatalf("%s: tokenize: %v", tc.typ, err)
		}
		if !tokenPattern.MatchString(tok.Token) {
			t.Fatalf("%s: token %q has wrong shape", tc.typ, tok.Token)
		}
		if !tok.IsActive || tok.LastFour != "4242" || tok.CardID != "card-1" {
			t.Fatalf("%s: unexpected token %+v", tc.typ, tok)
		}
		if tc.want == 0 {
			if tok.ExpiresAt != nil {
				t.Fatalf("recurring token should not expire, got %s", tok.ExpiresAt)
			}
			continue
		}
		if tok.ExpiresAt == nil || !tok.ExpiresAt.Equal(c.t.Add(tc.want)) {
			t.Fatalf("%s: expires at %v, want %s", tc.typ, tok.ExpiresAt, c.t.Add(tc.want))
		}
	}
}

func TestTokenizeCardTokensAreUnique(t *testing.T) {
	tk, _, _ := newTestTokenizer(t, NewMemoryTokenStore(), newClock())
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := tk.TokenizeCard(context.Background(), cardPriv(), TokenizeRequest{
			UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: TokenRecurring,
		})
		if err != nil {
			t.Fatalf("tokenize: %v", err)
		}
		if seen[tok.Token] {
			t.Fatalf("duplicate token %s", tok.Token)
		}
		seen[tok.Token] = true
	}
}

func TestTokenizeCardValidation(t *testing.T) {
	tk, _, _ := newTestTokenizer(t, NewMemoryTokenStore(), newClock())
	bad := []TokenizeRequest{
		{UserID: "", CardID: "c", LastFour: "4242", TokenType: TokenPayment},
		{UserID: "u", CardID: "c", LastFour: "424", TokenType: TokenPayment},
		{UserID: "u", CardID: "c", LastFour: "4242424242424242", TokenType: TokenPayment},
		{UserID: "u", CardID: "c", LastFour: "4242", TokenType: "vault"},
		{UserID: "u", CardID: "c", LastFour: "4242", TokenType: TokenPayment, ExpiryMonth: ptr(13)},
	}
	for _, req := range bad {
		if _, err := tk.TokenizeCard(context.Background(), cardPriv(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}

func TestTokenizeCardHidesStorageErrors(t *testing.T) {
	c := newClock()
	store := failingTokenStore{MemoryTokenStore: NewMemoryTokenStore(), saveErr: errors.New(`pq: relation "card_tokens" does not exist`)}
	tk, audit, sink := newTestTokenizer(t, store, c)

	_, err := tk.TokenizeCard(context.Background(), cardPriv(), TokenizeRequest{
		UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: TokenPayment,
	})
	if !errors.Is(err, ErrTokenizationFailed) {
		t.Fatalf("expected ErrTokenizationFailed, got %v", err)
	}
	if strings.Contains(err.Error(), "card_tokens") {
		t.Fatalf("storage detail leaked: %v", err)
	}
	audit.Wait()
	entries := sink.Entries()
	if len(entries) != 1 || entries[0].AccessType != AccessTokenizeFailed {
		t.Fatalf("expected one tokenize_failed entry, got %+v", entries)
	}
}

func TestDisplayTokenExpiresLazily(t *testing.T) {
	c := newClock()
	store := NewMemoryTokenStore()
	tk, _, _ := newTestTokenizer(t, store, c)

	tok, err := tk.TokenizeCard(context.Background(), cardPriv(), TokenizeRequest{
		UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: TokenDisplay,
	})
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	c.advance(14 * time.Minute)
	got, err := tk.Detokenize(context.Background(), cardPriv(), tok.Token)
	if err != nil || got.CardID != "card-1" {
		t.Fatalf("expected token to resolve at +14m, got %+v, %v", got, err)
	}

	c.advance(2 * time.Minute)
	if _, err := tk.Detokenize(context.Background(), cardPriv(), tok.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found at +16m, got %v", err)
	}
	stored, err := store.Get(context.Background(), tok.ID)
	if err != nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored.IsActive {
		t.Fatalf("expected expired token to be deactivated by the lookup")
	}
}

func TestDetokenizeDoesNotDistinguishRevokedFromUnknown(t *testing.T) {
	tk, _, _ := newTestTokenizer(t, NewMemoryTokenStore(), newClock())
	tok, err := tk.TokenizeCard(context.Background(), cardPriv(), TokenizeRequest{
		UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: TokenRecurring,
	})
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if err := tk.RevokeToken(context.Background(), cardPriv(), tok.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	revoked, errRevoked := tk.Detokenize(context.Background(), cardPriv(), tok.Token)
	unknown, errUnknown := tk.Detokenize(context.Background(), cardPriv(), "tok_00000000000000000000000000000000")
	if revoked != nil || unknown != nil {
		t.Fatalf("expected nil records, got %+v and %+v", revoked, unknown)
	}
	if errRevoked != errUnknown || !errors.Is(errRevoked, ErrNotFound) {
		t.Fatalf("expected identical ErrNotFound, got %v and %v", errRevoked, errUnknown)
	}
}

func TestRevokeTokenIsIdempotent(t *testing.T) {
	tk, audit, sink := newTestTokenizer(t, NewMemoryTokenStore(), newClock())
	tok, err := tk.TokenizeCard(context.Background(), cardPriv(), TokenizeRequest{
		UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: TokenPayment,
	})
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := tk.RevokeToken(context.Background(), cardPriv(), tok.ID); err != nil {
			t.Fatalf("revoke #%d: %v", i+1, err)
		}
	}
	if err := tk.RevokeToken(context.Background(), cardPriv(), uuid.New()); err != nil {
		t.Fatalf("revoke unknown: %v", err)
	}
	audit.Wait()
	if got := len(sink.Entries()); got != 4 {
		t.Fatalf("expected 4 access log entries, got %d", got)
	}
}

func TestTokenizerRequiresCardScope(t *testing.T) {
	tk, _, _ := newTestTokenizer(t, NewMemoryTokenStore(), newClock())
	priv := NewPrivilege("user-1", ScopePCIAudit)
	req := TokenizeRequest{UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: TokenPayment}

	if _, err := tk.TokenizeCard(context.Background(), priv, req); !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("tokenize: expected ErrPrivilegeRequired, got %v", err)
	}
	if _, err := tk.Detokenize(context.Background(), priv, "tok_x"); !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("detokenize: expected ErrPrivilegeRequired, got %v", err)
	}
	if err := tk.RevokeToken(context.Background(), priv, uuid.New()); !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("revoke: expected ErrPrivilegeRequired, got %v", err)
	}
}

func TestTokenizeCardRateLimit(t *testing.T) {
	c := newClock()
	limiter := NewMemoryRateLimiter()
	limiter.now = c.now
	tk, err := NewTokenizer(TokenizerConfig{
		Store:       NewMemoryTokenStore(),
		Now:         c.now,
		RateLimiter: limiter,
		RateLimit:   2,
		RateWindow:  time.Hour,
	})
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}
	req := TokenizeRequest{UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: TokenDisplay}
	for i := 0; i < 2; i++ {
		if _, err := tk.TokenizeCard(context.Background(), cardPriv(), req); err != nil {
			t.Fatalf("tokenize #%d: %v", i+1, err)
		}
	}
	if _, err := tk.TokenizeCard(context.Background(), cardPriv(), req); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	c.advance(time.Hour)
	if _, err := tk.TokenizeCard(context.Background(), cardPriv(), req); err != nil {
		t.Fatalf("expected new window to allow issue, got %v", err)
	}
}

func TestRevokeOwnedTokenChecksOwner(t *testing.T) {
	store := NewMemoryTokenStore()
	tk, audit, sink := newTestTokenizer(t, store, newClock())
	tok, err := tk.TokenizeCard(context.Background(), cardPriv(), TokenizeRequest{
		UserID: "user-1", CardID: "card-1", LastFour: "4242", TokenType: TokenRecurring,
	})
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}

	other := NewPrivilege("user-2", ScopeCardTokens, ScopePCIAudit)
	if err := tk.RevokeOwnedToken(context.Background(), other, "user-2", tok.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's token, got %v", err)
	}
	stored, err := store.Get(context.Background(), tok.ID)
	if err != nil || !stored.IsActive {
		t.Fatalf("token must stay active after a refused revoke, got %+v, %v", stored, err)
	}
	if err := tk.RevokeOwnedToken(context.Background(), other, "user-2", uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}

	if err := tk.RevokeOwnedToken(context.Background(), cardPriv(), "user-1", tok.ID); err != nil {
		t.Fatalf("owner revoke: %v", err)
	}
	stored, _ = store.Get(context.Background(), tok.ID)
	if stored.IsActive {
		t.Fatalf("expected token revoked by its owner")
	}

	audit.Wait()
	var refused int
	for _, e := range sink.Entries() {
		if e.AccessType == AccessRevoke && e.Reason == "not found" {
			refused++
		}
	}
	if refused != 2 {
		t.Fatalf("expected 2 refused revoke entries, got %d", refused)
	}
}
