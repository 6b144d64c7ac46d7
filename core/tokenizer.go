package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	tokenPrefix      = "tok_"
	paymentTokenTTL  = 24 * time.Hour
	displayTokenTTL  = 15 * time.Minute
	expiredRetention = 24 * time.Hour
)

// Lifetime returns how long a token of this type stays resolvable. Zero means
// it does not expire.
func (t TokenType) Lifetime() time.Duration {
	switch t {
	case TokenPayment:
		return paymentTokenTTL
	case TokenDisplay:
		return displayTokenTTL
	default:
		return 0
	}
}

type Tokenizer struct {
	store       TokenStore
	audit       *AccessLog
	logger      *slog.Logger
	now         func() time.Time
	random      io.Reader
	rateLimiter RateLimiter
	rateLimit   int
	rateWindow  time.Duration
}

type TokenizerConfig struct {
	Store       TokenStore
	AccessLog   *AccessLog
	Logger      *slog.Logger
	Now         func() time.Time
	Random      io.Reader
	RateLimiter RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

func NewTokenizer(cfg TokenizerConfig) (*Tokenizer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	random := cfg.Random
	if random == nil {
		random = rand.Reader
	}
	return &Tokenizer{
		store:       cfg.Store,
		audit:       cfg.AccessLog,
		logger:      logger,
		now:         nowFn,
		random:      random,
		rateLimiter: cfg.RateLimiter,
		rateLimit:   cfg.RateLimit,
		rateWindow:  cfg.RateWindow,
	}, nil
}

type TokenizeRequest struct {
	UserID      string    `json:"user_id"`
	CardID      string    `json:"card_id"`
	LastFour    string    `json:"last_four"`
	TokenType   TokenType `json:"token_type"`
	ExpiryMonth *int      `json:"expiry_month,omitempty"`
	ExpiryYear  *int      `json:"expiry_year,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

func (r TokenizeRequest) validate() error {
	if r.UserID == "" || r.CardID == "" {
		return fmt.Errorf("%w: user and card are required", ErrInvalidRequest)
	}
	if len(r.LastFour) != 4 || !allDigits(r.LastFour) {
		return fmt.Errorf("%w: last four must be 4 digits", ErrInvalidRequest)
	}
	if !r.TokenType.Valid() {
		return fmt.Errorf("%w: unknown token type %q", ErrInvalidRequest, r.TokenType)
	}
	if r.ExpiryMonth != nil && (*r.ExpiryMonth < 1 || *r.ExpiryMonth > 12) {
		return fmt.Errorf("%w: expiry month out of range", ErrInvalidRequest)
	}
	return nil
}

func (t *Tokenizer) newTokenString() (string, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(t.random, buf); err != nil {
		return "", err
	}
	return tokenPrefix + hex.EncodeToString(buf), nil
}

// TokenizeCard issues a token for the card. Storage failures are logged here
// and reported to the caller only as ErrTokenizationFailed.
func (t *Tokenizer) TokenizeCard(ctx context.Context, priv Privilege, req TokenizeRequest) (CardToken, error) {
	if err := priv.require(ScopeCardTokens); err != nil {
		return CardToken{}, err
	}
	if err := req.validate(); err != nil {
		return CardToken{}, err
	}

	if t.rateLimiter != nil && t.rateLimit > 0 {
		if err := t.rateLimiter.CheckAndIncrement(ctx, req.UserID, t.rateLimit, t.rateWindow); err != nil {
			if errors.Is(err, ErrRateLimitExceeded) {
				return CardToken{}, err
			}
			t.logger.Error("tokenize rate limiter failed", "user_id", req.UserID, "error", err)
			return CardToken{}, ErrTokenizationFailed
		}
	}

	value, err := t.newTokenString()
	if err != nil {
		t.logger.Error("token generation failed", "card_id", req.CardID, "error", err)
		t.record(ctx, priv, AccessLogEntry{CardID: req.CardID, AccessType: AccessTokenizeFailed, Reason: req.Reason})
		return CardToken{}, ErrTokenizationFailed
	}

	now := t.now()
	token := CardToken{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Token:       value,
		CardID:      req.CardID,
		TokenType:   req.TokenType,
		LastFour:    req.LastFour,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		IsActive:    true,
		CreatedAt:   now,
	}
	var ttl time.Duration
	if life := req.TokenType.Lifetime(); life > 0 {
		expires := now.Add(life)
		token.ExpiresAt = &expires
		// Keep expired records long enough for the lazy deactivation to be seen.
		ttl = life + expiredRetention
	}

	if err := t.store.Save(ctx, token, ttl); err != nil {
		t.logger.Error("token save failed", "card_id", req.CardID, "token_type", req.TokenType, "error", err)
		t.record(ctx, priv, AccessLogEntry{CardID: req.CardID, AccessType: AccessTokenizeFailed, Reason: req.Reason})
		return CardToken{}, ErrTokenizationFailed
	}

	t.record(ctx, priv, AccessLogEntry{CardID: req.CardID, TokenID: &token.ID, AccessType: AccessTokenize, Reason: req.Reason})
	return token, nil
}

// Detokenize resolves an active, unexpired token. Unknown, revoked and
// expired tokens all return ErrNotFound. An expired token is deactivated as
// part of the lookup.
func (t *Tokenizer) Detokenize(ctx context.Context, priv Privilege, token string) (*CardToken, error) {
	if err := priv.require(ScopeCardTokens); err != nil {
		return nil, err
	}

	rec, err := t.store.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) || (err == nil && !rec.IsActive) {
		t.record(ctx, priv, AccessLogEntry{AccessType: AccessDetokenize, Reason: "not found"})
		return nil, ErrNotFound
	}
	if err != nil {
		t.logger.Error("token lookup failed", "error", err)
		return nil, fmt.Errorf("detokenize: %w", err)
	}

	if rec.ExpiresAt != nil && !t.now().Before(*rec.ExpiresAt) {
		if err := t.store.Deactivate(ctx, rec.ID); err != nil && !errors.Is(err, ErrNotFound) {
			t.logger.Warn("expired token deactivation failed", "token_id", rec.ID, "error", err)
		}
		t.record(ctx, priv, AccessLogEntry{CardID: rec.CardID, TokenID: &rec.ID, AccessType: AccessDetokenize, Reason: "expired"})
		return nil, ErrNotFound
	}

	t.record(ctx, priv, AccessLogEntry{CardID: rec.CardID, TokenID: &rec.ID, AccessType: AccessDetokenize})
	return rec, nil
}

// RevokeToken marks the token inactive. Revoking an unknown or already
// inactive token succeeds.
func (t *Tokenizer) RevokeToken(ctx context.Context, priv Privilege, tokenID uuid.UUID) error {
	if err := priv.require(ScopeCardTokens); err != nil {
		return err
	}
	err := t.store.Deactivate(ctx, tokenID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		t.logger.Error("token revoke failed", "token_id", tokenID, "error", err)
		return fmt.Errorf("revoke token: %w", err)
	}
	t.record(ctx, priv, AccessLogEntry{TokenID: &tokenID, AccessType: AccessRevoke})
	return nil
}

// RevokeOwnedToken revokes a token on behalf of its owner. Unknown tokens and
// tokens belonging to another user both return ErrNotFound and leave the
// record untouched.
func (t *Tokenizer) RevokeOwnedToken(ctx context.Context, priv Privilege, ownerID string, tokenID uuid.UUID) error {
	if err := priv.require(ScopeCardTokens); err != nil {
		return err
	}
	rec, err := t.store.Get(ctx, tokenID)
	if errors.Is(err, ErrNotFound) || (err == nil && rec.UserID != ownerID) {
		t.record(ctx, priv, AccessLogEntry{TokenID: &tokenID, AccessType: AccessRevoke, Reason: "not found"})
		return ErrNotFound
	}
	if err != nil {
		t.logger.Error("token lookup failed", "token_id", tokenID, "error", err)
		return fmt.Errorf("revoke token: %w", err)
	}
	return t.RevokeToken(ctx, priv, tokenID)
}

func (t *Tokenizer) record(ctx context.Context, priv Privilege, entry AccessLogEntry) {
	t.audit.Record(ctx, priv, entry)
}
