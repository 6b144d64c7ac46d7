package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Rail string

const (
	RailInternal Rail = "internal"
	RailFPS      Rail = "fps"
	RailCHAPS    Rail = "chaps"
	RailBACS     Rail = "bacs"
)

func (r Rail) Valid() bool {
	switch r {
	case RailInternal, RailFPS, RailCHAPS, RailBACS:
		return true
	}
	return false
}

type Payee struct {
	ID            uuid.UUID  `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	SortCode      string     `json:"sort_code"`
	AccountNumber string     `json:"account_number"`
	IsFavourite   bool       `json:"is_favourite"`
	FirstUsedAt   *time.Time `json:"first_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CoolingConfig is owned by the compliance back office; this package only reads it.
type CoolingConfig struct {
	Rail         Rail `json:"rail"`
	CoolingHours int  `json:"cooling_hours"`
	IsActive     bool `json:"is_active"`
}

type TokenType string

const (
	TokenPayment   TokenType = "payment"
	TokenDisplay   TokenType = "display"
	TokenRecurring TokenType = "recurring"
)

func (t TokenType) Valid() bool {
	switch t {
	case TokenPayment, TokenDisplay, TokenRecurring:
		return true
	}
	return false
}

// CardToken stands in for a card number. It never carries the full PAN.
type CardToken struct {
	ID          uuid.UUID  `json:"id"`
	UserID      string     `json:"user_id"`
	Token       string     `json:"token"`
	CardID      string     `json:"card_id"`
	TokenType   TokenType  `json:"token_type"`
	LastFour    string     `json:"last_four"`
	ExpiryMonth *int       `json:"expiry_month,omitempty"`
	ExpiryYear  *int       `json:"expiry_year,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionSettled TransactionStatus = "settled"
)

type TransactionRecord struct {
	ID          uuid.UUID         `json:"id"`
	UserID      string            `json:"user_id"`
	PayeeID     uuid.UUID         `json:"payee_id"`
	AmountMinor int64             `json:"amount_minor"`
	Fee         decimal.Decimal   `json:"fee"`
	Rail        Rail              `json:"rail"`
	Reference   string            `json:"reference,omitempty"`
	CoPResult   CoPResult         `json:"cop_result,omitempty"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	SettledAt   *time.Time        `json:"settled_at,omitempty"`
}

var (
	ErrNotFound           = errors.New("not found")
	ErrTokenizationFailed = errors.New("tokenization failed")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrPrivilegeRequired  = errors.New("privilege required")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrAlreadySettled     = errors.New("transaction already settled")
	ErrBadSignature       = errors.New("signature mismatch")
)
