package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenStore persists card token records. GetByToken returns ErrNotFound for
// unknown tokens; callers decide what an inactive record means.
type TokenStore interface {
	Save(ctx context.Context, t CardToken, ttl time.Duration) error
	GetByToken(ctx context.Context, token string) (*CardToken, error)
	// Get looks a record up by id, active or not.
	Get(ctx context.Context, id uuid.UUID) (*CardToken, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type PayeeStore interface {
	SavePayee(ctx context.Context, p Payee) error
	GetPayee(ctx context.Context, id uuid.UUID) (*Payee, error)
	// MarkFirstUsed sets first_used_at only when it is still null.
	MarkFirstUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type CoolingConfigStore interface {
	GetCoolingConfig(ctx context.Context, rail Rail) (*CoolingConfig, error)
}

type TransactionStore interface {
	SaveTransaction(ctx context.Context, tx TransactionRecord) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*TransactionRecord, error)
	// MarkSettled returns ErrAlreadySettled when the record is not pending.
	MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) error
	// SentAmounts returns the minor-unit amounts a user sent since the given time.
	SentAmounts(ctx context.Context, userID string, since time.Time) ([]int64, error)
}
