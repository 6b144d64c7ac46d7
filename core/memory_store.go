package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTokenStore keeps token records in process. Expiry is left to the
// tokenizer, so the ttl argument is ignored.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	data    map[uuid.UUID]CardToken
	byToken map[string]uuid.UUID
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		data:    make(map[uuid.UUID]CardToken),
		byToken: make(map[string]uuid.UUID),
	}
}

func (s *MemoryTokenStore) Save(_ context.Context, t CardToken, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[t.ID] = t
	s.byToken[t.Token] = t.ID
	return nil
}

func (s *MemoryTokenStore) GetByToken(_ context.Context, token string) (*CardToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	t := s.data[id]
	return &t, nil
}

func (s *MemoryTokenStore) Deactivate(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data[id]
	if !ok {
		return ErrNotFound
	}
	t.IsActive = false
	s.data[id] = t
	return nil
}

// Get returns a token record by id, active or not.
func (s *MemoryTokenStore) Get(_ context.Context, id uuid.UUID) (*CardToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// MemoryStore holds payees, cooling configuration and transactions for tests
// and single-process deployments.
type MemoryStore struct {
	mu           sync.RWMutex
	payees       map[uuid.UUID]Payee
	configs      map[Rail]CoolingConfig
	transactions map[uuid.UUID]TransactionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payees:       make(map[uuid.UUID]Payee),
		configs:      make(map[Rail]CoolingConfig),
		transactions: make(map[uuid.UUID]TransactionRecord),
	}
}

func (s *MemoryStore) SavePayee(_ context.Context, p Payee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payees[p.ID] = p
	return nil
}

func (s *MemoryStore) GetPayee(_ context.Context, id uuid.UUID) (*Payee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payees[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) MarkFirstUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payees[id]
	if !ok {
		return ErrNotFound
	}
	if p.FirstUsedAt != nil {
		return nil
	}
	p.FirstUsedAt = &at
	s.payees[id] = p
	return nil
}

func (s *MemoryStore) SetCoolingConfig(cfg CoolingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Rail] = cfg
}

func (s *MemoryStore) GetCoolingConfig(_ context.Context, rail Rail) (*CoolingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[rail]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (s *MemoryStore) SaveTransaction(_ context.Context, tx TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = tx
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id uuid.UUID) (*TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tx, nil
}

func (s *MemoryStore) MarkSettled(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return ErrNotFound
	}
	if tx.Status != TransactionPending {
		return ErrAlreadySettled
	}
	tx.Status = TransactionSettled
	tx.SettledAt = &at
	s.transactions[id] = tx
	return nil
}

func (s *MemoryStore) SentAmounts(_ context.Context, userID string, since time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for _, tx := range s.transactions {
		if tx.UserID == userID && !tx.CreatedAt.Before(since) {
			out = append(out, tx.AmountMinor)
		}
	}
	return out, nil
}
