package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// OpenPostgres opens a pool and waits for the database to accept connections.
func OpenPostgres(ctx context.Context, dsn string, attempts int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				db.Close()
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	db.Close()
	return nil, fmt.Errorf("ping postgres: %w", err)
}

// PostgresStore implements every persistence port on one database. Row-level
// access control is left to the database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SavePayee(ctx context.Context, p Payee) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payees (id, user_id, name, sort_code, account_number, is_favourite, first_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_favourite = EXCLUDED.is_favourite`,
		p.ID, p.UserID, p.Name, p.SortCode, p.AccountNumber, p.IsFavourite, p.FirstUsedAt, p.CreatedAt)
	return err
}

func (s *PostgresStore) GetPayee(ctx context.Context, id uuid.UUID) (*Payee, error) {
	var (
		p         Payee
		firstUsed pq.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, sort_code, account_number, is_favourite, first_used_at, created_at
		FROM payees WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.Name, &p.SortCode, &p.AccountNumber, &p.IsFavourite, &firstUsed, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if firstUsed.Valid {
		p.FirstUsedAt = &firstUsed.Time
	}
	return &p, nil
}

func (s *PostgresStore) MarkFirstUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payees SET first_used_at = $2 WHERE id = $1 AND first_used_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM payees WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) GetCoolingConfig(ctx context.Context, rail Rail) (*CoolingConfig, error) {
	var cfg CoolingConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT rail, cooling_hours, is_active FROM payee_cooling_config WHERE rail = $1`, string(rail)).
		Scan(&cfg.Rail, &cfg.CoolingHours, &cfg.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresStore) SaveTransaction(ctx context.Context, tx TransactionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (id, user_id, payee_id, amount_minor, fee, rail, reference, cop_result, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, tx.UserID, tx.PayeeID, tx.AmountMinor, tx.Fee, string(tx.Rail), tx.Reference,
		string(tx.CoPResult), string(tx.Status), tx.CreatedAt)
	return err
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id uuid.UUID) (*TransactionRecord, error) {
	var (
		tx      TransactionRecord
		settled pq.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, payee_id, amount_minor, fee, rail, reference, cop_result, status, created_at, settled_at
		FROM payment_transactions WHERE id = $1`, id).
		Scan(&tx.ID, &tx.UserID, &tx.PayeeID, &tx.AmountMinor, &tx.Fee, &tx.Rail, &tx.Reference,
			&tx.CoPResult, &tx.Status, &tx.CreatedAt, &settled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if settled.Valid {
		tx.SettledAt = &settled.Time
	}
	return &tx, nil
}

func (s *PostgresStore) MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_transactions SET status = $2, settled_at = $3
		WHERE id = $1 AND status = $4`,
		id, string(TransactionSettled), at, string(TransactionPending))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.GetTransaction(ctx, id); err != nil {
		return err
	}
	return ErrAlreadySettled
}

func (s *PostgresStore) SentAmounts(ctx context.Context, userID string, since time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT amount_minor FROM payment_transactions WHERE user_id = $1 AND created_at >= $2`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Save ignores ttl; expiry is enforced from expires_at at read time.
func (s *PostgresStore) Save(ctx context.Context, t CardToken, _ time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_tokens (id, user_id, token, card_id, token_type, last_four, expiry_month, expiry_year, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.UserID, t.Token, t.CardID, string(t.TokenType), t.LastFour,
		t.ExpiryMonth, t.ExpiryYear, t.IsActive, t.CreatedAt, t.ExpiresAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("token collision: %w", err)
	}
	return err
}

const cardTokenColumns = `id, user_id, token, card_id, token_type, last_four, expiry_month, expiry_year, is_active, created_at, expires_at`

func (s *PostgresStore) GetByToken(ctx context.Context, token string) (*CardToken, error) {
	return scanCardToken(s.db.QueryRowContext(ctx,
		`SELECT `+cardTokenColumns+` FROM card_tokens WHERE token = $1`, token))
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*CardToken, error) {
	return scanCardToken(s.db.QueryRowContext(ctx,
		`SELECT `+cardTokenColumns+` FROM card_tokens WHERE id = $1`, id))
}

func scanCardToken(row *sql.Row) (*CardToken, error) {
	var (
		t           CardToken
		month, year sql.NullInt32
		expiresAt   pq.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.CardID, &t.TokenType, &t.LastFour,
		&month, &year, &t.IsActive, &t.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if month.Valid {
		m := int(month.Int32)
		t.ExpiryMonth = &m
	}
	if year.Valid {
		y := int(year.Int32)
		t.ExpiryYear = &y
	}
	if expiresAt.Valid {
		t.ExpiresAt = &expiresAt.Time
	}
	return &t, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE card_tokens SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, priv Privilege, entry AccessLogEntry) error {
	if err := priv.require(ScopePCIAudit); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pci_access_logs (id, actor_id, card_id, token_id, access_type, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ActorID, entry.CardID, entry.TokenID, string(entry.AccessType), entry.Reason, entry.CreatedAt)
	return err
}
