package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStage string

const (
	StageAmount  PaymentStage = "amount"
	StagePayee   PaymentStage = "payee"
	StageAccount PaymentStage = "account"
	StageCoP     PaymentStage = "confirmation_of_payee"
	StageCooling PaymentStage = "cooling_period"
)

type PaymentRequest struct {
	UserID    string          `json:"user_id"`
	PayeeID   uuid.UUID       `json:"payee_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	Internal  bool            `json:"is_internal"`
	Urgent    bool            `json:"is_urgent"`
	Bulk      bool            `json:"is_bulk"`
}

// PaymentOutcome carries every check that ran. When Accepted is false,
// StoppedAt names the check that refused the payment and later checks are nil.
type PaymentOutcome struct {
	Accepted    bool               `json:"accepted"`
	StoppedAt   PaymentStage       `json:"stopped_at,omitempty"`
	Message     string             `json:"message,omitempty"`
	Account     *ModulusResult     `json:"account,omitempty"`
	CoP         *CoPCheck          `json:"cop,omitempty"`
	CoPPrompt   *CoPPrompt         `json:"cop_prompt,omitempty"`
	Cooling     *CoolingResult     `json:"cooling,omitempty"`
	Rail        *RailSelection     `json:"rail,omitempty"`
	Transaction *TransactionRecord `json:"transaction,omitempty"`
}

type PaymentService struct {
	payees       PayeeStore
	transactions TransactionStore
	cop          *CoPChecker
	cooling      *CoolingGate
	location     *time.Location
	now          func() time.Time
	logger       *slog.Logger
}

type PaymentServiceConfig struct {
	Payees       PayeeStore
	Transactions TransactionStore
	CoP          *CoPChecker
	Cooling      *CoolingGate
	// Location is the zone the CHAPS cutoff is read in. Defaults to Europe/London.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

func NewPaymentService(cfg PaymentServiceConfig) (*PaymentService, error) {
	if cfg.Payees == nil || cfg.Transactions == nil {
		return nil, fmt.Errorf("payee and transaction stores are required")
	}
	if cfg.CoP == nil || cfg.Cooling == nil {
		return nil, fmt.Errorf("cop checker and cooling gate are required")
	}
	loc := cfg.Location
	if loc == nil {
		loc = defaultRailLocation
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PaymentService{
		payees:       cfg.Payees,
		transactions: cfg.Transactions,
		cop:          cfg.CoP,
		cooling:      cfg.Cooling,
		location:     loc,
		now:          nowFn,
		logger:       logger,
	}, nil
}

// AddPayee stores a payee with canonical sort code and account number.
func (s *PaymentService) AddPayee(ctx context.Context, userID, name, sortCode, accountNumber string) (Payee, ValidationResult, error) {
	if NormalizePayeeName(name) == "" {
		return Payee{}, ValidationResult{Error: "Payee name is required"}, nil
	}
	check := ModulusCheck(sortCode, accountNumber)
	if !check.Valid {
		return Payee{}, ValidationResult{Error: check.Error}, nil
	}
	p := Payee{
		ID:            uuid.New(),
		UserID:        userID,
		Name:          name,
		SortCode:      check.SortCode,
		AccountNumber: check.AccountNumber,
		CreatedAt:     s.now(),
	}
	if err := s.payees.SavePayee(ctx, p); err != nil {
		return Payee{}, ValidationResult{}, fmt.Errorf("save payee: %w", err)
	}
	return p, ValidationResult{Valid: true}, nil
}

// Submit runs the checks in a fixed order and stops at the first refusal:
// amount, account details, Confirmation of Payee, cooling period, then rail
// selection. Only an accepted payment is written, as a pending record.
func (s *PaymentService) Submit(ctx context.Context, req PaymentRequest) (PaymentOutcome, error) {
	if v := ValidateAmount(req.Amount); !v.Valid {
		return PaymentOutcome{StoppedAt: StageAmount, Message: v.Error}, nil
	}

	payee, err := s.payees.GetPayee(ctx, req.PayeeID)
	if errors.Is(err, ErrNotFound) || (err == nil && payee.UserID != "" && payee.UserID != req.UserID) {
		return PaymentOutcome{StoppedAt: StagePayee, Message: "Payee not found"}, nil
	}
	if err != nil {
		return PaymentOutcome{}, fmt.Errorf("load payee: %w", err)
	}

	var out PaymentOutcome
	account := ModulusCheck(payee.SortCode, payee.AccountNumber)
	out.Account = &account
	if !account.Valid {
		out.StoppedAt, out.Message = StageAccount, account.Error
		return out, nil
	}

	if !req.Internal {
		check := s.cop.ConfirmPayee(ctx, account.SortCode, account.AccountNumber, payee.Name)
		prompt := CoPMessage(check.Result, check.MatchedName)
		out.CoP, out.CoPPrompt = &check, &prompt
		if !prompt.CanProceed {
			out.StoppedAt, out.Message = StageCoP, prompt.Description
			return out, nil
		}
	}

	// Selection is pure, so taking it before the cooling check only fixes the
	// rail the cooling policy is read for. It is not reported until cooling passes.
	now := s.now().In(s.location)
	selection := SelectPaymentRailAt(req.Amount, RailOptions{
		IsInternal: req.Internal,
		IsUrgent:   req.Urgent,
		IsBulk:     req.Bulk,
	}, now)

	cooling, err := s.cooling.CheckCoolingPeriod(ctx, payee.ID, selection.Rail)
	if err != nil {
		return PaymentOutcome{}, err
	}
	out.Cooling = &cooling
	if !cooling.Allowed {
		out.StoppedAt, out.Message = StageCooling, cooling.Reason
		return out, nil
	}
	out.Rail = &selection

	tx := TransactionRecord{
		ID:          uuid.New(),
		UserID:      req.UserID,
		PayeeID:     payee.ID,
		AmountMinor: ToMinorUnits(req.Amount),
		Fee:         selection.Fee,
		Rail:        selection.Rail,
		Reference:   req.Reference,
		Status:      TransactionPending,
		CreatedAt:   now,
	}
	if out.CoP != nil {
		tx.CoPResult = out.CoP.Result
	}
	if err := s.transactions.SaveTransaction(ctx, tx); err != nil {
		return PaymentOutcome{}, fmt.Errorf("save transaction: %w", err)
	}
	s.logger.Info("payment accepted",
		"transaction_id", tx.ID,
		"rail", tx.Rail,
		"amount_minor", tx.AmountMinor,
	)

	out.Accepted = true
	out.Transaction = &tx
	return out, nil
}

// ConfirmSettlement marks a pending payment settled and only then records the
// payee's first use. It is a back-office action: priv must hold
// ScopeSettlement as well as ScopePayeeWrite. Confirming an already settled
// payment repeats the payee update, which is a no-op once first_used_at is set.
func (s *PaymentService) ConfirmSettlement(ctx context.Context, priv Privilege, txID uuid.UUID) (*TransactionRecord, error) {
	if err := priv.require(ScopeSettlement); err != nil {
		return nil, err
	}
	tx, err := s.transactions.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	err = s.transactions.MarkSettled(ctx, txID, s.now())
	if err != nil && !errors.Is(err, ErrAlreadySettled) {
		return nil, fmt.Errorf("settle transaction: %w", err)
	}
	if err := s.cooling.MarkPayeeFirstUsed(ctx, priv, tx.PayeeID); err != nil {
		return nil, err
	}
	return s.transactions.GetTransaction(ctx, txID)
}

// CoolingStatus reports the cooling state of one of the user's payees. A payee
// owned by someone else is reported as ErrNotFound.
func (s *PaymentService) CoolingStatus(ctx context.Context, userID string, payeeID uuid.UUID, rail Rail) (CoolingResult, error) {
	payee, err := s.payees.GetPayee(ctx, payeeID)
	if err != nil {
		return CoolingResult{}, err
	}
	if payee.UserID != userID {
		return CoolingResult{}, ErrNotFound
	}
	return s.cooling.CheckCoolingPeriod(ctx, payeeID, rail)
}

// TotalSent sums a user's payments since the given time in integer pence.
func (s *PaymentService) TotalSent(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	amounts, err := s.transactions.SentAmounts(ctx, userID, since)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load sent amounts: %w", err)
	}
	return FromMinorUnits(SumMinorUnits(amounts)), nil
}
