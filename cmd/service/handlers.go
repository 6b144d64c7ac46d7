package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tunaaoguzhann/payrail/core"
)

type server struct {
	payments  *core.PaymentService
	cop       *core.CoPChecker
	tokenizer *core.Tokenizer
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

func (s *server) routes(jwtSecret string, requestLimit int, requestWindow time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.logger))
	r.Use(rateLimit(requestLimit, requestWindow))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Group(func(api chi.Router) {
		api.Use(jwtAuth(jwtSecret))
		api.Post("/accounts/validate", s.handleValidateAccount)
		api.Post("/payees", s.handleAddPayee)
		api.Get("/payees/{id}/cooling", s.handleCoolingCheck)
		api.Post("/cop/check", s.handleCoPCheck)
		api.Post("/rails/select", s.handleSelectRail)
		api.Post("/payments", s.handleSubmitPayment)
		api.Get("/payments/total", s.handleTotalSent)
		api.Post("/payments/{id}/settle", s.handleSettlePayment)
		api.Post("/cards/{id}/tokens", s.handleTokenize)
		api.Post("/tokens/resolve", s.handleDetokenize)
		api.Delete("/tokens/{id}", s.handleRevoke)
	})
	return r
}

type accountRequest struct {
	SortCode      string `json:"sort_code"`
	AccountNumber string `json:"account_number"`
}

func (s *server) handleValidateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, core.ModulusCheck(req.SortCode, req.AccountNumber))
}

type addPayeeRequest struct {
	Name          string `json:"name"`
	SortCode      string `json:"sort_code"`
	AccountNumber string `json:"account_number"`
}

func (s *server) handleAddPayee(w http.ResponseWriter, r *http.Request) {
	var req addPayeeRequest
	if !decode(w, r, &req) {
		return
	}
	payee, v, err := s.payments.AddPayee(r.Context(), actorFrom(r.Context()), req.Name, req.SortCode, req.AccountNumber)
	if err != nil {
		s.internalError(w, "add payee", err)
		return
	}
	if !v.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, v)
		return
	}
	writeJSON(w, http.StatusCreated, payee)
}

func (s *server) handleCoolingCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	rail := core.Rail(r.URL.Query().Get("rail"))
	if rail == "" {
		rail = core.RailFPS
	}
	if !rail.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown rail")
		return
	}
	res, err := s.payments.CoolingStatus(r.Context(), actorFrom(r.Context()), id, rail)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "payee not found")
		return
	}
	if err != nil {
		s.internalError(w, "cooling check", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type copRequest struct {
	SortCode      string `json:"sort_code"`
	AccountNumber string `json:"account_number"`
	Name          string `json:"name"`
}

type copResponse struct {
	Check  core.CoPCheck  `json:"check"`
	Prompt core.CoPPrompt `json:"prompt"`
}

func (s *server) handleCoPCheck(w http.ResponseWriter, r *http.Request) {
	var req copRequest
	if !decode(w, r, &req) {
		return
	}
	check := s.cop.ConfirmPayee(r.Context(), req.SortCode, req.AccountNumber, req.Name)
	writeJSON(w, http.StatusOK, copResponse{
		Check:  check,
		Prompt: core.CoPMessage(check.Result, check.MatchedName),
	})
}

type railRequest struct {
	Amount decimal.Decimal `json:"amount"`
	core.RailOptions
}

func (s *server) handleSelectRail(w http.ResponseWriter, r *http.Request) {
	var req railRequest
	if !decode(w, r, &req) {
		return
	}
	if v := core.ValidateAmount(req.Amount); !v.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, v)
		return
	}
	writeJSON(w, http.StatusOK, core.SelectPaymentRailAt(req.Amount, req.RailOptions, s.now().In(s.location)))
}

type paymentRequest struct {
	PayeeID   uuid.UUID       `json:"payee_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Internal  bool            `json:"is_internal"`
	Urgent    bool            `json:"is_urgent"`
	Bulk      bool            `json:"is_bulk"`
}

func (s *server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.payments.Submit(r.Context(), core.PaymentRequest{
		UserID:    actorFrom(r.Context()),
		PayeeID:   req.PayeeID,
		Amount:    req.Amount,
		Reference: req.Reference,
		Internal:  req.Internal,
		Urgent:    req.Urgent,
		Bulk:      req.Bulk,
	})
	if err != nil {
		s.internalError(w, "submit payment", err)
		return
	}
	status := http.StatusCreated
	if !out.Accepted {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}

func (s *server) handleSettlePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	tx, err := s.payments.ConfirmSettlement(r.Context(), settlementPrivilege(r.Context()), id)
	if errors.Is(err, core.ErrPrivilegeRequired) {
		writeError(w, http.StatusForbidden, "forbidden", "not permitted")
		return
	}
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "transaction not found")
		return
	}
	if err != nil {
		s.internalError(w, "settle payment", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type totalResponse struct {
	Since time.Time       `json:"since"`
	Total decimal.Decimal `json:"total"`
}

// handleTotalSent sums the caller's payments since ?since= (RFC 3339),
// defaulting to the last 24 hours.
func (s *server) handleTotalSent(w http.ResponseWriter, r *http.Request) {
	since := s.now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "since must be RFC 3339")
			return
		}
		since = t
	}
	total, err := s.payments.TotalSent(r.Context(), actorFrom(r.Context()), since)
	if err != nil {
		s.internalError(w, "total sent", err)
		return
	}
	writeJSON(w, http.StatusOK, totalResponse{Since: since, Total: total})
}

// settlementPrivilege grants settlement scopes to back-office callers only.
// Anyone else gets a privilege with no scopes, which ConfirmSettlement refuses.
func settlementPrivilege(ctx context.Context) core.Privilege {
	actor := actorFrom(ctx)
	if roleFrom(ctx) != opsRole {
		return core.NewPrivilege(actor)
	}
	return core.NewPrivilege(actor, core.ScopeSettlement, core.ScopePayeeWrite)
}

type tokenizeRequest struct {
	LastFour    string         `json:"last_four"`
	TokenType   core.TokenType `json:"token_type"`
	ExpiryMonth *int           `json:"expiry_month,omitempty"`
	ExpiryYear  *int           `json:"expiry_year,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

func (s *server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	var req tokenizeRequest
	if !decode(w, r, &req) {
		return
	}
	actor := actorFrom(r.Context())
	token, err := s.tokenizer.TokenizeCard(r.Context(), cardPrivilege(actor), core.TokenizeRequest{
		UserID:      actor,
		CardID:      chi.URLParam(r, "id"),
		LastFour:    req.LastFour,
		TokenType:   req.TokenType,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		Reason:      req.Reason,
	})
	if err != nil {
		writeTokenError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

type detokenizeRequest struct {
	Token string `json:"token"`
}

func (s *server) handleDetokenize(w http.ResponseWriter, r *http.Request) {
	var req detokenizeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	actor := actorFrom(r.Context())
	token, err := s.tokenizer.Detokenize(r.Context(), cardPrivilege(actor), req.Token)
	if err == nil && token.UserID != actor {
		err = core.ErrNotFound
	}
	if err != nil {
		writeTokenError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	actor := actorFrom(r.Context())
	if err := s.tokenizer.RevokeOwnedToken(r.Context(), cardPrivilege(actor), actor, id); err != nil {
		writeTokenError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func cardPrivilege(actor string) core.Privilege {
	return core.NewPrivilege(actor, core.ScopeCardTokens, core.ScopePCIAudit)
}

func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "token not found")
	case errors.Is(err, core.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, core.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, core.ErrPrivilegeRequired):
		writeError(w, http.StatusForbidden, "forbidden", "not permitted")
	default:
		writeError(w, http.StatusInternalServerError, "tokenization_failed", core.ErrTokenizationFailed.Error())
	}
}

func (s *server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
		return false
	}
	return true
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
