package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tunaaoguzhann/payrail/core"
)

func main() {
	ctx := context.Background()

	store := core.NewMemoryStore()
	store.SetCoolingConfig(core.CoolingConfig{Rail: core.RailFPS, CoolingHours: 24, IsActive: true})

	registry := core.NewStaticRegistry()
	registry.Add("20-00-00", "55779911", "Jane Smith")

	// Pretend the payee was added two days ago so the cooling period has passed.
	now := time.Now()
	clock := func() time.Time { return now }

	payments, err := core.NewPaymentService(core.PaymentServiceConfig{
		Payees:       store,
		Transactions: store,
		CoP:          core.NewCoPChecker(registry, nil),
		Cooling:      core.NewCoolingGate(store, store, clock),
		Now:          clock,
	})
	if err != nil {
		log.Fatalf("Failed to create payment service: %v", err)
	}

	payee, check, err := payments.AddPayee(ctx, "user-123", "Jane Smith", "20 00 00", "55779911")
	if err != nil {
		log.Fatalf("Failed to add payee: %v", err)
	}
	if !check.Valid {
		log.Fatalf("Payee rejected: %s", check.Error)
	}
	payee.CreatedAt = now.Add(-48 * time.Hour)
	_ = store.SavePayee(ctx, payee)

	fmt.Printf("Added payee %s (%s %s)\n", payee.Name, payee.SortCode, payee.AccountNumber)

	out, err := payments.Submit(ctx, core.PaymentRequest{
		UserID:  "user-123",
		PayeeID: payee.ID,
		Amount:  decimal.RequireFromString("125.50"),
	})
	if err != nil {
		log.Fatalf("Failed to submit payment: %v", err)
	}
	if !out.Accepted {
		log.Fatalf("Payment stopped at %s: %s", out.StoppedAt, out.Message)
	}
	fmt.Printf("\nPayment accepted:\n")
	fmt.Printf("  Confirmation of Payee: %s\n", out.CoPPrompt.Title)
	fmt.Printf("  Rail: %s (%s)\n", out.Rail.DisplayName, out.Rail.EstimatedTime)
	fmt.Printf("  Reason: %s\n", out.Rail.Reason)
	fmt.Printf("  Transaction: %s\n", out.Transaction.ID)

	ops := core.NewPrivilege("settlement-worker", core.ScopeSettlement, core.ScopePayeeWrite)
	settled, err := payments.ConfirmSettlement(ctx, ops, out.Transaction.ID)
	if err != nil {
		log.Fatalf("Failed to confirm settlement: %v", err)
	}
	fmt.Printf("  Status: %s\n", settled.Status)

	sink := core.NewMemoryAccessLogSink()
	audit := core.NewAccessLog(core.AccessLogConfig{Sink: sink})
	tokenizer, err := core.NewTokenizerWithOptions(core.TokenizerOptions{AccessLog: audit})
	if err != nil {
		log.Fatalf("Failed to create tokenizer: %v", err)
	}

	priv := core.NewPrivilege("user-123", core.ScopeCardTokens, core.ScopePCIAudit)
	token, err := tokenizer.TokenizeCard(ctx, priv, core.TokenizeRequest{
		UserID:    "user-123",
		CardID:    "card-42",
		LastFour:  "4242",
		TokenType: core.TokenDisplay,
		Reason:    "show card in app",
	})
	if err != nil {
		log.Fatalf("Failed to tokenize card: %v", err)
	}
	fmt.Printf("\nIssued token %s, expires %s\n", token.Token, token.ExpiresAt.Format(time.RFC3339))

	resolved, err := tokenizer.Detokenize(ctx, priv, token.Token)
	if err != nil {
		log.Fatalf("Failed to resolve token: %v", err)
	}
	fmt.Printf("Resolved to card %s ending %s\n", resolved.CardID, resolved.LastFour)

	if err := tokenizer.RevokeToken(ctx, priv, token.ID); err != nil {
		log.Fatalf("Failed to revoke token: %v", err)
	}
	if _, err := tokenizer.Detokenize(ctx, priv, token.Token); err != nil {
		fmt.Printf("As expected, a revoked token no longer resolves: %v\n", err)
	}

	audit.Wait()
	fmt.Printf("\nAccess log:\n")
	for _, e := range sink.Entries() {
		fmt.Printf("  %s %s %s\n", e.CreatedAt.Format(time.RFC3339), e.ActorID, e.AccessType)
	}
}
