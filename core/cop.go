package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"
)

type CoPResult string

const (
	CoPMatch       CoPResult = "match"
	CoPCloseMatch  CoPResult = "close_match"
	CoPNoMatch     CoPResult = "no_match"
	CoPUnavailable CoPResult = "unavailable"
)

func parseCoPResult(s string) (CoPResult, bool) {
	switch r := CoPResult(strings.ToLower(strings.TrimSpace(s))); r {
	case CoPMatch, CoPCloseMatch, CoPNoMatch:
		return r, true
	}
	return CoPUnavailable, false
}

type CoPCheck struct {
	Result CoPResult `json:"result"`
	// MatchedName is the account name held by the receiving bank, when known.
	MatchedName string `json:"matched_name,omitempty"`
	Message     string `json:"message"`
}

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

type CoPPrompt struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	CanProceed  bool     `json:"can_proceed"`
}

// PayeeRegistry looks up the account holder name with the receiving bank.
// Any error is reported to the user as "unavailable".
type PayeeRegistry interface {
	Lookup(ctx context.Context, req RegistryRequest) (RegistryResponse, error)
}

type CoPChecker struct {
	registry PayeeRegistry
	logger   *slog.Logger
}

func NewCoPChecker(registry PayeeRegistry, logger *slog.Logger) *CoPChecker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CoPChecker{registry: registry, logger: logger}
}

// NormalizePayeeName trims, lowercases and drops anything that is not a
// letter, digit or space.
func NormalizePayeeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			return r
		}
		return -1
	}, name)
}

func (c *CoPChecker) ConfirmPayee(ctx context.Context, sortCode, accountNumber, providedName string) CoPCheck {
	name := NormalizePayeeName(providedName)
	if strings.TrimSpace(sortCode) == "" || strings.TrimSpace(accountNumber) == "" || strings.TrimSpace(name) == "" {
		return unavailableCheck()
	}
	if c.registry == nil {
		return unavailableCheck()
	}

	resp, err := c.registry.Lookup(ctx, RegistryRequest{
		SortCode:      sortCode,
		AccountNumber: accountNumber,
		Name:          name,
	})
	if err != nil {
		c.logger.Warn("payee registry lookup failed", "sort_code", sortCode, "error", err)
		return unavailableCheck()
	}

	result, ok := parseCoPResult(resp.Result)
	if !ok {
		if resp.Result != "" || resp.AccountName == "" {
			c.logger.Warn("payee registry returned unknown result", "result", resp.Result)
			return unavailableCheck()
		}
		result = ClassifyName(name, resp.AccountName)
	}

	prompt := CoPMessage(result, resp.AccountName)
	return CoPCheck{Result: result, MatchedName: resp.AccountName, Message: prompt.Description}
}

func unavailableCheck() CoPCheck {
	return CoPCheck{
		Result:  CoPUnavailable,
		Message: CoPMessage(CoPUnavailable, "").Description,
	}
}

// ClassifyName compares a provided payee name with the name held by the bank.
// Reordered words, or initials that agree with the held forenames under the
// same surname, count as a close match.
func ClassifyName(provided, held string) CoPResult {
	p := strings.Fields(NormalizePayeeName(provided))
	h := strings.Fields(NormalizePayeeName(held))
	if len(p) == 0 || len(h) == 0 {
		return CoPNoMatch
	}
	if strings.Join(p, " ") == strings.Join(h, " ") {
		return CoPMatch
	}
	if sameWords(p, h) {
		return CoPCloseMatch
	}
	if p[len(p)-1] == h[len(h)-1] && initialsAgree(p[:len(p)-1], h[:len(h)-1]) {
		return CoPCloseMatch
	}
	return CoPNoMatch
}

func sameWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func initialsAgree(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i][0] != b[i][0] {
			return false
		}
		if len(a[i]) > 1 && len(b[i]) > 1 && a[i] != b[i] {
			return false
		}
	}
	return true
}

func CoPMessage(result CoPResult, matchedName string) CoPPrompt {
	switch result {
	case CoPMatch:
		return CoPPrompt{
			Title:       "Name matches",
			Description: "The account name matches the details you entered.",
			Severity:    SeveritySuccess,
			CanProceed:  true,
		}
	case CoPCloseMatch:
		desc := "The name you entered is similar to the name on the account."
		if matchedName != "" {
			desc = fmt.Sprintf("The name on the account is %q. Check this is who you want to pay.", matchedName)
		}
		return CoPPrompt{
			Title:       "Close match",
			Description: desc,
			Severity:    SeverityWarning,
			CanProceed:  true,
		}
	case CoPNoMatch:
		desc := "The name you entered does not match the name on the account."
		if matchedName != "" {
			desc = fmt.Sprintf("The name on the account is %q, which does not match the name you entered.", matchedName)
		}
		return CoPPrompt{
			Title:       "Name does not match",
			Description: desc,
			Severity:    SeverityError,
			CanProceed:  false,
		}
	default:
		return CoPPrompt{
			Title:       "Unable to check name",
			Description: "We couldn't confirm the account name. Please verify the payee details manually before sending.",
			Severity:    SeverityInfo,
			CanProceed:  true,
		}
	}
}

// StaticRegistry answers lookups from an in-memory table of account names.
// Unknown accounts are reported as errors.
type StaticRegistry struct {
	mu       sync.RWMutex
	accounts map[string]string
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{accounts: make(map[string]string)}
}

func registryKey(sortCode, accountNumber string) string {
	sc := ValidateSortCode(sortCode)
	acc := ValidateAccountNumber(accountNumber)
	if sc.Valid && acc.Valid {
		return sc.Formatted + "/" + acc.Formatted
	}
	return sortCode + "/" + accountNumber
}

func (r *StaticRegistry) Add(sortCode, accountNumber, accountName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[registryKey(sortCode, accountNumber)] = accountName
}

func (r *StaticRegistry) Lookup(_ context.Context, req RegistryRequest) (RegistryResponse, error) {
	r.mu.RLock()
	held, ok := r.accounts[registryKey(req.SortCode, req.AccountNumber)]
	r.mu.RUnlock()
	if !ok {
		return RegistryResponse{}, fmt.Errorf("account %s: %w", registryKey(req.SortCode, req.AccountNumber), ErrNotFound)
	}
	return RegistryResponse{
		Result:      string(ClassifyName(req.Name, held)),
		AccountName: held,
	}, nil
}
