package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ModulusFormatOnly marks a modulus result that checked digit structure only.
// The real Vocalink weight tables are licensed and change quarterly, so a
// passing result here does not prove the account exists.
const ModulusFormatOnly = "format_only"

var modulusWeights = [14]int{0, 0, 0, 0, 0, 0, 2, 1, 2, 1, 2, 1, 2, 1}

type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Formatted string `json:"formatted,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ModulusResult struct {
	Valid         bool   `json:"valid"`
	SortCode      string `json:"sort_code,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	WeightedSum   int    `json:"weighted_sum"`
	Mode          string `json:"mode"`
	Error         string `json:"error,omitempty"`
}

func stripSeparators(input string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateSortCode accepts "123456", "12-34-56" or "12 34 56" and returns the
// canonical "12-34-56" form.
func ValidateSortCode(input string) ValidationResult {
	digits := stripSeparators(input)
	if len(digits) != 6 || !allDigits(digits) {
		return ValidationResult{Error: "Sort code must be 6 digits"}
	}
	return ValidationResult{
		Valid:     true,
		Formatted: digits[0:2] + "-" + digits[2:4] + "-" + digits[4:6],
	}
}

// ValidateAccountNumber accepts 6 to 8 digits and left-pads to 8.
func ValidateAccountNumber(input string) ValidationResult {
	digits := stripSeparators(input)
	if len(digits) < 6 || len(digits) > 8 || !allDigits(digits) {
		return ValidationResult{Error: "Account number must be 6-8 digits"}
	}
	return ValidationResult{
		Valid:     true,
		Formatted: strings.Repeat("0", 8-len(digits)) + digits,
	}
}

// ModulusCheck validates both identifiers and computes the weighted digit sum
// over the 14-digit sort code + account number sequence. The sum is not
// compared against any bank table: see ModulusFormatOnly.
func ModulusCheck(sortCode, accountNumber string) ModulusResult {
	sc := ValidateSortCode(sortCode)
	if !sc.Valid {
		return ModulusResult{Mode: ModulusFormatOnly, Error: sc.Error}
	}
	acc := ValidateAccountNumber(accountNumber)
	if !acc.Valid {
		return ModulusResult{Mode: ModulusFormatOnly, Error: acc.Error}
	}

	combined := strings.ReplaceAll(sc.Formatted, "-", "") + acc.Formatted
	if len(combined) != len(modulusWeights) {
		return ModulusResult{Mode: ModulusFormatOnly, Error: "Invalid account details"}
	}

	sum := 0
	for i, r := range combined {
		product := int(r-'0') * modulusWeights[i]
		if product > 9 {
			product -= 9
		}
		sum += product
	}

	return ModulusResult{
		Valid:         true,
		SortCode:      sc.Formatted,
		AccountNumber: acc.Formatted,
		WeightedSum:   sum,
		Mode:          ModulusFormatOnly,
	}
}

// ValidateAmount requires a positive amount in pounds with at most two
// decimal places.
func ValidateAmount(amount decimal.Decimal) ValidationResult {
	if !amount.IsPositive() {
		return ValidationResult{Error: "Amount must be greater than zero"}
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return ValidationResult{Error: "Amount cannot have more than 2 decimal places"}
	}
	return ValidationResult{Valid: true, Formatted: fmt.Sprintf("£%s", amount.StringFixed(2))}
}
