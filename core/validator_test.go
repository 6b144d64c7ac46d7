package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateSortCode(t *testing.T) {
	cases := []struct {
		in    string
		valid bool
		want  string
	}{
		{"123456", true, "12-34-56"},
		{"12-34-56", true, "12-34-56"},
		{" 12 34 56 ", true, "12-34-56"},
		{"12-34-5", false, ""},
		{"1234567", false, ""},
		{"12a456", false, ""},
		{"", false, ""},
	}
	for _, tc := range cases {
		got := ValidateSortCode(tc.in)
		if got.Valid != tc.valid {
			t.Fatalf("ValidateSortCode(%q) valid = %v, want %v", tc.in, got.Valid, tc.valid)
		}
		if got.Formatted != tc.want {
			t.Fatalf("ValidateSortCode(%q) = %q, want %q", tc.in, got.Formatted, tc.want)
		}
		if !tc.valid && got.Error == "" {
			t.Fatalf("ValidateSortCode(%q) expected an error message", tc.in)
		}
	}
}

func TestValidateAccountNumber(t *testing.T) {
	cases := []struct {
		in    string
		valid bool
		want  string
	}{
		{"123456", true, "00123456"},
		{"1234567", true, "01234567"},
		{"12345678", true, "12345678"},
		{"1234-5678", true, "12345678"},
		{"12345", false, ""},
		{"123456789", false, ""},
		{"12345x78", false, ""},
	}
	for _, tc := range cases {
		got := ValidateAccountNumber(tc.in)
		if got.Valid != tc.valid || got.Formatted != tc.want {
			t.Fatalf("ValidateAccountNumber(%q) = %+v, want valid=%v %q", tc.in, got, tc.valid, tc.want)
		}
		if got.Valid && len(got.Formatted) != 8 {
			t.Fatalf("ValidateAccountNumber(%q) returned %d digits", tc.in, len(got.Formatted))
		}
	}
}

func TestModulusCheck(t *testing.T) {
	res := ModulusCheck("12-34-56", "1234567")
	if !res.Valid {
		t.Fatalf("expected valid, got %+v", res)
	}
	if res.AccountNumber != "01234567" || res.SortCode != "12-34-56" {
		t.Fatalf("unexpected canonical forms %+v", res)
	}
	// 12345601234567 against [0,0,0,0,0,0,2,1,2,1,2,1,2,1]:
	// 0+1+4+3+8+5+(12-9)+7
	if res.WeightedSum != 31 {
		t.Fatalf("expected weighted sum 31, got %d", res.WeightedSum)
	}
	if res.Mode != ModulusFormatOnly {
		t.Fatalf("expected format-only mode, got %q", res.Mode)
	}
}

func TestModulusCheckPropagatesFailures(t *testing.T) {
	if res := ModulusCheck("12-34", "12345678"); res.Valid || res.Error != ValidateSortCode("12-34").Error {
		t.Fatalf("expected sort code error, got %+v", res)
	}
	if res := ModulusCheck("12-34-56", "123"); res.Valid || res.Error != ValidateAccountNumber("123").Error {
		t.Fatalf("expected account number error, got %+v", res)
	}
}

func TestValidateAmount(t *testing.T) {
	cases := []struct {
		in    string
		valid bool
	}{
		{"10", true},
		{"10.5", true},
		{"10.50", true},
		{"0.01", true},
		{"0", false},
		{"-1", false},
		{"10.505", false},
		{"10.500", true},
	}
	for _, tc := range cases {
		got := ValidateAmount(decimal.RequireFromString(tc.in))
		if got.Valid != tc.valid {
			t.Fatalf("ValidateAmount(%s) valid = %v, want %v", tc.in, got.Valid, tc.valid)
		}
	}
}
