package validation

import (
	"errors"
	"testing"
)

func TestNormalizeMSISDN(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
		valid bool
	}{
		{
			name:  "local format with leading zero",
			phone: "0712345678",
			want:  "254712345678",
			valid: true,
		},
		{
			name:  "local airtel style 01 prefix",
			phone: "0110345678",
			want:  "254110345678",
			valid: true,
		},
		{
			name:  "already international",
			phone: "254712345678",
			want:  "254712345678",
			valid: true,
		},
		{
			name:  "nine digits without zero",
			phone: "712345678",
			want:  "254712345678",
			valid: true,
		},
		{
			name:  "international with stray zero",
			phone: "2540712345678",
			want:  "254712345678",
			valid: true,
		},
		{
			name:  "with plus and spaces",
			phone: "+254 712 345 678",
			want:  "254712345678",
			valid: true,
		},
		{
			name:  "with dashes",
			phone: "0712-345-678",
			want:  "254712345678",
			valid: true,
		},
		{
			name:  "too short",
			phone: "12345",
			valid: false,
		},
		{
			name:  "wrong network prefix",
			phone: "0812345678",
			valid: false,
		},
		{
			name:  "empty",
			phone: "",
			valid: false,
		},
		{
			name:  "letters only",
			phone: "not-a-phone",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMSISDN(tt.phone)
			if tt.valid {
				if err != nil {
					t.Fatalf("NormalizeMSISDN(%q) error: %v", tt.phone, err)
				}
				if got != tt.want {
					t.Fatalf("NormalizeMSISDN(%q) = %q, want %q", tt.phone, got, tt.want)
				}
				return
			}
			if !errors.Is(err, ErrInvalidPhoneNumber) {
				t.Fatalf("NormalizeMSISDN(%q) error = %v, want ErrInvalidPhoneNumber", tt.phone, err)
			}
		})
	}
}

func TestIsValidMSISDN(t *testing.T) {
	tests := []struct {
		number string
		valid  bool
	}{
		{"254712345678", true},
		{"254110345678", true},
		{"254812345678", false},
		{"25471234567", false},
		{"0712345678", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidMSISDN(tt.number); got != tt.valid {
			t.Fatalf("IsValidMSISDN(%q) = %v, want %v", tt.number, got, tt.valid)
		}
	}
}
