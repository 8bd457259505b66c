package bet

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"10", 6, "10000000", false},
		{"10.5", 6, "10500000", false},
		{" 0.000001 ", 6, "1", false},
		{"1.0000005", 6, "1000001", false}, // rounded to token precision
		{"1", 18, "1000000000000000000", false},
		{"0", 6, "", true},
		{"-1", 6, "", true},
		{"0.0000001", 6, "", true}, // rounds to zero
		{"ten", 6, "", true},
		{"", 6, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAmount(tt.amount, tt.decimals)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("err = %v, want ErrInvalidAmount", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestMinOdds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		total    string
		slippage string
		want     string
	}{
		{"two at five percent", "2.0", "5", "1.95"},
		{"no slippage", "1.85", "0", "1.85"},
		{"full slippage", "3.5", "100", "1"},
		{"combo", "3.42", "10", "3.178"},
		{"odds below one floor", "0.5", "0", "1"},
		{"rounded to odds precision", "1.3333333333333333", "1", "1.33"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MinOdds(decimal.RequireFromString(tt.total), decimal.RequireFromString(tt.slippage), 12)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("MinOdds(%s, %s) = %s, want %s", tt.total, tt.slippage, got, tt.want)
			}
		})
	}
}

func TestExpiresAt(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	if got := ExpiresAt(now, 0, 300*time.Second); got != 1_700_000_300 {
		t.Errorf("default deadline: got %d, want 1700000300", got)
	}
	if got := ExpiresAt(now, time.Minute, 300*time.Second); got != 1_700_000_060 {
		t.Errorf("override deadline: got %d, want 1700000060", got)
	}
}
