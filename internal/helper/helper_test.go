package helper

import (
	"math"
	"testing"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC-USDT-SWAP", "BTCUSDT"},
		{"BTC_USDT", "BTCUSDT"},
		{"btcusdt", "BTCUSDT"},
		{"ETH/USDT", "ETHUSDT"},
		{"ETH-USDT-PERP", "ETHUSDT"},
		{"SOLUSDT", "SOLUSDT"},
	}
	for _, tt := range tests {
		if got := NormalizeSymbol(tt.in); got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSymbolsMatch(t *testing.T) {
	if !SymbolsMatch("BTC-USDT-SWAP", "BTCUSDT") {
		t.Error("swap and spot spellings of the same pair must match")
	}
	if SymbolsMatch("BTC-USDT-SWAP", "ETH-USDT-SWAP") {
		t.Error("different pairs must not match")
	}
}

func TestRoundToTick(t *testing.T) {
	if got := RoundDownToTick(100.07, 0.05); math.Abs(got-100.05) > 1e-9 {
		t.Errorf("RoundDownToTick = %v, want 100.05", got)
	}
	if got := RoundUpToTick(100.07, 0.05); math.Abs(got-100.1) > 1e-9 {
		t.Errorf("RoundUpToTick = %v, want 100.1", got)
	}
	if got := RoundDownToTick(100.07, 0); got != 100.07 {
		t.Errorf("zero tick must pass through, got %v", got)
	}
}
