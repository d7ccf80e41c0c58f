package helper

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeSymbol strips venue-specific separators and suffixes so that
// "BTC-USDT-SWAP", "BTC_USDT" and "BTCUSDT" all compare equal.
func NormalizeSymbol(sym string) string {
	s := strings.ToUpper(sym)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.TrimSuffix(s, "SWAP")
	s = strings.TrimSuffix(s, "PERP")
	return s
}

// SymbolsMatch compares two exchange symbols tolerantly.
func SymbolsMatch(a, b string) bool {
	return NormalizeSymbol(a) == NormalizeSymbol(b)
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	return math.Ceil(px/tick) * tick
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	return math.Floor(px/tick) * tick
}

func FormatPrice(px float64) string {
	return strconv.FormatFloat(px, 'f', -1, 64)
}

func FormatSize(sz float64) string {
	return strconv.FormatFloat(sz, 'f', -1, 64)
}
