package domain

import "strings"

// CanonicalSymbols is the symbol set tracked by the scheduled tasks.
var CanonicalSymbols = []string{
	"BTCUSDT",
	"ETHUSDT",
	"CAKEUSDT",
	"AVAXUSDT",
	"SUIUSDT",
	"SEIUSDT",
	"1000PEPEUSDT",
}

// quoteAssets are stripped from pair symbols to recover the base asset.
var quoteAssets = []string{"USDT", "USDC", "BUSD", "USD"}

// NormalizeSymbol upper-cases and trims a symbol so that equivalent spellings compare equal.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// BaseAsset returns the base asset of a pair symbol and the contract multiplier.
// "1000PEPEUSDT" quotes 1000 PEPE per contract, so it returns ("PEPE", 1000).
func BaseAsset(symbol string) (string, float64) {
	s := NormalizeSymbol(symbol)
	for _, q := range quoteAssets {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			s = strings.TrimSuffix(s, q)
			break
		}
	}

	multiplier := 1.0
	for _, prefix := range []struct {
		text string
		mult float64
	}{
		{"1000000", 1_000_000},
		{"1000", 1000},
	} {
		if strings.HasPrefix(s, prefix.text) && len(s) > len(prefix.text) {
			s = strings.TrimPrefix(s, prefix.text)
			multiplier = prefix.mult
			break
		}
	}
	return s, multiplier
}

// DisplayName is the label shown to users, e.g. "PEPE" for "1000PEPEUSDT".
func DisplayName(symbol string) string {
	s := NormalizeSymbol(symbol)
	if strings.HasPrefix(s, "1000") {
		base, _ := BaseAsset(s)
		return base
	}
	return s
}
