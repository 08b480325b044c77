package symbol

import "strings"

// Class is the instrument class derived from the requested symbol.
type Class int

const (
	Equity Class = iota
	Crypto
)

func (c Class) String() string {
	if c == Crypto {
		return "crypto"
	}
	return "equity"
}

// coingeckoIDs maps crypto tickers, with optional -EUR/-USD suffix, to
// CoinGecko coin ids. Membership here is what makes a symbol Crypto.
var coingeckoIDs = map[string]string{
	"BTC": "bitcoin", "BTC-EUR": "bitcoin", "BTC-USD": "bitcoin",
	"ETH": "ethereum", "ETH-EUR": "ethereum", "ETH-USD": "ethereum",
	"SOL": "solana", "SOL-EUR": "solana", "SOL-USD": "solana",
	"ADA": "cardano", "ADA-EUR": "cardano", "ADA-USD": "cardano",
	"XRP": "ripple", "XRP-EUR": "ripple", "XRP-USD": "ripple",
	"DOT": "polkadot", "DOT-EUR": "polkadot", "DOT-USD": "polkadot",
	"DOGE": "dogecoin", "DOGE-EUR": "dogecoin", "DOGE-USD": "dogecoin",
}

// suffixMap translates internal exchange suffixes to the spelling the
// chart-style providers expect.
var suffixMap = map[string]string{
	".DEX": ".DE",
}

// Classify decides the instrument class for a requested symbol.
// Unknown symbols default to Equity. Pure function of the string.
func Classify(sym string) Class {
	if _, ok := coingeckoIDs[sym]; ok {
		return Crypto
	}
	return Equity
}

// CoinGeckoID returns the CoinGecko coin id for a crypto symbol, or ""
// when the symbol is not covered.
func CoinGeckoID(sym string) string {
	return coingeckoIDs[sym]
}

// CryptoCurrency picks the pricing currency for a crypto symbol.
// Only an explicit -USD suffix selects usd; bare tickers and -EUR are eur.
func CryptoCurrency(sym string) string {
	if strings.HasSuffix(sym, "-USD") {
		return "usd"
	}
	return "eur"
}

// ForChart spells a symbol the way the Yahoo-style chart providers want
// it. Symbols that already carry a currency or exchange marker pass
// through; internal suffixes are translated; a bare crypto ticker is
// mapped to its USD pair.
func ForChart(sym string) string {
	for from, to := range suffixMap {
		if strings.HasSuffix(sym, from) {
			return strings.TrimSuffix(sym, from) + to
		}
	}
	if strings.Contains(sym, "-") || strings.Contains(sym, ".") {
		return sym
	}
	if Classify(sym) == Crypto {
		return sym + "-USD"
	}
	return sym
}

// ForStooq spells a symbol for the Stooq quote endpoint: lower case,
// with bare US listings getting the ".us" market suffix.
func ForStooq(sym string) string {
	s := strings.ToLower(ForChart(sym))
	if !strings.Contains(s, ".") {
		s += ".us"
	}
	return s
}

// StooqCurrency guesses the listing currency from a Stooq spelling.
// US listings quote in USD, everything else is assumed EUR-denominated.
func StooqCurrency(stooqSym string) string {
	if strings.HasSuffix(stooqSym, ".us") {
		return "USD"
	}
	return "EUR"
}

// Partition splits requested symbols by class, preserving order.
func Partition(symbols []string) (crypto, equity []string) {
	for _, s := range symbols {
		if Classify(s) == Crypto {
			crypto = append(crypto, s)
		} else {
			equity = append(equity, s)
		}
	}
	return crypto, equity
}
