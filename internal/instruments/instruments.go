// Package instruments maps human-readable NSE symbols to Angel One symbol
// tokens. The table is static for the process lifetime; unknown symbols
// resolve to absent and the caller must treat that as a hard failure.
package instruments

import (
	"sort"
	"strings"
)

// defaultTokens is the built-in NSE symbol master subset.
var defaultTokens = map[string]string{
	"NIFTY":      "99926000",
	"BANKNIFTY":  "99926009",
	"RELIANCE":   "2885",
	"TCS":        "11536",
	"INFY":       "1594",
	"HDFCBANK":   "1333",
	"ICICIBANK":  "4963",
	"SBIN":       "3045",
	"ITC":        "424",
	"HINDUNILVR": "356",
}

// Resolver performs case-insensitive exact-match symbol → token lookups.
type Resolver struct {
	tokens map[string]string
}

// New builds a resolver from the built-in table merged with optional
// overrides. Override keys are uppercased so lookups stay case-insensitive.
func New(overrides map[string]string) *Resolver {
	t := make(map[string]string, len(defaultTokens)+len(overrides))
	for k, v := range defaultTokens {
		t[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			t[strings.ToUpper(k)] = v
		}
	}
	return &Resolver{tokens: t}
}

// Resolve returns the broker token for a symbol, or ok=false if unknown.
func (r *Resolver) Resolve(symbol string) (token string, ok bool) {
	token, ok = r.tokens[strings.ToUpper(symbol)]
	return token, ok
}

// Symbols returns the known symbols, sorted. Used by the service descriptor.
func (r *Resolver) Symbols() []string {
	syms := make([]string, 0, len(r.tokens))
	for s := range r.tokens {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}
