// Package tokens holds the static token registry used to resolve mints into symbols and decimals.
package tokens

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const (
	// DefaultDecimals is applied to mints missing from the registry.
	DefaultDecimals = 6
	// UnknownSymbol marks a mint missing from the registry.
	UnknownSymbol = "UNKNOWN"
	// MaxDecimals bounds the decimals a registered token may declare.
	MaxDecimals = 9
)

// Well-known symbols.
const (
	CHAOS = "CHAOS"
	LOGOS = "LOGOS"
	USDC  = "USDC"
	USDT  = "USDT"
	SOL   = "SOL"
)

// Token describes a single SPL token.
type Token struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Mint     string `json:"mint" yaml:"mint"`
	Decimals int    `json:"decimals" yaml:"decimals"`
	// PriceID is the coin id sent to the simple-price API. Defaults to the mint, which routes
	// the token to the mint-keyed price API instead.
	PriceID string `json:"priceId,omitempty" yaml:"priceId"`
	// Pegged tokens are USD stablecoins priced at 1 without a request.
	Pegged bool `json:"pegged,omitempty" yaml:"pegged"`
}

// Known reports whether the token was resolved from the registry.
func (t Token) Known() bool {
	return t.Symbol != UnknownSymbol
}

// PublicKey parses the mint address.
func (t Token) PublicKey() (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(t.Mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("token %s mint: %w", t.Symbol, err)
	}
	return key, nil
}

// Builtin returns the default token table.
func Builtin() []Token {
	return []Token{
		{Symbol: CHAOS, Mint: "8SgNwESovnbG1oNEaPVhg6CR9mTMSK7jPvcYRe3wpump", Decimals: 6},
		{Symbol: LOGOS, Mint: "HJUfqXoYjC653f2p33i84zdCC3jc4EuVnbruSe5kpump", Decimals: 6},
		{Symbol: USDC, Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6, Pegged: true},
		{Symbol: USDT, Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6, Pegged: true},
		{Symbol: SOL, Mint: "So11111111111111111111111111111111111111112", Decimals: 9, PriceID: "solana"},
		{Symbol: "BONK", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5, PriceID: "bonk"},
		{Symbol: "RAY", Mint: "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", Decimals: 6, PriceID: "raydium"},
		{Symbol: "MSOL", Mint: "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So", Decimals: 9, PriceID: "msol"},
		{Symbol: "JITOSOL", Mint: "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn", Decimals: 9, PriceID: "jito-staked-sol"},
		{Symbol: "ORCA", Mint: "orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE", Decimals: 6, PriceID: "orca"},
		{Symbol: "MNGO", Mint: "MangoCzJ36AjZyKwVj3VnYU4GTonjfVEnJmvvWaxLac", Decimals: 6, PriceID: "mango-markets"},
		{Symbol: "DUAL", Mint: "DUALa4FC2yREwZ59PHeu1un4wis36vHRv5hWVHHHbLZp", Decimals: 6},
		{Symbol: "SHDW", Mint: "SHDWyBxihqiCj6YekG2GUr7wqKLeLAMK1gHZck9pL6y", Decimals: 9, PriceID: "genesysgo-shadow"},
	}
}

// Registry resolves tokens by mint or symbol. It is immutable after construction.
type Registry struct {
	byMint   map[string]Token
	bySymbol map[string]Token
}

// NewRegistry builds a registry from the builtin table plus extra entries.
// Extras override builtin entries sharing a symbol or mint.
func NewRegistry(extra ...Token) (*Registry, error) {
	r := &Registry{
		byMint:   make(map[string]Token),
		bySymbol: make(map[string]Token),
	}
	for _, tok := range append(Builtin(), extra...) {
		normalised, err := normalise(tok)
		if err != nil {
			return nil, err
		}
		if prev, ok := r.bySymbol[normalised.Symbol]; ok {
			delete(r.byMint, prev.Mint)
		}
		if prev, ok := r.byMint[normalised.Mint]; ok {
			delete(r.bySymbol, prev.Symbol)
		}
		r.byMint[normalised.Mint] = normalised
		r.bySymbol[normalised.Symbol] = normalised
	}
	return r, nil
}

// MustRegistry is NewRegistry for static tables; it panics on invalid entries.
func MustRegistry(extra ...Token) *Registry {
	r, err := NewRegistry(extra...)
	if err != nil {
		panic(err)
	}
	return r
}

func normalise(tok Token) (Token, error) {
	tok.Symbol = strings.ToUpper(strings.TrimSpace(tok.Symbol))
	tok.Mint = strings.TrimSpace(tok.Mint)
	tok.PriceID = strings.TrimSpace(tok.PriceID)
	if tok.Symbol == "" || tok.Symbol == UnknownSymbol {
		return Token{}, fmt.Errorf("token symbol %q is reserved or empty", tok.Symbol)
	}
	if _, err := solana.PublicKeyFromBase58(tok.Mint); err != nil {
		return Token{}, fmt.Errorf("token %s: invalid mint %q: %w", tok.Symbol, tok.Mint, err)
	}
	if tok.Decimals < 0 || tok.Decimals > MaxDecimals {
		return Token{}, fmt.Errorf("token %s: decimals must be within [0,%d]", tok.Symbol, MaxDecimals)
	}
	if tok.PriceID == "" {
		tok.PriceID = tok.Mint
	}
	return tok, nil
}

// ByMint resolves a mint. Unknown mints degrade to DefaultDecimals and UnknownSymbol.
func (r *Registry) ByMint(mint string) Token {
	if tok, ok := r.byMint[mint]; ok {
		return tok
	}
	return Token{Symbol: UnknownSymbol, Mint: mint, Decimals: DefaultDecimals, PriceID: mint}
}

// ByKey is ByMint for a decoded public key.
func (r *Registry) ByKey(key solana.PublicKey) Token {
	return r.ByMint(key.String())
}

// BySymbol resolves a symbol case-insensitively.
func (r *Registry) BySymbol(symbol string) (Token, bool) {
	tok, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return tok, ok
}

// Resolve looks up each symbol and fails on the first unknown one.
func (r *Registry) Resolve(symbols ...string) ([]Token, error) {
	out := make([]Token, 0, len(symbols))
	for _, symbol := range symbols {
		tok, ok := r.BySymbol(symbol)
		if !ok {
			return nil, fmt.Errorf("unknown token symbol %q", symbol)
		}
		out = append(out, tok)
	}
	return out, nil
}

// All lists registered tokens sorted by symbol.
func (r *Registry) All() []Token {
	out := make([]Token, 0, len(r.bySymbol))
	for _, tok := range r.bySymbol {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
