package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/gateway"
	"github.com/ggonzalez94/crosspay/internal/model"
)

// Provider serves the catalog configuration. *gateway.Client satisfies it.
type Provider interface {
	Config(ctx context.Context, scope string) (gateway.CatalogConfig, error)
}

// Catalog is the loaded chain/token matrix. It is immutable after Load;
// callers reload explicitly when they want fresh data. Absence of a
// catalog means nothing is selectable, never "everything".
type Catalog struct {
	chains        []model.ChainEntry
	tokensByChain map[string][]model.TokenEntry
	// restrictions[chain][tokenIn][tokenOut] marks a same-chain pair the
	// aggregator refuses to convert.
	restrictions map[string]map[string]map[string]bool
}

// Load fetches the matrix once for the session. Any provider failure is
// classified CatalogUnavailable.
func Load(ctx context.Context, provider Provider, scope string) (*Catalog, error) {
	cfg, err := provider.Config(ctx, scope)
	if err != nil {
		if typed, ok := clierr.As(err); ok && typed.Class == clierr.ClassCatalogUnavailable {
			return nil, err
		}
		return nil, clierr.Wrap(clierr.ClassCatalogUnavailable, "load chain/token catalog", err)
	}
	return FromConfig(cfg), nil
}

// FromConfig builds a catalog from an already-fetched configuration,
// e.g. a cached snapshot.
func FromConfig(cfg gateway.CatalogConfig) *Catalog {
	unsupportedChain := make(map[string]bool, len(cfg.UnsupportedChains))
	for _, id := range cfg.UnsupportedChains {
		unsupportedChain[id] = true
	}
	unsupportedToken := make(map[string]map[string]bool)
	for _, pair := range cfg.UnsupportedTokens {
		if unsupportedToken[pair.Chain] == nil {
			unsupportedToken[pair.Chain] = make(map[string]bool)
		}
		unsupportedToken[pair.Chain][pair.Token] = true
	}

	restrictions := make(map[string]map[string]map[string]bool)
	for chain, pairs := range cfg.SameChainSwapRestrictions {
		byIn := make(map[string]map[string]bool)
		for _, p := range pairs {
			if byIn[p.TokenIn] == nil {
				byIn[p.TokenIn] = make(map[string]bool)
			}
			byIn[p.TokenIn][p.TokenOut] = true
		}
		restrictions[chain] = byIn
	}

	chains := make([]model.ChainEntry, 0, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		chains = append(chains, model.ChainEntry{
			ID:                    ch.ID,
			DisplayName:           ch.DisplayName,
			SupportedCounterparts: ch.Counterparts,
			IsSupported:           !unsupportedChain[ch.ID],
			HasRestriction:        len(restrictions[ch.ID]) > 0,
		})
	}

	tokensByChain := make(map[string][]model.TokenEntry, len(cfg.TokensByChain))
	for chainID, tokens := range cfg.TokensByChain {
		entries := make([]model.TokenEntry, 0, len(tokens))
		for _, tok := range tokens {
			restricted := false
			if byIn, ok := restrictions[chainID]; ok {
				if len(byIn[tok.ID]) > 0 {
					restricted = true
				} else {
					for _, outs := range byIn {
						if outs[tok.ID] {
							restricted = true
							break
						}
					}
				}
			}
			entries = append(entries, model.TokenEntry{
				ID:                    tok.ID,
				DisplayName:           tok.DisplayName,
				Decimals:              tok.Decimals,
				SupportedCounterparts: tok.Counterparts,
				IsSupported:           !unsupportedChain[chainID] && !unsupportedToken[chainID][tok.ID],
				HasRestriction:        restricted,
			})
		}
		tokensByChain[chainID] = entries
	}

	return &Catalog{
		chains:        chains,
		tokensByChain: tokensByChain,
		restrictions:  restrictions,
	}
}

// Chains returns every known chain in canonical order.
func (c *Catalog) Chains() []model.ChainEntry {
	out := make([]model.ChainEntry, len(c.chains))
	copy(out, c.chains)
	rankChains(out)
	return out
}

// HasChain reports whether the chain exists in the matrix at all,
// supported or not.
func (c *Catalog) HasChain(chainID string) bool {
	for _, ch := range c.chains {
		if ch.ID == chainID {
			return true
		}
	}
	return false
}

// TokenDecimals returns the configured decimals for a token on a chain.
func (c *Catalog) TokenDecimals(chainID, tokenID string) (int, bool) {
	for _, tok := range c.tokensByChain[chainID] {
		if tok.ID == tokenID {
			return tok.Decimals, true
		}
	}
	return 0, false
}

// TokenSupported reports whether the token is selectable on the chain.
func (c *Catalog) TokenSupported(chainID, tokenID string) bool {
	for _, tok := range c.tokensByChain[chainID] {
		if tok.ID == tokenID {
			return tok.IsSupported
		}
	}
	return false
}

// FilterTokensForChain is a pure function over the loaded matrix: every
// token known for the chain comes back, unsupported ones marked rather
// than removed. Supported-and-compatible entries rank first, ties broken
// alphabetically by display name.
func (c *Catalog) FilterTokensForChain(chainID string) []model.TokenEntry {
	tokens := c.tokensByChain[chainID]
	out := make([]model.TokenEntry, len(tokens))
	copy(out, tokens)
	sort.SliceStable(out, func(i, j int) bool {
		si := out[i].IsSupported && len(out[i].SupportedCounterparts) > 0
		sj := out[j].IsSupported && len(out[j].SupportedCounterparts) > 0
		if si != sj {
			return si
		}
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out
}

// FilterChainsForToken returns every chain, marking those where the
// token is unavailable or unsupported. Same ranking contract as
// FilterTokensForChain.
func (c *Catalog) FilterChainsForToken(tokenID string) []model.ChainEntry {
	out := make([]model.ChainEntry, 0, len(c.chains))
	for _, ch := range c.chains {
		entry := ch
		found := false
		for _, tok := range c.tokensByChain[ch.ID] {
			if tok.ID == tokenID {
				found = true
				entry.IsSupported = ch.IsSupported && tok.IsSupported
				entry.HasRestriction = ch.HasRestriction || tok.HasRestriction
				break
			}
		}
		if !found {
			entry.IsSupported = false
		}
		out = append(out, entry)
	}
	rankChains(out)
	return out
}

// CheckSameChainSwap fails fast, before any network call, when the
// catalog disallows converting tokenIn to tokenOut on one chain.
func (c *Catalog) CheckSameChainSwap(chainID, tokenIn, tokenOut string) error {
	if tokenIn == tokenOut {
		return nil
	}
	if byIn, ok := c.restrictions[chainID]; ok {
		if byIn[tokenIn][tokenOut] {
			return clierr.New(clierr.ClassNetworkLimitation,
				fmt.Sprintf("%s cannot be converted to %s on %s", tokenIn, tokenOut, chainID))
		}
	}
	return nil
}

func rankChains(entries []model.ChainEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		si := entries[i].IsSupported && len(entries[i].SupportedCounterparts) > 0
		sj := entries[j].IsSupported && len(entries[j].SupportedCounterparts) > 0
		if si != sj {
			return si
		}
		return strings.ToLower(entries[i].DisplayName) < strings.ToLower(entries[j].DisplayName)
	})
}
