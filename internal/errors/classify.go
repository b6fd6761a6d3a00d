package errors

import "strings"

// marker maps a known provider error substring to a classification. The
// table is ordered: the first matching marker wins, so more specific
// phrases sit above generic transport noise.
type marker struct {
	substring string
	class     Class
}

var providerMarkers = []marker{
	// Route discovery / fee configuration gaps on the aggregator side.
	{"fee configuration not found", ClassRouteUnavailable},
	{"no fee configuration", ClassRouteUnavailable},
	{"no route found", ClassRouteUnavailable},
	{"route not available", ClassRouteUnavailable},
	{"no available quote", ClassRouteUnavailable},

	// Chain / token support.
	{"chain not supported", ClassUnsupportedChain},
	{"unsupported chain", ClassUnsupportedChain},
	{"unknown chain", ClassUnsupportedChain},
	{"token not supported", ClassUnsupportedToken},
	{"unsupported token", ClassUnsupportedToken},
	{"unknown token", ClassUnsupportedToken},
	{"asset not found", ClassUnsupportedToken},

	// Amount bounds.
	{"amount too small", ClassAmountTooSmall},
	{"amount too low", ClassAmountTooSmall},
	{"below minimum", ClassAmountTooSmall},
	{"minimum amount", ClassAmountTooSmall},

	// Wallet network disagreement. The aggregator reports this with a
	// recognizable phrase rather than a structured code.
	{"wrong network", ClassNetworkMismatch},
	{"wrong chain", ClassNetworkMismatch},
	{"chain mismatch", ClassNetworkMismatch},
	{"network mismatch", ClassNetworkMismatch},
	{"does not match the connected network", ClassNetworkMismatch},

	// User declined in the wallet.
	{"user rejected", ClassSigningRejected},
	{"user denied", ClassSigningRejected},
	{"rejected the request", ClassSigningRejected},
	{"signature was denied", ClassSigningRejected},

	// Stale quotes.
	{"quote expired", ClassQuoteExpired},
	{"quote is expired", ClassQuoteExpired},
	{"deadline exceeded for quote", ClassQuoteExpired},

	// Transport-level trouble.
	{"rate limit", ClassProviderUnavailable},
	{"too many requests", ClassProviderUnavailable},
	{"service unavailable", ClassProviderUnavailable},
	{"bad gateway", ClassProviderUnavailable},
	{"gateway timeout", ClassProviderUnavailable},
	{"connection refused", ClassProviderUnavailable},
	{"connection reset", ClassProviderUnavailable},
	{"no such host", ClassProviderUnavailable},
	{"i/o timeout", ClassProviderUnavailable},
	{"context deadline exceeded", ClassProviderUnavailable},
}

// Classify maps a raw provider or wallet error onto the taxonomy. It is
// total and deterministic: identical input text always yields the same
// class and remediation, and anything unmatched becomes ClassUnknown
// with the raw message preserved.
func Classify(raw error) *Error {
	if raw == nil {
		return nil
	}
	if typed, ok := As(raw); ok {
		return typed
	}

	text := strings.ToLower(raw.Error())
	for _, m := range providerMarkers {
		if strings.Contains(text, m.substring) {
			return Wrap(m.class, raw.Error(), raw)
		}
	}
	return Wrap(ClassUnknown, raw.Error(), raw)
}
