package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	// Aggregator Gateway relay. All quote, status, catalog, and
	// execution-preparation calls go through this single host.
	GatewayBaseURL = "https://gateway.crosspay.xyz/v1"

	QuotePath   = "/quote"
	StatusPath  = "/status"
	ConfigPath  = "/config"
	PreparePath = "/prepare"
	SubmitPath  = "/submit"
)

// sponsoredChains is the static allow-list of destination chains where
// smart-account execution is fee-sponsored by the paymaster.
var sponsoredChains = map[string]bool{
	"eip155:8453":  true, // Base
	"eip155:137":   true, // Polygon
	"eip155:42161": true, // Arbitrum
}

// IsSponsoredChain reports whether transfers to the chain execute
// gaslessly through the sponsored smart-account path.
func IsSponsoredChain(caip2 string) bool {
	return sponsoredChains[strings.TrimSpace(caip2)]
}

// SponsoredChains returns a copy of the allow-list for display.
func SponsoredChains() []string {
	out := make([]string, 0, len(sponsoredChains))
	for chain := range sponsoredChains {
		out = append(out, chain)
	}
	return out
}

// IsAllowedGatewayURL accepts the canonical gateway host plus loopback
// overrides used in tests and local development.
func IsAllowedGatewayURL(endpoint string) bool {
	if strings.TrimSpace(endpoint) == "" {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	host := strings.TrimSpace(parsed.Hostname())
	if host == "" {
		return false
	}
	if isLoopbackHost(host) {
		scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
		return scheme == "" || scheme == "http" || scheme == "https"
	}
	return strings.EqualFold(strings.TrimSpace(parsed.Scheme), "https")
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
