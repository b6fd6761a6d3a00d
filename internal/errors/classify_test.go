package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyKnownMarkers(t *testing.T) {
	cases := []struct {
		raw  string
		want Class
	}{
		{"Fee configuration not found for USDT on eip155:10", ClassRouteUnavailable},
		{"no route found for requested pair", ClassRouteUnavailable},
		{"chain not supported: eip155:999", ClassUnsupportedChain},
		{"Unknown token PEPE", ClassUnsupportedToken},
		{"amount too small for bridging", ClassAmountTooSmall},
		{"deposit below minimum", ClassAmountTooSmall},
		{"wallet is on the wrong network", ClassNetworkMismatch},
		{"chain mismatch between wallet and intent", ClassNetworkMismatch},
		{"User rejected the request", ClassSigningRejected},
		{"quote expired, please refresh", ClassQuoteExpired},
		{"503 service unavailable", ClassProviderUnavailable},
		{"dial tcp: connection refused", ClassProviderUnavailable},
		{"read tcp: i/o timeout", ClassProviderUnavailable},
		{"something entirely novel happened", ClassUnknown},
	}
	for _, tc := range cases {
		got := Classify(errors.New(tc.raw))
		if got.Class != tc.want {
			t.Fatalf("Classify(%q) class = %s, want %s", tc.raw, got.Class, tc.want)
		}
		if got.Remediation == "" {
			t.Fatalf("Classify(%q) returned empty remediation", tc.raw)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	raw := "no route found AND user rejected the request"
	first := Classify(errors.New(raw))
	for i := 0; i < 5; i++ {
		again := Classify(errors.New(raw))
		if again.Class != first.Class {
			t.Fatalf("classification changed between runs: %s vs %s", again.Class, first.Class)
		}
	}
	// Table order decides ties: route markers sit above wallet markers.
	if first.Class != ClassRouteUnavailable {
		t.Fatalf("expected first-match class %s, got %s", ClassRouteUnavailable, first.Class)
	}
}

func TestClassifyPreservesRawMessage(t *testing.T) {
	raw := errors.New("flux capacitor misaligned")
	typed := Classify(raw)
	if typed.Class != ClassUnknown {
		t.Fatalf("expected unknown class, got %s", typed.Class)
	}
	if typed.Message != "flux capacitor misaligned" {
		t.Fatalf("raw message not preserved: %q", typed.Message)
	}
	if !errors.Is(typed, raw) {
		t.Fatal("classified error should wrap the raw cause")
	}
}

func TestClassifyPassesThroughTypedErrors(t *testing.T) {
	original := New(ClassQuoteExpired, "stale quote")
	wrapped := fmt.Errorf("outer context: %w", original)
	typed := Classify(wrapped)
	if typed != original {
		t.Fatal("expected the original typed error back")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}
}
