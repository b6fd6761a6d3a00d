package id

import (
	"testing"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
)

func TestParseChain(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"ethereum", "eip155:1"},
		{"Mainnet", "eip155:1"},
		{"base", "eip155:8453"},
		{"eip155:42161", "eip155:42161"},
		{"137", "eip155:137"},
		{"eip155:7777", "eip155:7777"},
		{"tron", "tron:mainnet"},
	}
	for _, tc := range cases {
		chain, err := ParseChain(tc.input)
		if err != nil {
			t.Fatalf("ParseChain(%q) failed: %v", tc.input, err)
		}
		if chain.CAIP2 != tc.want {
			t.Fatalf("ParseChain(%q) = %s, want %s", tc.input, chain.CAIP2, tc.want)
		}
	}
}

func TestParseChainRejectsGarbage(t *testing.T) {
	_, err := ParseChain("not-a-chain")
	if err == nil {
		t.Fatal("expected error")
	}
	if clierr.ClassOf(err) != clierr.ClassUnsupportedChain {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}

	_, err = ParseChain("   ")
	if clierr.ClassOf(err) != clierr.ClassValidation {
		t.Fatalf("empty input should be a validation error, got %s", clierr.ClassOf(err))
	}
}

func TestChainNamespace(t *testing.T) {
	evm, _ := ParseChain("base")
	if !evm.IsEVM() || evm.Namespace() != "eip155" {
		t.Fatalf("base should be an EVM chain, got namespace %q", evm.Namespace())
	}
	sol, _ := ParseChain("solana")
	if sol.IsEVM() {
		t.Fatal("solana should not be EVM")
	}
}

func TestValidAddress(t *testing.T) {
	evm, _ := ParseChain("ethereum")
	sol, _ := ParseChain("solana")
	trx, _ := ParseChain("tron")

	cases := []struct {
		chain Chain
		addr  string
		want  bool
	}{
		{evm, "0x28C6c06298d514Db089934071355E5743bf21d60", true},
		{evm, "0x28C6c06298d514Db089934071355E5743bf21d6", false},
		{evm, "28C6c06298d514Db089934071355E5743bf21d60", false},
		{evm, "", false},
		{sol, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", true},
		{sol, "0x28C6c06298d514Db089934071355E5743bf21d60", false},
		{trx, "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE", true},
		{trx, "AQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE", false},
	}
	for _, tc := range cases {
		if got := ValidAddress(tc.chain, tc.addr); got != tc.want {
			t.Fatalf("ValidAddress(%s, %q) = %v, want %v", tc.chain.CAIP2, tc.addr, got, tc.want)
		}
	}
}
