package wallet

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
)

// Throwaway key, never funded.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestChannel(t *testing.T) *LocalChannel {
	t.Helper()
	ch, err := NewLocalChannel(LocalChannelConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return ch
}

func TestNewLocalChannelDerivesAddress(t *testing.T) {
	ch := newTestChannel(t)
	if ch.Address().Hex() != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("address = %s", ch.Address().Hex())
	}
	accts, err := ch.Accounts(context.Background())
	if err != nil || len(accts) != 1 || accts[0] != ch.Address().Hex() {
		t.Fatalf("accounts = %v, %v", accts, err)
	}
}

func TestParseHexKey(t *testing.T) {
	if _, err := parseHexKey("0x" + testKeyHex); err != nil {
		t.Fatalf("0x prefix should be accepted: %v", err)
	}
	if _, err := parseHexKey("  " + testKeyHex + "\n"); err != nil {
		t.Fatalf("surrounding whitespace should be tolerated: %v", err)
	}
	for _, bad := range []string{"", "0x", "zz", "1234"} {
		if _, err := parseHexKey(bad); err == nil {
			t.Fatalf("parseHexKey(%q) should fail", bad)
		}
	}
}

func TestLoadPrivateKeyFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.hex")
	if err := os.WriteFile(path, []byte("0x"+testKeyHex+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	ch, err := NewLocalChannel(LocalChannelConfig{PrivateKeyFile: path})
	if err != nil {
		t.Fatalf("channel from file: %v", err)
	}
	if ch.Address().Hex() != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("address = %s", ch.Address().Hex())
	}
}

func TestLoadPrivateKeyPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.hex")
	// A different valid key; the env hex must win over it.
	other := "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	if err := os.WriteFile(path, []byte(other), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	ch, err := NewLocalChannel(LocalChannelConfig{PrivateKeyHex: testKeyHex, PrivateKeyFile: path})
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	if ch.Address().Hex() != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("hex key should take precedence, address = %s", ch.Address().Hex())
	}
}

func TestNewLocalChannelFromEnvNarrowsSource(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvPrivateKey, testKeyHex)
	t.Setenv(EnvPrivateKeyFile, "")
	t.Setenv(EnvKeystorePath, "")
	t.Setenv(EnvKeystorePassword, "")
	t.Setenv(EnvKeystorePasswordFile, "")

	if _, err := NewLocalChannelFromEnv("env", ""); err != nil {
		t.Fatalf("env source failed: %v", err)
	}
	// Narrowing to file drops the env key, and no file exists.
	if _, err := NewLocalChannelFromEnv("file", ""); err == nil {
		t.Fatal("file source without a key file should fail")
	}
	if _, err := NewLocalChannelFromEnv("telepathy", ""); err == nil {
		t.Fatal("unknown source should be rejected")
	}
}

func TestMissingKeyNamesTheEnvVars(t *testing.T) {
	_, err := NewLocalChannel(LocalChannelConfig{})
	if err == nil {
		t.Fatal("expected missing key failure")
	}
	if !strings.Contains(err.Error(), EnvPrivateKey) {
		t.Fatalf("error should name the env vars: %v", err)
	}
}

func TestSignMessageIsEIP191(t *testing.T) {
	ch := newTestChannel(t)
	msg := []byte("crosspay transfer confirmation")
	sigHex, err := ch.SignMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		t.Fatalf("signature not 0x hex: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Fatalf("recovery id = %d, want 27 or 28", v)
	}

	recover := make([]byte, 65)
	copy(recover, sig)
	recover[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), recover)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != ch.Address() {
		t.Fatal("signature does not recover to the channel address")
	}
}

func TestSwitchChainRejectsNonEVM(t *testing.T) {
	ch := newTestChannel(t)
	err := ch.SwitchChain(context.Background(), "tron")
	if clierr.ClassOf(err) != clierr.ClassNetworkLimitation {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}

	if err := ch.SwitchChain(context.Background(), "eip155:8453"); err != nil {
		t.Fatalf("evm switch failed: %v", err)
	}
	active, err := ch.ActiveChain(context.Background())
	if err != nil || active != "eip155:8453" {
		t.Fatalf("active = %s, %v", active, err)
	}
}

func TestSendTransactionRequiresMatchingNetwork(t *testing.T) {
	ch := newTestChannel(t)

	_, err := ch.SendTransaction(context.Background(), TxSpec{ChainID: 1})
	if clierr.ClassOf(err) != clierr.ClassNetworkMismatch {
		t.Fatalf("no active network: unexpected class %s", clierr.ClassOf(err))
	}

	if err := ch.SwitchChain(context.Background(), "eip155:8453"); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	_, err = ch.SendTransaction(context.Background(), TxSpec{ChainID: 1})
	if clierr.ClassOf(err) != clierr.ClassNetworkMismatch {
		t.Fatalf("wrong target chain: unexpected class %s", clierr.ClassOf(err))
	}
}

func TestDecodeHex(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"0x", ""},
		{"0xdeadbeef", "deadbeef"},
		{"deadbeef", "deadbeef"},
		{"0xabc", "0abc"},
	}
	for _, tc := range cases {
		buf, err := decodeHex(tc.in)
		if err != nil {
			t.Fatalf("decodeHex(%q) failed: %v", tc.in, err)
		}
		if got := hexutil.Encode(buf); got != "0x"+tc.want && !(tc.want == "" && got == "0x") {
			t.Fatalf("decodeHex(%q) = %s, want 0x%s", tc.in, got, tc.want)
		}
	}
	if _, err := decodeHex("0xzz"); err == nil {
		t.Fatal("invalid hex should fail")
	}
}

func TestGatewaySponsorDelegates(t *testing.T) {
	var gotChain string
	sponsor := &GatewaySponsor{Submit: func(ctx context.Context, chainID string, payload json.RawMessage) (string, error) {
		gotChain = chainID
		return "0xop", nil
	}}
	hash, err := sponsor.SubmitOperation(context.Background(), "eip155:137", json.RawMessage(`{}`))
	if err != nil || hash != "0xop" {
		t.Fatalf("submit = %s, %v", hash, err)
	}
	if gotChain != "eip155:137" {
		t.Fatalf("chain = %s", gotChain)
	}

	var unset *GatewaySponsor
	_, err = unset.SubmitOperation(context.Background(), "eip155:137", nil)
	if clierr.ClassOf(err) != clierr.ClassProviderUnavailable {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}
}
