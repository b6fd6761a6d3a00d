package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/id"
	"github.com/ggonzalez94/crosspay/internal/registry"
)

const (
	EnvPrivateKey           = "CROSSPAY_PRIVATE_KEY"
	EnvPrivateKeyFile       = "CROSSPAY_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "CROSSPAY_KEYSTORE_PATH"
	EnvKeystorePassword     = "CROSSPAY_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "CROSSPAY_KEYSTORE_PASSWORD_FILE"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultPrivateKeyRelativePath = "crosspay/key.hex"
)

// LocalChannel is a Channel backed by a locally held EVM key. It keeps
// an active chain and refuses to submit transactions for any other
// network, mirroring how an injected wallet behaves.
type LocalChannel struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	rpcURL     string

	mu     sync.Mutex
	active id.Chain

	dial func(ctx context.Context, rawURL string) (*ethclient.Client, error)
}

type LocalChannelConfig struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
	RPCURL               string
}

func NewLocalChannel(cfg LocalChannelConfig) (*LocalChannel, error) {
	pk, err := loadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	return &LocalChannel{
		privateKey: pk,
		address:    crypto.PubkeyToAddress(*pub),
		rpcURL:     strings.TrimSpace(cfg.RPCURL),
		dial:       ethclient.DialContext,
	}, nil
}

// NewLocalChannelFromEnv resolves the signing key the same way across
// every command: explicit source narrows the candidates, auto keeps
// env > file > keystore precedence.
func NewLocalChannelFromEnv(source, rpcURL string) (*LocalChannel, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = KeySourceAuto
	}
	cfg := LocalChannelConfig{
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
		RPCURL:               rpcURL,
	}
	if cfg.PrivateKeyFile == "" {
		cfg.PrivateKeyFile = discoverDefaultPrivateKeyFile()
	}

	switch source {
	case KeySourceAuto:
		// Keep all candidates; loadPrivateKey applies precedence.
	case KeySourceEnv:
		cfg.PrivateKeyFile, cfg.KeystorePath, cfg.KeystorePassword, cfg.KeystorePasswordFile = "", "", "", ""
	case KeySourceFile:
		cfg.PrivateKeyHex, cfg.KeystorePath, cfg.KeystorePassword, cfg.KeystorePasswordFile = "", "", "", ""
	case KeySourceKeystore:
		cfg.PrivateKeyHex, cfg.PrivateKeyFile = "", ""
	default:
		return nil, fmt.Errorf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore)
	}
	return NewLocalChannel(cfg)
}

func (c *LocalChannel) Address() common.Address { return c.address }

func (c *LocalChannel) Accounts(ctx context.Context) ([]string, error) {
	return []string{c.address.Hex()}, nil
}

func (c *LocalChannel) ActiveChain(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active.CAIP2 == "" {
		return "", nil
	}
	return c.active.CAIP2, nil
}

// SwitchChain points the channel at another EVM network. Non-EVM chains
// cannot be served by a local key channel.
func (c *LocalChannel) SwitchChain(ctx context.Context, chainID string) error {
	chain, err := id.ParseChain(chainID)
	if err != nil {
		return clierr.Wrap(clierr.ClassValidation, "switch chain", err)
	}
	if !chain.IsEVM() {
		return clierr.New(clierr.ClassNetworkLimitation,
			fmt.Sprintf("local wallet channel cannot operate on %s", chain.CAIP2))
	}
	c.mu.Lock()
	c.active = chain
	c.mu.Unlock()
	return nil
}

// SignMessage signs with the EIP-191 personal-message prefix and
// returns the 0x-prefixed 65-byte signature.
func (c *LocalChannel) SignMessage(ctx context.Context, message []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), c.privateKey)
	if err != nil {
		return "", clierr.Wrap(clierr.ClassSigningRejected, "sign message", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SendTransaction builds, signs, and broadcasts an EIP-1559 transaction
// on the active network, then returns the transaction hash without
// waiting for inclusion. A spec for a network the channel is not
// switched to is rejected as a network mismatch.
func (c *LocalChannel) SendTransaction(ctx context.Context, tx TxSpec) (string, error) {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active.EVMChainID == 0 {
		return "", clierr.New(clierr.ClassNetworkMismatch, "wallet channel has no active network")
	}
	if tx.ChainID != 0 && tx.ChainID != active.EVMChainID {
		return "", clierr.New(clierr.ClassNetworkMismatch,
			fmt.Sprintf("wallet is on eip155:%d but the transaction targets eip155:%d", active.EVMChainID, tx.ChainID))
	}

	rpcURL, err := registry.ResolveRPCURL(c.rpcURL, active.EVMChainID)
	if err != nil {
		return "", clierr.Wrap(clierr.ClassValidation, "resolve rpc url", err)
	}
	client, err := c.dial(ctx, rpcURL)
	if err != nil {
		return "", clierr.Wrap(clierr.ClassProviderUnavailable, "connect rpc", err)
	}
	defer client.Close()

	signed, err := c.buildAndSign(ctx, client, active.EVMChainID, tx)
	if err != nil {
		return "", err
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", clierr.Classify(fmt.Errorf("broadcast transaction: %w", err))
	}
	return signed.Hash().Hex(), nil
}

func (c *LocalChannel) buildAndSign(ctx context.Context, client *ethclient.Client, chainID int64, tx TxSpec) (*types.Transaction, error) {
	target := common.HexToAddress(tx.To)
	data, err := decodeHex(tx.Data)
	if err != nil {
		return nil, clierr.Wrap(clierr.ClassValidation, "decode transaction calldata", err)
	}
	value := big.NewInt(0)
	if strings.TrimSpace(tx.Value) != "" {
		parsed, ok := new(big.Int).SetString(strings.TrimSpace(tx.Value), 10)
		if !ok {
			return nil, clierr.New(clierr.ClassValidation, "invalid transaction value")
		}
		value = parsed
	}

	gasLimit, err := resolveGasLimit(ctx, client, tx.GasLimit, ethereum.CallMsg{
		From:  c.address,
		To:    &target,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, err
	}

	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.ClassProviderUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, clierr.Wrap(clierr.ClassProviderUnavailable, "fetch nonce", err)
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(big.NewInt(chainID)), c.privateKey)
	if err != nil {
		return nil, clierr.Wrap(clierr.ClassSigningRejected, "sign transaction", err)
	}
	return signed, nil
}

func resolveGasLimit(ctx context.Context, client *ethclient.Client, override string, msg ethereum.CallMsg) (uint64, error) {
	if strings.TrimSpace(override) != "" {
		v, ok := new(big.Int).SetString(strings.TrimSpace(override), 10)
		if !ok || !v.IsUint64() {
			return 0, clierr.New(clierr.ClassValidation, "invalid gas limit")
		}
		return v.Uint64(), nil
	}
	estimate, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, clierr.Classify(fmt.Errorf("estimate gas: %w", err))
	}
	return uint64(float64(estimate) * 1.2), nil
}

func loadPrivateKey(cfg LocalChannelConfig) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(cfg.PrivateKeyHex) != "" {
		return parseHexKey(cfg.PrivateKeyHex)
	}
	if strings.TrimSpace(cfg.PrivateKeyFile) != "" {
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	}
	if strings.TrimSpace(cfg.KeystorePath) != "" {
		password := cfg.KeystorePassword
		if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
			buf, err := os.ReadFile(cfg.KeystorePasswordFile)
			if err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
			password = strings.TrimSpace(string(buf))
		}
		if strings.TrimSpace(password) == "" {
			return nil, errors.New("keystore password is required")
		}
		buf, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		key, err := keystore.DecryptKey(buf, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt keystore: %w", err)
		}
		return key.PrivateKey, nil
	}
	return nil, fmt.Errorf("missing signing key: set %s or %s or %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath)
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func discoverDefaultPrivateKeyFile() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	path := filepath.Join(base, defaultPrivateKeyRelativePath)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}

// GatewaySponsor submits sponsored operations through the aggregator
// gateway relay. The relay runs the provider routine server-side, so
// the CLI only forwards the opaque payload.
type GatewaySponsor struct {
	Submit func(ctx context.Context, chainID string, payload json.RawMessage) (string, error)
}

func (g *GatewaySponsor) SubmitOperation(ctx context.Context, chainID string, payload json.RawMessage) (string, error) {
	if g == nil || g.Submit == nil {
		return "", clierr.New(clierr.ClassProviderUnavailable, "sponsored execution is not configured")
	}
	return g.Submit(ctx, chainID, payload)
}
