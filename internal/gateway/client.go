package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/httpx"
	"github.com/ggonzalez94/crosspay/internal/model"
	"github.com/ggonzalez94/crosspay/internal/registry"
)

// Client talks to the Aggregator Gateway relay. Catalog loads retry with
// backoff (idempotent GET); quote, prepare, and status calls hit the
// network exactly once so superseding user edits stay cheap.
type Client struct {
	retrying *httpx.Client
	once     *httpx.Client
	baseURL  string
	apiKey   string
	now      func() time.Time
}

func New(baseURL, apiKey string, timeout time.Duration, retries int) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = registry.GatewayBaseURL
	}
	return &Client{
		retrying: httpx.New(timeout, retries),
		once:     httpx.New(timeout, 0),
		baseURL:  base,
		apiKey:   apiKey,
		now:      time.Now,
	}
}

// CatalogConfig is the chain/token matrix plus the unsupported-combination
// rules, as served by the gateway.
type CatalogConfig struct {
	Chains                    []ChainConfig               `json:"chains"`
	TokensByChain             map[string][]TokenConfig    `json:"tokensByChain"`
	UnsupportedTokens         []UnsupportedPair           `json:"unsupportedTokens"`
	UnsupportedChains         []string                    `json:"unsupportedChains"`
	SameChainSwapRestrictions map[string][]RestrictedPair `json:"sameChainSwapRestrictions"`
}

type ChainConfig struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"displayName"`
	Counterparts []string `json:"counterparts"`
}

type TokenConfig struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"displayName"`
	Decimals     int      `json:"decimals"`
	Counterparts []string `json:"counterparts"`
}

type UnsupportedPair struct {
	Token string `json:"token"`
	Chain string `json:"chain"`
}

type RestrictedPair struct {
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
}

// Config fetches the catalog configuration for a scope ("default",
// "testnet", ...).
func (c *Client) Config(ctx context.Context, scope string) (CatalogConfig, error) {
	vals := url.Values{}
	if strings.TrimSpace(scope) != "" {
		vals.Set("scope", strings.TrimSpace(scope))
	}
	endpoint := c.baseURL + registry.ConfigPath
	if encoded := vals.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CatalogConfig{}, clierr.Wrap(clierr.ClassUnknown, "build catalog request", err)
	}
	c.authorize(req)

	var resp CatalogConfig
	if _, err := c.retrying.DoJSON(ctx, req, &resp); err != nil {
		return CatalogConfig{}, clierr.Wrap(clierr.ClassCatalogUnavailable, "load chain/token catalog", err)
	}
	if len(resp.Chains) == 0 {
		return CatalogConfig{}, clierr.New(clierr.ClassCatalogUnavailable, "catalog config contained no chains")
	}
	return resp, nil
}

type quoteRequest struct {
	Form             string `json:"form"`
	SourceToken      string `json:"sourceToken"`
	DestinationToken string `json:"destinationToken"`
	SourceChain      string `json:"sourceChain"`
	DestinationChain string `json:"destinationChain"`
	Amount           string `json:"amount"`
	Depositor        string `json:"depositor"`
	Recipient        string `json:"recipient"`
}

type quoteResponse struct {
	QuoteID           string          `json:"quoteId"`
	PayAmount         string          `json:"payAmount"`
	ReceiveAmount     string          `json:"receiveAmount"`
	AggregatorFee     string          `json:"aggregatorFee"`
	PlatformFee       string          `json:"platformFee"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	EstimatedDuration int64           `json:"estimatedDurationSeconds"`
	RequiresSignature bool            `json:"requiresSignature"`
	SignatureOptional bool            `json:"signatureOptional"`
	ProviderPayload   json.RawMessage `json:"providerPayload"`
}

// Quote requests a priced quote for the intent. The gateway accepts both
// same-token ("bridge") and cross-token ("bridge-swap") forms, selected
// by token equality.
func (c *Client) Quote(ctx context.Context, intent model.TransferIntent) (model.Quote, error) {
	form := "bridge"
	if !intent.SameToken() {
		form = "bridge-swap"
	}
	body, err := json.Marshal(quoteRequest{
		Form:             form,
		SourceToken:      intent.SourceToken,
		DestinationToken: intent.DestinationToken,
		SourceChain:      intent.SourceChain,
		DestinationChain: intent.DestinationChain,
		Amount:           intent.Amount,
		Depositor:        intent.Depositor,
		Recipient:        intent.Recipient,
	})
	if err != nil {
		return model.Quote{}, clierr.Wrap(clierr.ClassUnknown, "encode quote request", err)
	}

	var resp quoteResponse
	if _, err := httpx.DoBodyJSON(ctx, c.once, http.MethodPost, c.baseURL+registry.QuotePath, body, c.authHeaders(), &resp); err != nil {
		return model.Quote{}, err
	}
	if resp.PayAmount == "" || resp.ReceiveAmount == "" {
		return model.Quote{}, clierr.New(clierr.ClassProviderUnavailable, "gateway quote missing amounts")
	}

	return model.Quote{
		QuoteID:                  resp.QuoteID,
		IsDirect:                 false,
		PayAmount:                resp.PayAmount,
		ReceiveAmount:            resp.ReceiveAmount,
		AggregatorFee:            orZero(resp.AggregatorFee),
		PlatformFee:              orZero(resp.PlatformFee),
		ExpiresAt:                resp.ExpiresAt,
		EstimatedDurationSeconds: resp.EstimatedDuration,
		RequiresSignature:        resp.RequiresSignature,
		SignatureOptional:        resp.SignatureOptional,
		SourceToken:              intent.SourceToken,
		SourceChain:              intent.SourceChain,
		Amount:                   intent.Amount,
		ProviderPayload:          resp.ProviderPayload,
	}, nil
}

// RawStatus is the aggregator's heterogeneous status report: a string
// status, optional numeric progress, optional chain hashes, optional
// error text.
type RawStatus struct {
	Status            string   `json:"status"`
	Progress          *float64 `json:"progress,omitempty"`
	SourceTxHash      string   `json:"sourceTxHash,omitempty"`
	DestinationTxHash string   `json:"destinationTxHash,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// Status fetches the raw transfer status for a bridge id and optional
// transaction hash. Single-shot: poll failures are the caller's to absorb.
func (c *Client) Status(ctx context.Context, bridgeID, txHash string) (RawStatus, error) {
	vals := url.Values{}
	vals.Set("bridgeId", bridgeID)
	if strings.TrimSpace(txHash) != "" {
		vals.Set("txHash", strings.TrimPrefix(strings.TrimSpace(txHash), "0x"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+registry.StatusPath+"?"+vals.Encode(), nil)
	if err != nil {
		return RawStatus{}, clierr.Wrap(clierr.ClassUnknown, "build status request", err)
	}
	c.authorize(req)

	var resp RawStatus
	if _, err := c.once.DoJSON(ctx, req, &resp); err != nil {
		return RawStatus{}, err
	}
	return resp, nil
}

// PreparedExecution is the opaque execution payload plus whatever the
// provider's own routine needs to run it. TxRequest is populated for
// standard-wallet submission.
type PreparedExecution struct {
	Payload        json.RawMessage `json:"payload"`
	ProviderAPIKey string          `json:"providerApiKey"`
	BridgeID       string          `json:"bridgeId"`
	Tx             *TxRequest      `json:"tx,omitempty"`
}

// TxRequest is the gateway-built transaction for the standard wallet
// path.
type TxRequest struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	ChainID  int64  `json:"chainId"`
	GasLimit string `json:"gasLimit,omitempty"`
}

type prepareRequest struct {
	QuoteID string          `json:"quoteId"`
	Intent  quoteRequest    `json:"intent"`
	Payload json.RawMessage `json:"providerPayload,omitempty"`
}

// Prepare exchanges a quote for an executable payload.
func (c *Client) Prepare(ctx context.Context, intent model.TransferIntent, quote model.Quote) (PreparedExecution, error) {
	body, err := json.Marshal(prepareRequest{
		QuoteID: quote.QuoteID,
		Intent: quoteRequest{
			SourceToken:      intent.SourceToken,
			DestinationToken: intent.DestinationToken,
			SourceChain:      intent.SourceChain,
			DestinationChain: intent.DestinationChain,
			Amount:           intent.Amount,
			Depositor:        intent.Depositor,
			Recipient:        intent.Recipient,
		},
		Payload: quote.ProviderPayload,
	})
	if err != nil {
		return PreparedExecution{}, clierr.Wrap(clierr.ClassUnknown, "encode prepare request", err)
	}

	var resp PreparedExecution
	if _, err := httpx.DoBodyJSON(ctx, c.once, http.MethodPost, c.baseURL+registry.PreparePath, body, c.authHeaders(), &resp); err != nil {
		return PreparedExecution{}, err
	}
	if resp.BridgeID == "" {
		return PreparedExecution{}, clierr.New(clierr.ClassProviderUnavailable, "gateway prepare response missing bridge id")
	}
	return resp, nil
}

type submitRequest struct {
	ChainID string          `json:"chainId"`
	Payload json.RawMessage `json:"payload"`
}

type submitResponse struct {
	OperationHash string `json:"operationHash"`
}

// Submit relays a sponsored smart-account operation. The gateway runs
// the provider routine server-side and returns the operation hash.
func (c *Client) Submit(ctx context.Context, chainID string, payload json.RawMessage) (string, error) {
	body, err := json.Marshal(submitRequest{ChainID: chainID, Payload: payload})
	if err != nil {
		return "", clierr.Wrap(clierr.ClassUnknown, "encode submit request", err)
	}
	var resp submitResponse
	if _, err := httpx.DoBodyJSON(ctx, c.once, http.MethodPost, c.baseURL+registry.SubmitPath, body, c.authHeaders(), &resp); err != nil {
		return "", err
	}
	if resp.OperationHash == "" {
		return "", clierr.New(clierr.ClassProviderUnavailable, "gateway submit response missing operation hash")
	}
	return resp.OperationHash, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) authHeaders() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func orZero(v string) string {
	if strings.TrimSpace(v) == "" {
		return "0"
	}
	return v
}
