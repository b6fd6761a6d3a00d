package model

import (
	"encoding/json"
	"time"
)

const EnvelopeVersion = "v1"

// TransferIntent is the user-entered description of a transfer. Amounts
// are decimal strings in source-token units.
type TransferIntent struct {
	SourceToken      string `json:"source_token"`
	DestinationToken string `json:"destination_token"`
	SourceChain      string `json:"source_chain"`
	DestinationChain string `json:"destination_chain"`
	Amount           string `json:"amount"`
	Depositor        string `json:"depositor"`
	Recipient        string `json:"recipient"`
}

// IsDirect reports whether the intent stays on one chain in one token,
// which short-circuits quoting entirely.
func (i TransferIntent) IsDirect() bool {
	return i.SourceChain == i.DestinationChain && i.SourceToken == i.DestinationToken
}

// SameToken selects the aggregator form: bridge when true, bridge-swap
// when the token changes while crossing chains.
func (i TransferIntent) SameToken() bool {
	return i.SourceToken == i.DestinationToken
}

// Quote is a priced, time-bound offer for one exact intent. It is valid
// only for the (token, chain, amount) tuple it was issued for.
type Quote struct {
	QuoteID                  string          `json:"quote_id,omitempty"`
	IsDirect                 bool            `json:"is_direct"`
	PayAmount                string          `json:"pay_amount"`
	ReceiveAmount            string          `json:"receive_amount"`
	AggregatorFee            string          `json:"aggregator_fee"`
	PlatformFee              string          `json:"platform_fee"`
	ExpiresAt                time.Time       `json:"expires_at"`
	EstimatedDurationSeconds int64           `json:"estimated_duration_s,omitempty"`
	RequiresSignature        bool            `json:"requires_signature"`
	SignatureOptional        bool            `json:"signature_optional"`
	SourceToken              string          `json:"source_token"`
	SourceChain              string          `json:"source_chain"`
	Amount                   string          `json:"amount"`
	ProviderPayload          json.RawMessage `json:"provider_payload,omitempty"`
}

// IsExpired is monotonic: once true for an instant it stays true for all
// later instants.
func (q Quote) IsExpired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// MatchesIntent reports whether the quote was issued for exactly this
// (token, chain, amount) tuple. Reuse with a different amount is invalid.
func (q Quote) MatchesIntent(intent TransferIntent) bool {
	return q.SourceToken == intent.SourceToken &&
		q.SourceChain == intent.SourceChain &&
		q.Amount == intent.Amount
}

// CanonicalStatus is the four-state simplification of the aggregator's
// heterogeneous status vocabulary.
type CanonicalStatus string

const (
	StatusPending    CanonicalStatus = "pending"
	StatusProcessing CanonicalStatus = "processing"
	StatusComplete   CanonicalStatus = "complete"
	StatusFailed     CanonicalStatus = "failed"
)

func (s CanonicalStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// TransferState is the executor's lifecycle. Only Confirm is entered by
// explicit user action.
type TransferState string

const (
	StateConfirm      TransferState = "confirm"
	StateSigning      TransferState = "signing"
	StateBroadcasting TransferState = "broadcasting"
	StateBridging     TransferState = "bridging"
	StateComplete     TransferState = "complete"
	StateError        TransferState = "error"
)

func (s TransferState) Terminal() bool {
	return s == StateComplete || s == StateError
}

// PathKind discriminates the two execution strategies.
type PathKind string

const (
	PathSponsoredSmartAccount PathKind = "sponsored_smart_account"
	PathStandardWallet        PathKind = "standard_wallet"
)

// TransferRecord tracks a single execution attempt. It is created at
// execution start, mutated only by the executor and the status tracker,
// and owned exclusively by the session that created it.
type TransferRecord struct {
	ID                string          `json:"id"`
	Intent            TransferIntent  `json:"intent"`
	Quote             Quote           `json:"quote"`
	Path              PathKind        `json:"path"`
	State             TransferState   `json:"state"`
	TransactionHash   string          `json:"transaction_hash,omitempty"`
	BridgeID          string          `json:"bridge_id,omitempty"`
	CanonicalStatus   CanonicalStatus `json:"canonical_status,omitempty"`
	RawProviderStatus string          `json:"raw_provider_status,omitempty"`
	Progress          int             `json:"progress"`
	DestinationTxHash string          `json:"destination_tx_hash,omitempty"`
	ErrorClass        string          `json:"error_class,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Remediation       string          `json:"remediation,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ChainEntry is one selectable network. Unsupported entries are marked,
// not removed, so callers can explain why a choice is disabled.
type ChainEntry struct {
	ID                    string   `json:"id"`
	DisplayName           string   `json:"display_name"`
	SupportedCounterparts []string `json:"supported_counterparts,omitempty"`
	IsSupported           bool     `json:"is_supported"`
	HasRestriction        bool     `json:"has_restriction"`
}

// TokenEntry is one selectable token on a chain.
type TokenEntry struct {
	ID                    string   `json:"id"`
	DisplayName           string   `json:"display_name"`
	Decimals              int      `json:"decimals,omitempty"`
	SupportedCounterparts []string `json:"supported_counterparts,omitempty"`
	IsSupported           bool     `json:"is_supported"`
	HasRestriction        bool     `json:"has_restriction"`
}

// Envelope is the CLI output contract.
type Envelope struct {
	Version string       `json:"version"`
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorBody   `json:"error"`
	Meta    EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Class       string `json:"class"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}
