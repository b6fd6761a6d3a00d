package wallet

import (
	"context"
	"encoding/json"
)

// TxSpec is a chain transaction ready for wallet submission. Value is a
// decimal wei string, Data is 0x-prefixed calldata.
type TxSpec struct {
	To       string
	Data     string
	Value    string
	ChainID  int64
	GasLimit string
}

// Channel is the standard wallet connection: account discovery, active
// network control, message signing, and transaction submission. A
// channel rejects work for networks it is not switched to.
type Channel interface {
	Accounts(ctx context.Context) ([]string, error)
	ActiveChain(ctx context.Context) (string, error)
	SwitchChain(ctx context.Context, chainID string) error
	SignMessage(ctx context.Context, message []byte) (string, error)
	SendTransaction(ctx context.Context, tx TxSpec) (string, error)
}

// SmartAccountHandler submits a sponsored operation on behalf of the
// user and returns the operation hash. Gas is paid by the sponsor, so
// no transaction ever passes through the wallet channel.
type SmartAccountHandler interface {
	SubmitOperation(ctx context.Context, chainID string, payload json.RawMessage) (string, error)
}
