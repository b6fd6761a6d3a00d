package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/gateway"
	"github.com/ggonzalez94/crosspay/internal/model"
	"github.com/ggonzalez94/crosspay/internal/wallet"
)

// Preparer exchanges a quote for an executable payload. *gateway.Client
// satisfies it.
type Preparer interface {
	Prepare(ctx context.Context, intent model.TransferIntent, quote model.Quote) (gateway.PreparedExecution, error)
}

const defaultSwitchGrace = time.Second

// Executor drives a single transfer attempt through the lifecycle
// confirm -> signing -> broadcasting -> bridging -> complete|error.
// Failures are classified and recorded on the record; the executor
// never retries on its own, a retry is a fresh record.
type Executor struct {
	preparer Preparer
	channel  wallet.Channel
	sponsor  wallet.SmartAccountHandler

	// SwitchGrace is how long a requested network switch gets to settle
	// before the attempt proceeds anyway.
	SwitchGrace time.Duration

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	notify func(model.TransferRecord)
}

func NewExecutor(preparer Preparer, channel wallet.Channel, sponsor wallet.SmartAccountHandler) *Executor {
	return &Executor{
		preparer:    preparer,
		channel:     channel,
		sponsor:     sponsor,
		SwitchGrace: defaultSwitchGrace,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// OnUpdate registers a callback invoked after every record mutation.
func (e *Executor) OnUpdate(fn func(model.TransferRecord)) { e.notify = fn }

// Execute runs the attempt to the point where bridging begins (or the
// transfer completes, for direct transfers). The record must be in the
// confirm state; status tracking afterwards is the tracker's job.
func (e *Executor) Execute(ctx context.Context, rec *model.TransferRecord) error {
	if rec.State != model.StateConfirm {
		return e.fail(rec, clierr.New(clierr.ClassValidation,
			fmt.Sprintf("transfer is in state %q, expected %q", rec.State, model.StateConfirm)))
	}
	if rec.Quote.IsExpired(e.now()) {
		return e.fail(rec, clierr.New(clierr.ClassQuoteExpired, "quote expired before execution started"))
	}
	if !rec.Quote.MatchesIntent(rec.Intent) {
		return e.fail(rec, clierr.New(clierr.ClassValidation, "quote does not match the transfer intent"))
	}

	// The signing phase covers everything between confirmation and
	// broadcast: network preparation, payload preparation, and any
	// signature the quote demands. Entered unconditionally.
	e.setState(rec, model.StateSigning)

	if rec.Path == model.PathStandardWallet {
		if err := e.ensureNetwork(ctx, rec.Intent.SourceChain); err != nil {
			return e.fail(rec, err)
		}
	}

	prepared, err := e.preparer.Prepare(ctx, rec.Intent, rec.Quote)
	if err != nil {
		return e.fail(rec, err)
	}
	rec.BridgeID = prepared.BridgeID

	if err := e.signIfRequired(ctx, rec, prepared); err != nil {
		return e.fail(rec, err)
	}

	e.setState(rec, model.StateBroadcasting)
	hash, err := e.broadcast(ctx, rec, prepared)
	if err != nil {
		return e.fail(rec, err)
	}
	rec.TransactionHash = hash

	if rec.Quote.IsDirect {
		rec.CanonicalStatus = model.StatusComplete
		rec.Progress = 100
		e.setState(rec, model.StateComplete)
		return nil
	}

	rec.CanonicalStatus = model.StatusPending
	e.setState(rec, model.StateBridging)
	return nil
}

// ensureNetwork asks the wallet channel to sit on the source chain,
// allowing a requested switch a grace period to settle. The switch is
// best effort: a mismatch that survives the grace period does not fail
// the attempt here, the channel or provider rejects the submission and
// that rejection classifies as a network mismatch.
func (e *Executor) ensureNetwork(ctx context.Context, sourceChain string) error {
	active, err := e.channel.ActiveChain(ctx)
	if err != nil {
		return clierr.Classify(err)
	}
	if sameChain(active, sourceChain) {
		return nil
	}
	if err := e.channel.SwitchChain(ctx, sourceChain); err != nil {
		// The switch request itself is best effort too: broadcast on
		// whatever chain the wallet sits on and let it reject there.
		return nil
	}
	if err := e.sleep(ctx, e.SwitchGrace); err != nil {
		return clierr.Wrap(clierr.ClassUnknown, "wait for network switch", err)
	}
	return nil
}

// signIfRequired covers the quote's signature demands. A required
// signature that the wallet declines is terminal; an optional one that
// fails lets the transfer proceed unsigned.
func (e *Executor) signIfRequired(ctx context.Context, rec *model.TransferRecord, prepared gateway.PreparedExecution) error {
	if !rec.Quote.RequiresSignature && !rec.Quote.SignatureOptional {
		return nil
	}
	_, err := e.channel.SignMessage(ctx, prepared.Payload)
	if err == nil {
		return nil
	}
	if rec.Quote.SignatureOptional && !rec.Quote.RequiresSignature {
		return nil
	}
	typed := clierr.Classify(err)
	if typed.Class == clierr.ClassUnknown {
		return clierr.Wrap(clierr.ClassSigningRejected, "wallet declined the signature request", err)
	}
	return typed
}

func (e *Executor) broadcast(ctx context.Context, rec *model.TransferRecord, prepared gateway.PreparedExecution) (string, error) {
	switch rec.Path {
	case model.PathSponsoredSmartAccount:
		if e.sponsor == nil {
			return "", clierr.New(clierr.ClassProviderUnavailable, "sponsored execution is not configured")
		}
		opHash, err := e.sponsor.SubmitOperation(ctx, rec.Intent.DestinationChain, prepared.Payload)
		if err != nil {
			return "", clierr.Classify(err)
		}
		return opHash, nil
	case model.PathStandardWallet:
		if prepared.Tx == nil {
			return "", clierr.New(clierr.ClassProviderUnavailable, "gateway prepared no transaction for wallet submission")
		}
		hash, err := e.channel.SendTransaction(ctx, wallet.TxSpec{
			To:       prepared.Tx.To,
			Data:     prepared.Tx.Data,
			Value:    prepared.Tx.Value,
			ChainID:  prepared.Tx.ChainID,
			GasLimit: prepared.Tx.GasLimit,
		})
		if err != nil {
			return "", clierr.Classify(err)
		}
		return hash, nil
	default:
		return "", clierr.New(clierr.ClassValidation, fmt.Sprintf("unknown execution path %q", rec.Path))
	}
}

func (e *Executor) setState(rec *model.TransferRecord, state model.TransferState) {
	rec.State = state
	rec.UpdatedAt = e.now()
	if e.notify != nil {
		e.notify(*rec)
	}
}

func (e *Executor) fail(rec *model.TransferRecord, err error) error {
	typed := clierr.Classify(err)
	rec.CanonicalStatus = model.StatusFailed
	rec.ErrorClass = string(typed.Class)
	rec.ErrorMessage = typed.Error()
	rec.Remediation = typed.Remediation
	e.setState(rec, model.StateError)
	return typed
}

func sameChain(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
