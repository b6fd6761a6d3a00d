package execution

import (
	"context"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/gateway"
	"github.com/ggonzalez94/crosspay/internal/model"
)

// StatusProvider serves raw transfer status. *gateway.Client satisfies
// it.
type StatusProvider interface {
	Status(ctx context.Context, bridgeID, txHash string) (gateway.RawStatus, error)
}

const defaultPollInterval = 5 * time.Second

// Tracker polls the aggregator for a bridging transfer until it reaches
// a terminal state. Individual poll failures are absorbed: the last
// known status stands until the next successful poll or cancellation.
type Tracker struct {
	provider StatusProvider
	Interval time.Duration
	notify   func(model.TransferRecord)
	now      func() time.Time
}

func NewTracker(provider StatusProvider) *Tracker {
	return &Tracker{provider: provider, Interval: defaultPollInterval, now: time.Now}
}

func (t *Tracker) OnUpdate(fn func(model.TransferRecord)) { t.notify = fn }

// Track polls every Interval until the transfer completes, fails, or
// ctx is cancelled. It returns nil on completion, the classified
// provider error on failure, and ctx.Err() on cancellation; the record
// reflects the last observed status in every case.
func (t *Tracker) Track(ctx context.Context, rec *model.TransferRecord) error {
	if rec.State != model.StateBridging {
		return clierr.New(clierr.ClassValidation, "transfer is not bridging")
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		raw, err := t.provider.Status(ctx, rec.BridgeID, rec.TransactionHash)
		if err != nil {
			// Transient poll failure: keep the last known status.
			continue
		}
		t.apply(rec, raw)

		switch rec.CanonicalStatus {
		case model.StatusComplete:
			t.setState(rec, model.StateComplete)
			return nil
		case model.StatusFailed:
			failure := strings.TrimSpace(raw.Error)
			if failure == "" {
				failure = "transfer failed with status " + raw.Status
			}
			typed := clierr.Classify(stringError(failure))
			rec.ErrorClass = string(typed.Class)
			rec.ErrorMessage = typed.Message
			rec.Remediation = typed.Remediation
			t.setState(rec, model.StateError)
			return typed
		}
	}
}

func (t *Tracker) apply(rec *model.TransferRecord, raw gateway.RawStatus) {
	status, progress := Canonicalize(raw)
	rec.CanonicalStatus = status
	rec.Progress = progress
	rec.RawProviderStatus = raw.Status
	if raw.DestinationTxHash != "" {
		rec.DestinationTxHash = raw.DestinationTxHash
	}
	rec.UpdatedAt = t.now()
	if t.notify != nil {
		t.notify(*rec)
	}
}

func (t *Tracker) setState(rec *model.TransferRecord, state model.TransferState) {
	rec.State = state
	rec.UpdatedAt = t.now()
	if t.notify != nil {
		t.notify(*rec)
	}
}

// Canonicalize maps the aggregator's heterogeneous status vocabulary
// onto the four canonical states. Completion wins over everything:
// progress at 100 or a success word is complete even when an error
// string is also present. An explicit failure word or error field comes
// next. Everything else lands in pending or processing with a progress
// estimate when the provider gave none.
func Canonicalize(raw gateway.RawStatus) (model.CanonicalStatus, int) {
	status := strings.ToLower(strings.TrimSpace(raw.Status))
	progress := -1
	if raw.Progress != nil {
		progress = clampProgress(int(*raw.Progress))
	}

	if progress >= 100 || isCompleteWord(status) {
		return model.StatusComplete, 100
	}
	if strings.TrimSpace(raw.Error) != "" || isFailureWord(status) {
		if progress < 0 {
			progress = 0
		}
		return model.StatusFailed, progress
	}

	switch status {
	case "pending", "queued", "waiting", "waiting_for_deposit", "deposit_detected":
		if progress < 0 {
			progress = 25
		}
		return model.StatusPending, progress
	case "confirming", "finalizing", "settling":
		if progress < 0 {
			progress = 75
		}
		return model.StatusProcessing, progress
	default:
		// processing, in_progress, bridging, relaying, swapping, and any
		// vocabulary we have never seen.
		if progress < 0 {
			progress = 50
		}
		return model.StatusProcessing, progress
	}
}

func isCompleteWord(status string) bool {
	switch status {
	case "complete", "completed", "success", "succeeded", "finished", "done":
		return true
	}
	return false
}

func isFailureWord(status string) bool {
	switch status {
	case "failed", "failure", "error", "errored", "reverted", "refunded", "expired":
		return true
	}
	return false
}

func clampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

type stringErr string

func (s stringErr) Error() string { return string(s) }

func stringError(s string) error { return stringErr(s) }
