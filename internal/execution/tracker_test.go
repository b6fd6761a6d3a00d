package execution

import (
	"context"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/gateway"
	"github.com/ggonzalez94/crosspay/internal/model"
)

type statusStep struct {
	raw gateway.RawStatus
	err error
}

type scriptedStatus struct {
	steps []statusStep
	calls int
}

func (s *scriptedStatus) Status(ctx context.Context, bridgeID, txHash string) (gateway.RawStatus, error) {
	step := s.steps[len(s.steps)-1]
	if s.calls < len(s.steps) {
		step = s.steps[s.calls]
	}
	s.calls++
	return step.raw, step.err
}

func bridgingRecord() *model.TransferRecord {
	rec := baseRecord(model.PathStandardWallet)
	rec.State = model.StateBridging
	rec.BridgeID = "bridge-123"
	rec.TransactionHash = "0xabc"
	rec.CanonicalStatus = model.StatusPending
	return rec
}

func newTestTracker(provider StatusProvider) *Tracker {
	tr := NewTracker(provider)
	tr.Interval = time.Millisecond
	return tr
}

func TestTrackRunsToCompletion(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{raw: gateway.RawStatus{Status: "pending"}},
		{raw: gateway.RawStatus{Status: "processing"}},
		{raw: gateway.RawStatus{Status: "completed", DestinationTxHash: "0xdest"}},
	}}
	tracker := newTestTracker(provider)

	var statuses []model.CanonicalStatus
	tracker.OnUpdate(func(rec model.TransferRecord) { statuses = append(statuses, rec.CanonicalStatus) })

	rec := bridgingRecord()
	if err := tracker.Track(context.Background(), rec); err != nil {
		t.Fatalf("track failed: %v", err)
	}
	if rec.State != model.StateComplete || rec.Progress != 100 {
		t.Fatalf("state=%s progress=%d, want complete/100", rec.State, rec.Progress)
	}
	if rec.DestinationTxHash != "0xdest" {
		t.Fatalf("destination hash = %s", rec.DestinationTxHash)
	}
	if statuses[0] != model.StatusPending || statuses[len(statuses)-1] != model.StatusComplete {
		t.Fatalf("observed statuses %v", statuses)
	}
}

func TestTrackIgnoresTransientPollFailures(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{raw: gateway.RawStatus{Status: "pending"}},
		{err: clierr.New(clierr.ClassProviderUnavailable, "connection refused")},
		{err: clierr.New(clierr.ClassProviderUnavailable, "gateway unavailable (status 502)")},
		{raw: gateway.RawStatus{Status: "completed"}},
	}}
	tracker := newTestTracker(provider)

	rec := bridgingRecord()
	if err := tracker.Track(context.Background(), rec); err != nil {
		t.Fatalf("transient failures must not end tracking: %v", err)
	}
	if provider.calls < 4 {
		t.Fatalf("expected polling to continue past failures, got %d calls", provider.calls)
	}
	if rec.State != model.StateComplete {
		t.Fatalf("state = %s, want complete", rec.State)
	}
}

func TestTrackClassifiesProviderFailure(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{raw: gateway.RawStatus{Status: "processing"}},
		{raw: gateway.RawStatus{Status: "failed", Error: "no route found for the requested pair"}},
	}}
	tracker := newTestTracker(provider)

	rec := bridgingRecord()
	err := tracker.Track(context.Background(), rec)
	if clierr.ClassOf(err) != clierr.ClassRouteUnavailable {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}
	if rec.State != model.StateError {
		t.Fatalf("state = %s, want error", rec.State)
	}
	if rec.ErrorMessage == "" || rec.Remediation == "" {
		t.Fatal("failed record must carry message and remediation")
	}
}

func TestTrackFailureWithoutErrorTextUsesStatus(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{raw: gateway.RawStatus{Status: "refunded"}},
	}}
	tracker := newTestTracker(provider)

	rec := bridgingRecord()
	err := tracker.Track(context.Background(), rec)
	if err == nil {
		t.Fatal("refunded transfer should fail tracking")
	}
	typed, ok := clierr.As(err)
	if !ok {
		t.Fatalf("error not typed: %v", err)
	}
	if typed.Message != "transfer failed with status refunded" {
		t.Fatalf("unexpected message %q", typed.Message)
	}
}

func TestTrackStopsOnCancellation(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{raw: gateway.RawStatus{Status: "pending"}},
	}}
	tracker := newTestTracker(provider)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	rec := bridgingRecord()
	if err := tracker.Track(ctx, rec); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rec.State != model.StateBridging {
		t.Fatalf("cancellation must leave the last known state, got %s", rec.State)
	}
}

func TestTrackRejectsNonBridgingRecord(t *testing.T) {
	tracker := newTestTracker(&scriptedStatus{steps: []statusStep{{}}})
	rec := bridgingRecord()
	rec.State = model.StateConfirm
	if err := tracker.Track(context.Background(), rec); clierr.ClassOf(err) != clierr.ClassValidation {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}
}

func TestCanonicalize(t *testing.T) {
	pct := func(v float64) *float64 { return &v }
	cases := []struct {
		name     string
		raw      gateway.RawStatus
		status   model.CanonicalStatus
		progress int
	}{
		{"complete word", gateway.RawStatus{Status: "completed"}, model.StatusComplete, 100},
		{"success word", gateway.RawStatus{Status: "SUCCESS"}, model.StatusComplete, 100},
		{"full progress wins over error text", gateway.RawStatus{Status: "processing", Progress: pct(100), Error: "late refund notice"}, model.StatusComplete, 100},
		{"complete word wins over error text", gateway.RawStatus{Status: "done", Error: "stale error"}, model.StatusComplete, 100},
		{"error field fails", gateway.RawStatus{Status: "processing", Error: "insufficient liquidity"}, model.StatusFailed, 0},
		{"failure word fails", gateway.RawStatus{Status: "reverted"}, model.StatusFailed, 0},
		{"failure keeps reported progress", gateway.RawStatus{Status: "failed", Progress: pct(60)}, model.StatusFailed, 60},
		{"pending estimate", gateway.RawStatus{Status: "waiting_for_deposit"}, model.StatusPending, 25},
		{"pending keeps reported progress", gateway.RawStatus{Status: "queued", Progress: pct(10)}, model.StatusPending, 10},
		{"late-stage estimate", gateway.RawStatus{Status: "finalizing"}, model.StatusProcessing, 75},
		{"unknown vocabulary is processing", gateway.RawStatus{Status: "zk_proving"}, model.StatusProcessing, 50},
		{"empty status is processing", gateway.RawStatus{}, model.StatusProcessing, 50},
		{"progress clamped high", gateway.RawStatus{Status: "bridging", Progress: pct(250)}, model.StatusComplete, 100},
		{"progress clamped low", gateway.RawStatus{Status: "bridging", Progress: pct(-5)}, model.StatusProcessing, 0},
	}
	for _, tc := range cases {
		status, progress := Canonicalize(tc.raw)
		if status != tc.status || progress != tc.progress {
			t.Fatalf("%s: Canonicalize = (%s, %d), want (%s, %d)", tc.name, status, progress, tc.status, tc.progress)
		}
	}
}
