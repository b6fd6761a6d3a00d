package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ggonzalez94/crosspay/internal/catalog"
	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/execution"
	"github.com/ggonzalez94/crosspay/internal/gateway"
	"github.com/ggonzalez94/crosspay/internal/model"
	"github.com/ggonzalez94/crosspay/internal/wallet"
)

type recordingRequester struct {
	mu      sync.Mutex
	amounts []string
	gates   map[string]chan struct{}
	quote   model.Quote
	err     error
}

func (r *recordingRequester) RequestQuote(ctx context.Context, intent model.TransferIntent) (model.Quote, error) {
	r.mu.Lock()
	r.amounts = append(r.amounts, intent.Amount)
	gate := r.gates[intent.Amount]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Quote{}, ctx.Err()
		}
	}
	if r.err != nil {
		return model.Quote{}, r.err
	}
	q := r.quote
	q.SourceToken = intent.SourceToken
	q.SourceChain = intent.SourceChain
	q.Amount = intent.Amount
	return q, nil
}

func (r *recordingRequester) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.amounts))
	copy(out, r.amounts)
	return out
}

type stubChannel struct{ active string }

func (s *stubChannel) Accounts(ctx context.Context) ([]string, error) {
	return []string{"0x28C6c06298d514Db089934071355E5743bf21d60"}, nil
}
func (s *stubChannel) ActiveChain(ctx context.Context) (string, error) { return s.active, nil }
func (s *stubChannel) SwitchChain(ctx context.Context, chainID string) error {
	s.active = chainID
	return nil
}
func (s *stubChannel) SignMessage(ctx context.Context, message []byte) (string, error) {
	return "0xsigned", nil
}
func (s *stubChannel) SendTransaction(ctx context.Context, tx wallet.TxSpec) (string, error) {
	return "0xhash", nil
}

type stubPreparer struct{}

func (stubPreparer) Prepare(ctx context.Context, intent model.TransferIntent, quote model.Quote) (gateway.PreparedExecution, error) {
	return gateway.PreparedExecution{
		Payload:  json.RawMessage(`{}`),
		BridgeID: "bridge-123",
		Tx:       &gateway.TxRequest{To: "0x1111111111111111111111111111111111111111", ChainID: 1},
	}, nil
}

type stubStatus struct{}

func (stubStatus) Status(ctx context.Context, bridgeID, txHash string) (gateway.RawStatus, error) {
	return gateway.RawStatus{Status: "completed"}, nil
}

func sessionCatalog() *catalog.Catalog {
	return catalog.FromConfig(gateway.CatalogConfig{
		Chains: []gateway.ChainConfig{
			{ID: "eip155:1", DisplayName: "Ethereum", Counterparts: []string{"eip155:8453"}},
			{ID: "eip155:8453", DisplayName: "Base", Counterparts: []string{"eip155:1"}},
		},
		TokensByChain: map[string][]gateway.TokenConfig{
			"eip155:1":    {{ID: "USDC", DisplayName: "USD Coin", Decimals: 6, Counterparts: []string{"eip155:8453"}}},
			"eip155:8453": {{ID: "USDC", DisplayName: "USD Coin", Decimals: 6, Counterparts: []string{"eip155:1"}}},
		},
	})
}

func newTestSession(requester QuoteRequester) *Session {
	exec := execution.NewExecutor(stubPreparer{}, &stubChannel{active: "eip155:1"}, nil)
	exec.SwitchGrace = 0
	tracker := execution.NewTracker(stubStatus{})
	tracker.Interval = time.Millisecond
	s := New(sessionCatalog(), requester, exec, tracker, nil, 2*time.Second)
	s.Debounce = 10 * time.Millisecond
	return s
}

func fillIntent(s *Session) {
	s.SetSourceToken("USDC")
	s.SetDestinationToken("USDC")
	s.SetSourceChain("eip155:1")
	s.SetDestinationChain("eip155:8453")
	s.SetDepositor("0x28C6c06298d514Db089934071355E5743bf21d60")
	s.SetRecipient("0x503828976D22510aad0201ac7EC88293211D23Da")
}

func waitForQuote(t *testing.T, s *Session) *model.Quote {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q := s.Quote(); q != nil {
			return q
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no quote arrived in time")
	return nil
}

func freshQuote() model.Quote {
	return model.Quote{
		PayAmount:     "1.5",
		ReceiveAmount: "1.493",
		AggregatorFee: "0.005",
		PlatformFee:   "0.002",
		ExpiresAt:     time.Now().Add(time.Minute),
	}
}

func TestRapidEditsCollapseToOneQuoteRequest(t *testing.T) {
	requester := &recordingRequester{quote: freshQuote()}
	s := newTestSession(requester)
	fillIntent(s)

	if calls := requester.calls(); len(calls) != 0 {
		t.Fatalf("non-amount edits triggered %d quote requests", len(calls))
	}

	s.EnterAmount("1")
	s.EnterAmount("1.")
	s.EnterAmount("1.5")

	q := waitForQuote(t, s)
	if q.Amount != "1.5" {
		t.Fatalf("quote issued for %s, want the final amount", q.Amount)
	}
	calls := requester.calls()
	if len(calls) != 1 || calls[0] != "1.5" {
		t.Fatalf("requests = %v, want exactly one for the final amount", calls)
	}
}

func TestSupersededInFlightResultIsDropped(t *testing.T) {
	gate := make(chan struct{})
	requester := &recordingRequester{
		quote: freshQuote(),
		gates: map[string]chan struct{}{"1": gate},
	}
	s := newTestSession(requester)
	fillIntent(s)

	s.EnterAmount("1")
	deadline := time.Now().Add(2 * time.Second)
	for len(requester.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first quote request never started")
		}
		time.Sleep(2 * time.Millisecond)
	}

	s.EnterAmount("2")
	close(gate)

	q := waitForQuote(t, s)
	if q.Amount != "2" {
		t.Fatalf("stale result surfaced: quote amount %s", q.Amount)
	}
}

func TestEditInvalidatesHeldQuote(t *testing.T) {
	requester := &recordingRequester{quote: freshQuote()}
	s := newTestSession(requester)
	fillIntent(s)

	s.EnterAmount("1.5")
	waitForQuote(t, s)

	s.SetRecipient("0x28C6c06298d514Db089934071355E5743bf21d60")
	if s.Quote() != nil {
		t.Fatal("held quote must be invalidated by any intent edit")
	}
}

func TestCancelStopsPendingQuote(t *testing.T) {
	requester := &recordingRequester{quote: freshQuote()}
	s := newTestSession(requester)
	s.Debounce = 50 * time.Millisecond
	fillIntent(s)

	s.EnterAmount("1.5")
	s.Cancel()

	time.Sleep(150 * time.Millisecond)
	if calls := requester.calls(); len(calls) != 0 {
		t.Fatalf("cancelled session still issued %d requests", len(calls))
	}
}

func TestConfirmExecutionRequiresQuote(t *testing.T) {
	s := newTestSession(&recordingRequester{quote: freshQuote()})
	fillIntent(s)

	_, err := s.ConfirmExecution()
	if clierr.ClassOf(err) != clierr.ClassValidation {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}
}

func TestConfirmExecutionRejectsExpiredQuote(t *testing.T) {
	expired := freshQuote()
	expired.ExpiresAt = time.Now().Add(-time.Second)
	requester := &recordingRequester{quote: expired}
	s := newTestSession(requester)
	fillIntent(s)

	s.EnterAmount("1.5")
	waitForQuote(t, s)

	_, err := s.ConfirmExecution()
	if clierr.ClassOf(err) != clierr.ClassQuoteExpired {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}
}

func TestConfirmExecutionRunsToCompletion(t *testing.T) {
	requester := &recordingRequester{quote: freshQuote()}
	s := newTestSession(requester)
	fillIntent(s)

	s.EnterAmount("1.5")
	waitForQuote(t, s)

	recordID, err := s.ConfirmExecution()
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if recordID == "" {
		t.Fatal("confirm must return the record id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := s.Record()
		if rec != nil && rec.State.Terminal() {
			if rec.State != model.StateComplete {
				t.Fatalf("record ended in %s: %s", rec.State, rec.ErrorMessage)
			}
			if rec.BridgeID != "bridge-123" || rec.TransactionHash != "0xhash" {
				t.Fatalf("record not filled: %+v", rec)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution never finished, record: %+v", rec)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Readers polling the session while the execute goroutine mutates its
// record must only ever see whole copies. Run with -race.
func TestRecordReadsDuringExecutionSeeOnlyCopies(t *testing.T) {
	requester := &recordingRequester{quote: freshQuote()}
	s := newTestSession(requester)
	fillIntent(s)

	s.EnterAmount("1.5")
	waitForQuote(t, s)

	if _, err := s.ConfirmExecution(); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if rec := s.Record(); rec != nil {
					_ = rec.State
					_ = rec.BridgeID
				}
				_ = s.Intent()
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := s.Record()
		if rec != nil && rec.State.Terminal() {
			if rec.State != model.StateComplete {
				t.Fatalf("record ended in %s: %s", rec.State, rec.ErrorMessage)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution never finished, record: %+v", rec)
		}
		time.Sleep(time.Millisecond)
	}
	close(stop)
	wg.Wait()
}

func TestConfirmExecutionRejectsConcurrentAttempt(t *testing.T) {
	gate := make(chan struct{})
	requester := &recordingRequester{quote: freshQuote()}
	s := newTestSession(requester)
	// Hold the executor on the prepare call so the first attempt stays
	// non-terminal while the second confirm arrives.
	s.executor = execution.NewExecutor(blockingPreparer{gate: gate}, &stubChannel{active: "eip155:1"}, nil)
	s.executor.SwitchGrace = 0
	s.executor.OnUpdate(s.publishRecord)
	fillIntent(s)

	s.EnterAmount("1.5")
	waitForQuote(t, s)

	if _, err := s.ConfirmExecution(); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	_, err := s.ConfirmExecution()
	if clierr.ClassOf(err) != clierr.ClassValidation {
		t.Fatalf("unexpected class %s", clierr.ClassOf(err))
	}
	close(gate)
}

type blockingPreparer struct{ gate chan struct{} }

func (b blockingPreparer) Prepare(ctx context.Context, intent model.TransferIntent, quote model.Quote) (gateway.PreparedExecution, error) {
	<-b.gate
	return stubPreparer{}.Prepare(ctx, intent, quote)
}

func TestContinueInBackgroundDetachesStream(t *testing.T) {
	requester := &recordingRequester{quote: freshQuote()}
	s := newTestSession(requester)
	fillIntent(s)

	s.EnterAmount("1.5")
	waitForQuote(t, s)

	recordID, err := s.ConfirmExecution()
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	gotID, _ := s.ContinueInBackground()
	if gotID != recordID {
		t.Fatalf("record id = %s, want %s", gotID, recordID)
	}

	// Tracking keeps running after detach.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := s.Record()
		if rec != nil && rec.State == model.StateComplete {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("background tracking stalled, record: %+v", rec)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSnapshotStreamNeverBlocksMutation(t *testing.T) {
	requester := &recordingRequester{quote: freshQuote()}
	s := newTestSession(requester)

	// Nobody reads Updates; flood well past the buffer size.
	done := make(chan struct{})
	go func() {
		fillIntent(s)
		for i := 0; i < 100; i++ {
			s.SetRecipient("0x503828976D22510aad0201ac7EC88293211D23Da")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session mutation blocked on a slow snapshot consumer")
	}

	// The buffered snapshots drain and include the latest state.
	var last Snapshot
	for {
		select {
		case snap := <-s.Updates():
			last = snap
			continue
		default:
		}
		break
	}
	if last.Intent.Recipient != "0x503828976D22510aad0201ac7EC88293211D23Da" {
		t.Fatalf("latest snapshot missing, got %+v", last.Intent)
	}
}
