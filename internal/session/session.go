package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ggonzalez94/crosspay/internal/catalog"
	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/execution"
	"github.com/ggonzalez94/crosspay/internal/model"
	"github.com/ggonzalez94/crosspay/internal/wallet"
)

// QuoteRequester issues quotes for intents. *quote.Engine satisfies it.
type QuoteRequester interface {
	RequestQuote(ctx context.Context, intent model.TransferIntent) (model.Quote, error)
}

const defaultDebounce = 500 * time.Millisecond

// Snapshot is one immutable view of the session, published after every
// state change. Consumers only ever see whole snapshots, never partial
// mutations.
type Snapshot struct {
	Seq          uint64
	Intent       model.TransferIntent
	Quote        *model.Quote
	QuoteErr     error
	QuotePending bool
	Record       *model.TransferRecord
}

// Session owns one interactive transfer: intent edits, debounced
// quoting, execution, and tracking. All session state mutates under the
// mutex; the live record belongs to the execute goroutine exclusively
// and the session only ever holds copies of it.
type Session struct {
	catalog  *catalog.Catalog
	quotes   QuoteRequester
	executor *execution.Executor
	tracker  *execution.Tracker
	sponsor  wallet.SmartAccountHandler

	// Debounce is the quiet period after an amount edit before a quote
	// request fires. Edits inside the window restart it.
	Debounce time.Duration
	timeout  time.Duration

	mu           sync.Mutex
	intent       model.TransferIntent
	quote        *model.Quote
	quoteErr     error
	quotePending bool
	record       *model.TransferRecord
	seq          uint64
	timer        *time.Timer
	quoteCancel  context.CancelFunc
	execCancel   context.CancelFunc
	detached     bool

	updates chan Snapshot
	newID   func() string
	now     func() time.Time
}

func New(cat *catalog.Catalog, quotes QuoteRequester, exec *execution.Executor, tracker *execution.Tracker, sponsor wallet.SmartAccountHandler, timeout time.Duration) *Session {
	s := &Session{
		catalog:  cat,
		quotes:   quotes,
		executor: exec,
		tracker:  tracker,
		sponsor:  sponsor,
		Debounce: defaultDebounce,
		timeout:  timeout,
		updates:  make(chan Snapshot, 16),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	if exec != nil {
		exec.OnUpdate(s.publishRecord)
	}
	if tracker != nil {
		tracker.OnUpdate(s.publishRecord)
	}
	return s
}

// Updates is the snapshot stream. Slow consumers lose intermediate
// snapshots, never the latest one.
func (s *Session) Updates() <-chan Snapshot { return s.updates }

// Intent returns a copy of the current intent.
func (s *Session) Intent() model.TransferIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intent
}

// Quote returns the current quote, nil while none is held.
func (s *Session) Quote() *model.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quote == nil {
		return nil
	}
	q := *s.quote
	return &q
}

// Record returns the current transfer record, nil before execution.
func (s *Session) Record() *model.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil
	}
	r := *s.record
	return &r
}

// TokensForChain and ChainsForToken expose the filtered catalog views
// that drive selection. Pure reads, no session mutation.
func (s *Session) TokensForChain(chainID string) []model.TokenEntry {
	return s.catalog.FilterTokensForChain(chainID)
}

func (s *Session) ChainsForToken(tokenID string) []model.ChainEntry {
	return s.catalog.FilterChainsForToken(tokenID)
}

func (s *Session) SetSourceToken(token string) {
	s.edit(func() { s.intent.SourceToken = token })
}

func (s *Session) SetDestinationToken(token string) {
	s.edit(func() { s.intent.DestinationToken = token })
}

func (s *Session) SetSourceChain(chainID string) {
	s.edit(func() { s.intent.SourceChain = chainID })
}

func (s *Session) SetDestinationChain(chainID string) {
	s.edit(func() { s.intent.DestinationChain = chainID })
}

func (s *Session) SetDepositor(addr string) {
	s.edit(func() { s.intent.Depositor = addr })
}

func (s *Session) SetRecipient(addr string) {
	s.edit(func() { s.intent.Recipient = addr })
}

// EnterAmount records an amount keystroke. The quote request fires only
// after the debounce window passes without another edit.
func (s *Session) EnterAmount(amount string) {
	s.edit(func() { s.intent.Amount = amount })
}

// edit applies an intent mutation, invalidates any held quote, and
// restarts the debounce clock. Whatever request was in flight for the
// previous intent is superseded.
func (s *Session) edit(apply func()) {
	s.mu.Lock()
	apply()
	s.seq++
	mySeq := s.seq
	s.quote = nil
	s.quoteErr = nil
	if s.quoteCancel != nil {
		s.quoteCancel()
		s.quoteCancel = nil
	}
	ready := s.intent.Amount != ""
	s.quotePending = ready
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if ready {
		s.timer = time.AfterFunc(s.Debounce, func() { s.requestQuote(mySeq) })
	}
	s.mu.Unlock()
	s.publish()
}

// RefreshQuote requests a quote immediately, bypassing the debounce.
// Used when a held quote expires before confirmation.
func (s *Session) RefreshQuote() {
	s.mu.Lock()
	s.seq++
	mySeq := s.seq
	s.quote = nil
	s.quoteErr = nil
	s.quotePending = true
	if s.quoteCancel != nil {
		s.quoteCancel()
		s.quoteCancel = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.publish()
	go s.requestQuote(mySeq)
}

// requestQuote performs the provider call for one debounce generation.
// Results for superseded generations are dropped unconditionally: the
// last edit wins regardless of response ordering.
func (s *Session) requestQuote(mySeq uint64) {
	s.mu.Lock()
	if mySeq != s.seq {
		s.mu.Unlock()
		return
	}
	intent := s.intent
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.quoteCancel = cancel
	s.mu.Unlock()
	defer cancel()

	q, err := s.quotes.RequestQuote(ctx, intent)

	s.mu.Lock()
	if mySeq != s.seq {
		s.mu.Unlock()
		return
	}
	s.quotePending = false
	s.quoteCancel = nil
	if err != nil {
		s.quote = nil
		s.quoteErr = err
	} else {
		s.quote = &q
		s.quoteErr = nil
	}
	s.mu.Unlock()
	s.publish()
}

// ConfirmExecution starts an execution attempt for the held quote and
// returns the new record's id. Execution and tracking run in the
// background; progress arrives on the snapshot stream. A retry after a
// failed attempt is just another call, producing a fresh record.
func (s *Session) ConfirmExecution() (string, error) {
	s.mu.Lock()
	if s.quotePending {
		s.mu.Unlock()
		return "", clierr.New(clierr.ClassValidation, "a quote request is still in flight")
	}
	if s.quote == nil {
		s.mu.Unlock()
		if s.quoteErr != nil {
			return "", s.quoteErr
		}
		return "", clierr.New(clierr.ClassValidation, "no quote held; enter an amount first")
	}
	if s.quote.IsExpired(s.now()) {
		s.mu.Unlock()
		return "", clierr.New(clierr.ClassQuoteExpired, "quote expired; request a fresh one before executing")
	}
	if s.record != nil && !s.record.State.Terminal() {
		s.mu.Unlock()
		return "", clierr.New(clierr.ClassValidation, "an execution attempt is already running")
	}

	now := s.now()
	rec := &model.TransferRecord{
		ID:        s.newID(),
		Intent:    s.intent,
		Quote:     *s.quote,
		Path:      execution.ChoosePath(s.sponsor, s.intent.DestinationChain),
		State:     model.StateConfirm,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// The executing goroutine owns rec exclusively; the session keeps a
	// copy and refreshes it from the value copies arriving via notify.
	held := *rec
	s.record = &held

	ctx, cancel := context.WithCancel(context.Background())
	s.execCancel = cancel
	s.mu.Unlock()
	s.publish()

	go s.run(ctx, rec)
	return rec.ID, nil
}

func (s *Session) run(ctx context.Context, rec *model.TransferRecord) {
	if err := s.executor.Execute(ctx, rec); err != nil {
		return
	}
	if rec.State == model.StateBridging {
		_ = s.tracker.Track(ctx, rec)
	}
}

// Cancel abandons the session's local work: pending debounce, in-flight
// quote, and status tracking. A transfer already broadcast keeps
// settling on-chain; cancellation only stops watching it.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.seq++
	s.quotePending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.quoteCancel != nil {
		s.quoteCancel()
		s.quoteCancel = nil
	}
	if s.execCancel != nil {
		s.execCancel()
		s.execCancel = nil
	}
	s.mu.Unlock()
	s.publish()
}

// ContinueInBackground detaches the snapshot stream while tracking
// keeps running. It returns the identifiers needed to check on the
// transfer later with the status command.
func (s *Session) ContinueInBackground() (recordID, bridgeID string) {
	s.mu.Lock()
	s.detached = true
	if s.record != nil {
		recordID = s.record.ID
		bridgeID = s.record.BridgeID
	}
	s.mu.Unlock()
	return recordID, bridgeID
}

func (s *Session) publishRecord(rec model.TransferRecord) {
	s.mu.Lock()
	if s.record != nil && s.record.ID == rec.ID {
		copied := rec
		s.record = &copied
	}
	s.mu.Unlock()
	s.publish()
}

// publish pushes the current snapshot, evicting the oldest buffered one
// for a slow consumer rather than blocking session mutation.
func (s *Session) publish() {
	s.mu.Lock()
	snap := Snapshot{
		Seq:          s.seq,
		Intent:       s.intent,
		QuoteErr:     s.quoteErr,
		QuotePending: s.quotePending,
	}
	if s.quote != nil {
		q := *s.quote
		snap.Quote = &q
	}
	if s.record != nil {
		r := *s.record
		snap.Record = &r
	}
	detached := s.detached
	s.mu.Unlock()

	if detached {
		return
	}
	select {
	case s.updates <- snap:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- snap:
		default:
		}
	}
}
