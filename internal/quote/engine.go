package quote

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ggonzalez94/crosspay/internal/catalog"
	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/id"
	"github.com/ggonzalez94/crosspay/internal/model"
)

// Minimum transfer amount in source-token units.
var minAmount = big.NewRat(1, 10)

const directQuoteTTL = 5 * time.Minute

// Provider issues priced quotes. *gateway.Client satisfies it.
type Provider interface {
	Quote(ctx context.Context, intent model.TransferIntent) (model.Quote, error)
}

// Engine validates transfer intents and obtains priced, time-bound
// quotes. The provider is called at most once per request; superseding
// edits are expected to simply issue a new request.
type Engine struct {
	provider Provider
	catalog  *catalog.Catalog
	now      func() time.Time
}

func NewEngine(provider Provider, cat *catalog.Catalog) *Engine {
	return &Engine{provider: provider, catalog: cat, now: time.Now}
}

// RequestQuote validates every field of the intent, collecting all
// violations rather than stopping at the first, then either
// short-circuits same-chain/same-token intents into a zero-fee direct
// quote or calls the provider exactly once.
func (e *Engine) RequestQuote(ctx context.Context, intent model.TransferIntent) (model.Quote, error) {
	if err := e.Validate(intent); err != nil {
		return model.Quote{}, err
	}
	intent = canonicalize(intent)

	// Local support checks run before any network interaction.
	if !e.catalog.TokenSupported(intent.SourceChain, intent.SourceToken) {
		return model.Quote{}, clierr.New(clierr.ClassUnsupportedToken,
			fmt.Sprintf("token %s is not supported on %s", intent.SourceToken, intent.SourceChain))
	}
	if !e.catalog.TokenSupported(intent.DestinationChain, intent.DestinationToken) {
		return model.Quote{}, clierr.New(clierr.ClassUnsupportedToken,
			fmt.Sprintf("token %s is not supported on %s", intent.DestinationToken, intent.DestinationChain))
	}
	if intent.SourceChain == intent.DestinationChain {
		if err := e.catalog.CheckSameChainSwap(intent.SourceChain, intent.SourceToken, intent.DestinationToken); err != nil {
			return model.Quote{}, err
		}
	}

	// The amount must be representable in the source token's base units;
	// excess precision would be silently truncated downstream.
	if decimals, ok := e.catalog.TokenDecimals(intent.SourceChain, intent.SourceToken); ok {
		if _, err := id.DecimalToBaseUnits(intent.Amount, decimals); err != nil {
			return model.Quote{}, err
		}
	}

	if intent.IsDirect() {
		return e.directQuote(intent), nil
	}

	q, err := e.provider.Quote(ctx, intent)
	if err != nil {
		return model.Quote{}, clierr.Classify(err)
	}
	return q, nil
}

// Validate checks every intent field and reports all violations in one
// ValidationError. Validation never reaches the network.
func (e *Engine) Validate(intent model.TransferIntent) error {
	var violations []string

	amount, err := id.ParseDecimal(intent.Amount)
	if err != nil {
		violations = append(violations, fmt.Sprintf("amount: %v", err))
	} else if amount.Cmp(minAmount) < 0 {
		violations = append(violations, fmt.Sprintf("amount must be at least 0.1 %s", intent.SourceToken))
	}

	if intent.SourceToken == "" {
		violations = append(violations, "source token is required")
	}
	if intent.DestinationToken == "" {
		violations = append(violations, "destination token is required")
	}

	sourceChain, srcErr := id.ParseChain(intent.SourceChain)
	if srcErr != nil {
		violations = append(violations, fmt.Sprintf("source chain: %v", srcErr))
	} else if !e.catalog.HasChain(sourceChain.CAIP2) {
		violations = append(violations, fmt.Sprintf("source chain %s is not in the catalog", sourceChain.CAIP2))
	}
	destChain, dstErr := id.ParseChain(intent.DestinationChain)
	if dstErr != nil {
		violations = append(violations, fmt.Sprintf("destination chain: %v", dstErr))
	} else if !e.catalog.HasChain(destChain.CAIP2) {
		violations = append(violations, fmt.Sprintf("destination chain %s is not in the catalog", destChain.CAIP2))
	}

	if srcErr == nil && !id.ValidAddress(sourceChain, intent.Depositor) {
		violations = append(violations, fmt.Sprintf("depositor is not a valid %s address", sourceChain.Namespace()))
	}
	if dstErr == nil && !id.ValidAddress(destChain, intent.Recipient) {
		violations = append(violations, fmt.Sprintf("recipient is not a valid %s address", destChain.Namespace()))
	}

	if len(violations) > 0 {
		return clierr.Validation(violations)
	}
	return nil
}

// IsExpired reports whether the quote has passed its absolute deadline.
// Monotonic: once expired, expired forever.
func (e *Engine) IsExpired(q model.Quote) bool {
	return q.IsExpired(e.now())
}

// canonicalize rewrites chain inputs into their CAIP-2 form. Only valid
// intents reach it, so parse errors cannot occur here.
func canonicalize(intent model.TransferIntent) model.TransferIntent {
	if chain, err := id.ParseChain(intent.SourceChain); err == nil {
		intent.SourceChain = chain.CAIP2
	}
	if chain, err := id.ParseChain(intent.DestinationChain); err == nil {
		intent.DestinationChain = chain.CAIP2
	}
	return intent
}

func (e *Engine) directQuote(intent model.TransferIntent) model.Quote {
	// Price the direct transfer in the token's canonical decimal form
	// ("1.50" quotes as "1.5"). The echoed Amount stays verbatim so the
	// quote still matches the intent it was issued for.
	amount := intent.Amount
	if decimals, ok := e.catalog.TokenDecimals(intent.SourceChain, intent.SourceToken); ok {
		if units, err := id.DecimalToBaseUnits(intent.Amount, decimals); err == nil {
			amount = id.FormatDecimal(units, decimals)
		}
	}
	return model.Quote{
		IsDirect:      true,
		PayAmount:     amount,
		ReceiveAmount: amount,
		AggregatorFee: "0",
		PlatformFee:   "0",
		ExpiresAt:     e.now().Add(directQuoteTTL),
		SourceToken:   intent.SourceToken,
		SourceChain:   intent.SourceChain,
		Amount:        intent.Amount,
	}
}
