package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/execution"
	"github.com/ggonzalez94/crosspay/internal/model"
	"github.com/ggonzalez94/crosspay/internal/quote"
	"github.com/ggonzalez94/crosspay/internal/session"
	"github.com/ggonzalez94/crosspay/internal/wallet"
)

func (s *runtimeState) newTransferCommand() *cobra.Command {
	var intent model.TransferIntent
	var scope, rpcURL, keySource string
	var yes, background bool
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Quote and execute a cross-chain transfer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return clierr.New(clierr.ClassValidation, "transfer requires --yes")
			}
			if intent.DestinationToken == "" {
				intent.DestinationToken = intent.SourceToken
			}

			ctx, cancel := s.commandContext()
			cat, err := s.loadCatalog(ctx, scope)
			cancel()
			if err != nil {
				return err
			}

			if keySource == "" {
				keySource = s.settings.KeySource
			}
			if rpcURL == "" {
				rpcURL = s.settings.RPCURL
			}
			channel, err := wallet.NewLocalChannelFromEnv(keySource, rpcURL)
			if err != nil {
				return clierr.Wrap(clierr.ClassValidation, "initialize wallet", err)
			}
			if strings.TrimSpace(intent.Depositor) == "" {
				intent.Depositor = channel.Address().Hex()
			}
			if strings.TrimSpace(intent.Recipient) == "" {
				intent.Recipient = intent.Depositor
			}

			sponsor := &wallet.GatewaySponsor{Submit: s.gateway.Submit}
			engine := quote.NewEngine(s.gateway, cat)
			executor := execution.NewExecutor(s.gateway, channel, sponsor)
			tracker := execution.NewTracker(s.gateway)
			sess := session.New(cat, engine, executor, tracker, sponsor, s.settings.Timeout)

			plain := s.settings.OutputMode == "plain"

			sess.SetSourceToken(intent.SourceToken)
			sess.SetDestinationToken(intent.DestinationToken)
			sess.SetSourceChain(intent.SourceChain)
			sess.SetDestinationChain(intent.DestinationChain)
			sess.SetDepositor(intent.Depositor)
			sess.SetRecipient(intent.Recipient)
			sess.EnterAmount(intent.Amount)

			q, err := s.awaitQuote(sess, plain)
			if err != nil {
				return err
			}
			if plain {
				printQuote(q)
			}

			if _, err := sess.ConfirmExecution(); err != nil {
				return err
			}
			return s.watchExecution(cmd, sess, plain, background)
		},
	}
	cmd.Flags().StringVar(&intent.SourceToken, "from-token", "", "Source token symbol")
	cmd.Flags().StringVar(&intent.DestinationToken, "to-token", "", "Destination token symbol (defaults to --from-token)")
	cmd.Flags().StringVar(&intent.SourceChain, "from", "", "Source chain id/name/CAIP-2")
	cmd.Flags().StringVar(&intent.DestinationChain, "to", "", "Destination chain id/name/CAIP-2")
	cmd.Flags().StringVar(&intent.Amount, "amount", "", "Amount in source-token decimal units")
	cmd.Flags().StringVar(&intent.Depositor, "depositor", "", "Depositor address (defaults to the wallet address)")
	cmd.Flags().StringVar(&intent.Recipient, "recipient", "", "Recipient address (defaults to --depositor)")
	cmd.Flags().StringVar(&scope, "scope", "", "Catalog scope (default, testnet)")
	cmd.Flags().StringVar(&rpcURL, "rpc-url", "", "RPC URL override for the source chain")
	cmd.Flags().StringVar(&keySource, "key-source", "", "Signing key source (auto|env|file|keystore)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm execution without prompting")
	cmd.Flags().BoolVar(&background, "background", false, "Detach once bridging starts and print the bridge id")
	_ = cmd.MarkFlagRequired("from-token")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// awaitQuote consumes the session stream until the debounced quote
// request settles one way or the other.
func (s *runtimeState) awaitQuote(sess *session.Session, plain bool) (model.Quote, error) {
	var spin *spinner.Spinner
	if plain {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		spin.Suffix = " Fetching quote..."
		spin.Start()
		defer spin.Stop()
	}

	deadline := time.NewTimer(s.settings.Timeout + sess.Debounce + 2*time.Second)
	defer deadline.Stop()
	for {
		select {
		case snap := <-sess.Updates():
			if snap.QuotePending {
				continue
			}
			if snap.QuoteErr != nil {
				return model.Quote{}, snap.QuoteErr
			}
			if snap.Quote != nil {
				return *snap.Quote, nil
			}
		case <-deadline.C:
			sess.Cancel()
			return model.Quote{}, clierr.New(clierr.ClassProviderUnavailable, "timed out waiting for a quote")
		}
	}
}

// watchExecution streams execution snapshots until the transfer reaches
// a terminal state, or detaches once bridging starts when background
// mode is requested.
func (s *runtimeState) watchExecution(cmd *cobra.Command, sess *session.Session, plain, background bool) error {
	lastState := model.TransferState("")
	for snap := range sess.Updates() {
		rec := snap.Record
		if rec == nil {
			continue
		}
		if plain && rec.State != lastState {
			printState(*rec)
		}
		lastState = rec.State

		if background && rec.State == model.StateBridging {
			recordID, bridgeID := sess.ContinueInBackground()
			if plain {
				fmt.Printf("\nTracking continues in the background.\n")
				fmt.Printf("  Record:    %s\n", color.CyanString(recordID))
				fmt.Printf("  Bridge ID: %s\n", color.CyanString(bridgeID))
				fmt.Printf("Check later with: %s\n", color.HiBlackString("crosspay status --bridge-id "+bridgeID))
				return nil
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rec)
		}

		if rec.State.Terminal() {
			if rec.State == model.StateError {
				return clierr.New(clierr.Class(rec.ErrorClass), rec.ErrorMessage)
			}
			if plain {
				fmt.Printf("\n%s\n", color.GreenString("Transfer complete."))
				if rec.DestinationTxHash != "" {
					fmt.Printf("  Destination Tx: %s\n", color.HiBlackString(rec.DestinationTxHash))
				}
				return nil
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rec)
		}
	}
	return nil
}

func printQuote(q model.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     TRANSFER QUOTE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Pay:            %s %s\n", q.PayAmount, q.SourceToken)
	fmt.Printf("  Receive:        %s\n", q.ReceiveAmount)
	fmt.Printf("  Aggregator Fee: %s\n", q.AggregatorFee)
	fmt.Printf("  Platform Fee:   %s\n", q.PlatformFee)
	if q.EstimatedDurationSeconds > 0 {
		fmt.Printf("  Est. Duration:  %ds\n", q.EstimatedDurationSeconds)
	}
	fmt.Printf("  Expires:        %s\n", q.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Println("\n" + strings.Repeat("=", 60))
}

func printState(rec model.TransferRecord) {
	label := strings.ToUpper(string(rec.State))
	switch rec.State {
	case model.StateComplete:
		label = color.GreenString(label)
	case model.StateError:
		label = color.RedString(label)
	case model.StateBridging:
		label = color.YellowString(label)
	default:
		label = color.CyanString(label)
	}
	fmt.Printf("  [%s]", label)
	if rec.TransactionHash != "" {
		fmt.Printf(" tx=%s", color.HiBlackString(rec.TransactionHash))
	}
	if rec.State == model.StateBridging {
		fmt.Printf(" progress=%d%%", rec.Progress)
	}
	if rec.State == model.StateError {
		fmt.Printf(" %s", color.RedString(rec.ErrorMessage))
	}
	fmt.Println()
}
