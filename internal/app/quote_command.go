package app

import (
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/crosspay/internal/model"
	"github.com/ggonzalez94/crosspay/internal/quote"
)

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var scope string
	var intent model.TransferIntent
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Get a priced quote for a transfer intent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext()
			defer cancel()
			cat, err := s.loadCatalog(ctx, scope)
			if err != nil {
				return err
			}
			engine := quote.NewEngine(s.gateway, cat)
			q, err := engine.RequestQuote(ctx, intent)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), q)
		},
	}
	cmd.Flags().StringVar(&intent.SourceToken, "from-token", "", "Source token symbol")
	cmd.Flags().StringVar(&intent.DestinationToken, "to-token", "", "Destination token symbol (defaults to --from-token)")
	cmd.Flags().StringVar(&intent.SourceChain, "from", "", "Source chain id/name/CAIP-2")
	cmd.Flags().StringVar(&intent.DestinationChain, "to", "", "Destination chain id/name/CAIP-2")
	cmd.Flags().StringVar(&intent.Amount, "amount", "", "Amount in source-token decimal units")
	cmd.Flags().StringVar(&intent.Depositor, "depositor", "", "Depositor address on the source chain")
	cmd.Flags().StringVar(&intent.Recipient, "recipient", "", "Recipient address on the destination chain")
	cmd.Flags().StringVar(&scope, "scope", "", "Catalog scope (default, testnet)")
	_ = cmd.MarkFlagRequired("from-token")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("depositor")
	_ = cmd.MarkFlagRequired("recipient")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if intent.DestinationToken == "" {
			intent.DestinationToken = intent.SourceToken
		}
		return nil
	}
	return cmd
}
