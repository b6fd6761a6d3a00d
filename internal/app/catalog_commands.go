package app

import (
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
	"github.com/ggonzalez94/crosspay/internal/id"
)

func (s *runtimeState) newCatalogCommand() *cobra.Command {
	root := &cobra.Command{Use: "catalog", Short: "Chain and token catalog"}

	var scope string
	var chainsToken string
	chainsCmd := &cobra.Command{
		Use:   "chains",
		Short: "List chains, optionally filtered for a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext()
			defer cancel()
			cat, err := s.loadCatalog(ctx, scope)
			if err != nil {
				return err
			}
			if strings.TrimSpace(chainsToken) != "" {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), cat.FilterChainsForToken(strings.TrimSpace(chainsToken)))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), cat.Chains())
		},
	}
	chainsCmd.Flags().StringVar(&chainsToken, "token", "", "Rank chains by availability of this token")
	chainsCmd.Flags().StringVar(&scope, "scope", "", "Catalog scope (default, testnet)")

	var tokensScope string
	var tokensChain string
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "List tokens available on a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := id.ParseChain(tokensChain)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			cat, err := s.loadCatalog(ctx, tokensScope)
			if err != nil {
				return err
			}
			if !cat.HasChain(chain.CAIP2) {
				return clierr.New(clierr.ClassUnsupportedChain, "chain is not in the catalog: "+chain.CAIP2)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), cat.FilterTokensForChain(chain.CAIP2))
		},
	}
	tokensCmd.Flags().StringVar(&tokensChain, "chain", "", "Chain id/name/CAIP-2")
	tokensCmd.Flags().StringVar(&tokensScope, "scope", "", "Catalog scope (default, testnet)")
	_ = tokensCmd.MarkFlagRequired("chain")

	root.AddCommand(chainsCmd)
	root.AddCommand(tokensCmd)
	return root
}
