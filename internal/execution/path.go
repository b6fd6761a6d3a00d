package execution

import (
	"github.com/ggonzalez94/crosspay/internal/model"
	"github.com/ggonzalez94/crosspay/internal/registry"
	"github.com/ggonzalez94/crosspay/internal/wallet"
)

// ChoosePath picks the execution strategy for a transfer. Sponsored
// smart-account execution needs both a configured sponsor and a
// destination on the sponsorship allow-list; everything else goes
// through the standard wallet channel. The choice is made once per
// execution attempt and never changes mid-flight.
func ChoosePath(sponsor wallet.SmartAccountHandler, destinationChain string) model.PathKind {
	if sponsor != nil && registry.IsSponsoredChain(destinationChain) {
		return model.PathSponsoredSmartAccount
	}
	return model.PathStandardWallet
}
