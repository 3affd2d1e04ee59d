package dex

import "github.com/ethereum/go-ethereum/common"

// QuotePath returns the swap route used to price token on network.
// The stable token itself is routed to the wrapped native token only, every
// other token goes through the wrapped native token into the stable token.
func QuotePath(network Network, token common.Address) []common.Address {
	if token == network.Stable() {
		return []common.Address{token, network.WrappedNative()}
	}

	return []common.Address{token, network.WrappedNative(), network.Stable()}
}
