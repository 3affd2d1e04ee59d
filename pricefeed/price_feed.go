package pricefeed

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/umee-network/dexprice/dex"
)

// PriceFeed provides the USD price of a token on a given exchange.
type PriceFeed interface {
	GetTokenPrice(ctx context.Context, token common.Address, exchange dex.Exchange) (string, error)
}

// Quoter performs the on-chain reads a quote is made of.
type Quoter interface {
	TokenDecimals(ctx context.Context, network dex.Network, token common.Address) (uint8, error)
	GetAmountsOut(
		ctx context.Context,
		network dex.Network,
		router common.Address,
		amountIn *big.Int,
		path []common.Address,
	) ([]*big.Int, error)
}

// Limiter gates requests per key, recording admitted requests.
type Limiter interface {
	TryAcquire(key string) bool
}
