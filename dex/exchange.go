package dex

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrUnknownExchange is returned for exchange identifiers outside the supported set.
var ErrUnknownExchange = errors.New("unknown exchange")

// Network identifies the chain an exchange router is deployed on.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkBSC      Network = "bsc"
)

// Exchange identifies a Uniswap V2 compatible router.
type Exchange string

const (
	Uniswap     Exchange = "uniswap"
	Sushiswap   Exchange = "sushiswap"
	Pancakeswap Exchange = "pancakeswap"
)

type exchangeInfo struct {
	router  common.Address
	network Network
}

type networkTokens struct {
	wrappedNative common.Address
	stable        common.Address
}

var exchanges = map[Exchange]exchangeInfo{
	Uniswap: {
		router:  common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		network: NetworkEthereum,
	},
	Sushiswap: {
		router:  common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
		network: NetworkEthereum,
	},
	Pancakeswap: {
		router:  common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E"),
		network: NetworkBSC,
	},
}

var tokens = map[Network]networkTokens{
	// WETH, USDC
	NetworkEthereum: {
		wrappedNative: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		stable:        common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	},
	// WBNB, Binance-Peg USDC (18 decimals)
	NetworkBSC: {
		wrappedNative: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
		stable:        common.HexToAddress("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d"),
	},
}

// Exchanges returns the supported exchanges in a stable order.
func Exchanges() []Exchange {
	return []Exchange{Uniswap, Sushiswap, Pancakeswap}
}

// ParseExchange maps a case-insensitive name onto a supported Exchange.
func ParseExchange(name string) (Exchange, error) {
	e := Exchange(strings.ToLower(strings.TrimSpace(name)))
	if !e.Valid() {
		return "", errors.Wrapf(ErrUnknownExchange, "%q", name)
	}

	return e, nil
}

func (e Exchange) Valid() bool {
	_, ok := exchanges[e]
	return ok
}

func (e Exchange) String() string {
	return string(e)
}

// Router returns the router contract address. The zero address is returned
// for unknown exchanges.
func (e Exchange) Router() common.Address {
	return exchanges[e].router
}

// Network returns the chain the exchange router lives on.
func (e Exchange) Network() Network {
	return exchanges[e].network
}

func (n Network) String() string {
	return string(n)
}

// WrappedNative returns the wrapped native currency token used as the routing hop.
func (n Network) WrappedNative() common.Address {
	return tokens[n].wrappedNative
}

// Stable returns the USD reference token of the network.
func (n Network) Stable() common.Address {
	return tokens[n].stable
}
