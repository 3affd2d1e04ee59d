package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	methodGetAmountsOut = "getAmountsOut"
	methodDecimals      = "decimals"
)

// RouterABIJSON is the subset of the Uniswap V2 router interface used for quotes.
const RouterABIJSON = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"}
		],
		"name": "getAmountsOut",
		"outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20ABIJSON is the subset of the ERC-20 interface used for unit conversion.
const ERC20ABIJSON = `[
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	RouterABI = mustParseABI(RouterABIJSON)
	ERC20ABI  = mustParseABI(ERC20ABIJSON)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}

	return parsed
}
