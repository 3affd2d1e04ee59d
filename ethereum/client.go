package ethereum

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/umee-network/dexprice/dex"
)

const (
	DefaultRPCTimeout        = 15 * time.Second
	DefaultDecimalsCacheSize = 1024
)

type ClientConfig struct {
	// RPCTimeout bounds every contract call; zero disables the bound.
	RPCTimeout        time.Duration
	DecimalsCacheSize int
}

type decimalsKey struct {
	network dex.Network
	token   common.Address
}

// Client performs the read-only router and token calls needed for quotes.
type Client struct {
	pool       *Pool
	decimals   *lru.Cache[decimalsKey, uint8]
	rpcTimeout time.Duration

	logger zerolog.Logger
}

func NewClient(logger zerolog.Logger, pool *Pool, cfg ClientConfig) (*Client, error) {
	size := cfg.DecimalsCacheSize
	if size <= 0 {
		size = DefaultDecimalsCacheSize
	}

	cache, err := lru.New[decimalsKey, uint8](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create decimals cache")
	}

	return &Client{
		pool:       pool,
		decimals:   cache,
		rpcTimeout: cfg.RPCTimeout,
		logger:     logger.With().Str("module", "eth_client").Logger(),
	}, nil
}

// TokenDecimals returns the ERC-20 decimals of token. Results are cached per
// network since decimals never change after deployment.
func (c *Client) TokenDecimals(ctx context.Context, network dex.Network, token common.Address) (uint8, error) {
	key := decimalsKey{network: network, token: token}
	if d, ok := c.decimals.Get(key); ok {
		return d, nil
	}

	var out []interface{}
	if err := c.call(ctx, network, token, ERC20ABI, &out, methodDecimals); err != nil {
		return 0, errors.Wrapf(err, "failed to get decimals of token %s", token.Hex())
	}

	if len(out) == 0 {
		return 0, errors.Errorf("no decimals found for token contract %s", token.Hex())
	}

	d := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	c.decimals.Add(key, d)

	c.logger.Debug().
		Str("network", network.String()).
		Str("token", token.Hex()).
		Uint8("decimals", d).
		Msg("token decimals loaded")

	return d, nil
}

// GetAmountsOut asks router for the output amount of every hop along path.
func (c *Client) GetAmountsOut(
	ctx context.Context,
	network dex.Network,
	router common.Address,
	amountIn *big.Int,
	path []common.Address,
) ([]*big.Int, error) {
	var out []interface{}
	if err := c.call(ctx, network, router, RouterABI, &out, methodGetAmountsOut, amountIn, path); err != nil {
		return nil, errors.Wrapf(err, "failed to get amounts out from router %s", router.Hex())
	}

	if len(out) == 0 {
		return nil, errors.Errorf("empty getAmountsOut response from router %s", router.Hex())
	}

	amounts := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	if len(amounts) != len(path) {
		return nil, errors.Errorf("router returned %d amounts for a path of %d tokens", len(amounts), len(path))
	}

	return amounts, nil
}

// Close releases the underlying connections.
func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) call(
	ctx context.Context,
	network dex.Network,
	contract common.Address,
	contractABI abi.ABI,
	out *[]interface{},
	method string,
	params ...interface{},
) error {
	conn, err := c.pool.Conn(ctx, network)
	if err != nil {
		return err
	}

	if c.rpcTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.rpcTimeout)
		defer cancel()
	}

	bound := bind.NewBoundContract(contract, contractABI, conn, nil, nil)
	return bound.Call(&bind.CallOpts{Context: ctx}, out, method, params...)
}
