package pricefeed

import (
	"context"
	"math/big"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/umee-network/dexprice/dex"
	"github.com/umee-network/dexprice/ratelimit"
)

const (
	DefaultMaxAttempts = 5

	// ZeroPrice is reported by PriceOrZero when no price could be fetched.
	ZeroPrice = "0"
)

var (
	// ErrRateLimited marks an attempt rejected by the limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrPriceUnavailable is returned once every attempt failed.
	ErrPriceUnavailable = errors.New("price unavailable")
)

type Config struct {
	MaxAttempts uint
	// RetryDelay is the fixed wait after a failed or rate limited attempt.
	RetryDelay time.Duration
}

// Quote is the result of a single getAmountsOut round trip.
type Quote struct {
	Exchange dex.Exchange
	Token    common.Address
	Path     []common.Address
	AmountIn *big.Int
	Amounts  []*big.Int
	// Decimals of the network's stable token, used to scale Price.
	Decimals uint8
	Price    decimal.Decimal
}

// Fetcher prices tokens through DEX router quotes under a per-exchange rate
// limit. It is safe for concurrent use.
type Fetcher struct {
	quoter  Quoter
	limiter Limiter

	maxAttempts uint
	retryDelay  time.Duration

	logger zerolog.Logger
}

var _ PriceFeed = (*Fetcher)(nil)

func NewFetcher(logger zerolog.Logger, quoter Quoter, limiter Limiter, cfg Config) *Fetcher {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = ratelimit.DefaultWindow
	}

	return &Fetcher{
		quoter:      quoter,
		limiter:     limiter,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      logger.With().Str("module", "dex_pricefeed").Logger(),
	}
}

// GetTokenPrice returns the USD price of token as quoted by exchange, as a
// decimal string. Rate limited and failed attempts are retried after a fixed
// delay; when all attempts fail the error wraps ErrPriceUnavailable.
// No delay follows the final attempt, so exhausting n attempts waits n-1 times.
func (f *Fetcher) GetTokenPrice(ctx context.Context, token common.Address, exchange dex.Exchange) (string, error) {
	if !exchange.Valid() {
		return "", errors.Wrapf(dex.ErrUnknownExchange, "%q", exchange)
	}

	logger := f.logger.With().
		Str("exchange", exchange.String()).
		Str("token", token.Hex()).
		Logger()

	var price decimal.Decimal

	err := retry.Do(func() error {
		if !f.limiter.TryAcquire(exchange.String()) {
			return ErrRateLimited
		}

		quote, err := f.Quote(ctx, token, exchange)
		if err != nil {
			return err
		}

		price = quote.Price
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(f.maxAttempts),
		retry.Delay(f.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if errors.Is(err, ErrRateLimited) {
				logger.Warn().Uint("attempt", n+1).Msg("rate limited")
				return
			}
			logger.Err(err).Uint("attempt", n+1).Msg("failed to fetch token price")
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		return "", errors.Wrapf(ErrPriceUnavailable, "%s on %s after %d attempts: %v",
			token.Hex(), exchange, f.maxAttempts, err)
	}

	logger.Debug().Str("price", price.String()).Msg("token price fetched")

	return price.String(), nil
}

// PriceOrZero is GetTokenPrice collapsing every failure into ZeroPrice.
func (f *Fetcher) PriceOrZero(ctx context.Context, token common.Address, exchange dex.Exchange) string {
	price, err := f.GetTokenPrice(ctx, token, exchange)
	if err != nil {
		f.logger.Err(err).Msg("token price unavailable")
		return ZeroPrice
	}

	return price
}

// Quote performs a single quote for one whole unit of token, bypassing the
// rate limiter and retries.
func (f *Fetcher) Quote(ctx context.Context, token common.Address, exchange dex.Exchange) (*Quote, error) {
	if !exchange.Valid() {
		return nil, errors.Wrapf(dex.ErrUnknownExchange, "%q", exchange)
	}

	var (
		network = exchange.Network()
		path    = dex.QuotePath(network, token)
	)

	tokenDecimals, err := f.quoter.TokenDecimals(ctx, network, token)
	if err != nil {
		return nil, err
	}

	amountIn := OneUnit(tokenDecimals)

	amounts, err := f.quoter.GetAmountsOut(ctx, network, exchange.Router(), amountIn, path)
	if err != nil {
		return nil, err
	}

	if len(amounts) < len(path) {
		return nil, errors.Errorf("got %d amounts for a %d hop path", len(amounts), len(path))
	}

	stableDecimals, err := f.quoter.TokenDecimals(ctx, network, network.Stable())
	if err != nil {
		return nil, err
	}

	return &Quote{
		Exchange: exchange,
		Token:    token,
		Path:     path,
		AmountIn: amountIn,
		Amounts:  amounts,
		Decimals: stableDecimals,
		Price:    FormatUnits(amounts[len(path)-1], stableDecimals),
	}, nil
}

// OneUnit returns 10^decimals, one whole token in its smallest unit.
func OneUnit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// FormatUnits scales an amount in smallest units down by decimals.
func FormatUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}
