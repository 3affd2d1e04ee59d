package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/umee-network/dexprice/dex"
	"github.com/umee-network/dexprice/loops"
	"github.com/umee-network/dexprice/pricefeed"
)

func getWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [token-address]...",
		Short: "Poll the USD prices of tokens on an exchange",
		Long: `Poll the USD prices of one or more tokens on a fixed interval.
Tokens are quoted concurrently and share the exchange rate limit.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := make([]common.Address, len(args))
			for i, arg := range args {
				token, err := parseAddress(arg)
				if err != nil {
					return err
				}
				tokens[i] = token
			}

			exchangeName, _ := cmd.Flags().GetString(flagExchange)
			exchange, err := dex.ParseExchange(exchangeName)
			if err != nil {
				return err
			}

			interval, _ := cmd.Flags().GetDuration(flagInterval)
			if interval <= 0 {
				return errors.Errorf("invalid interval: %s", interval)
			}

			svc, err := newPriceService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			logger := svc.logger.With().Str("loop", "PriceWatcher").Str("exchange", exchange.String()).Logger()
			logger.Info().Int("tokens", len(tokens)).Dur("interval", interval).Msg("watching token prices")

			return loops.RunLoop(cmd.Context(), logger, interval, func(ctx context.Context) error {
				prices, err := fetchPrices(ctx, svc.fetcher, exchange, tokens)
				if err != nil {
					logger.Err(err).Msg("failed to fetch some token prices")
				}

				logPrices(logger, prices)
				writePrices(cmd.OutOrStdout(), time.Now(), tokens, prices)
				return nil
			})
		},
	}

	cmd.Flags().AddFlagSet(watchFlagSet())

	return cmd
}

// fetchPrices quotes every token concurrently. Prices that could be fetched
// are returned together with the combined error of the others.
func fetchPrices(
	ctx context.Context,
	feed pricefeed.PriceFeed,
	exchange dex.Exchange,
	tokens []common.Address,
) (map[common.Address]string, error) {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		prices = make(map[common.Address]string, len(tokens))
		result *multierror.Error
	)

	for _, token := range tokens {
		token := token
		g.Go(func() error {
			price, err := feed.GetTokenPrice(ctx, token, exchange)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result = multierror.Append(result, errors.Wrap(err, token.Hex()))
				return nil
			}

			prices[token] = price
			return nil
		})
	}

	// goroutines report failures through result
	_ = g.Wait()

	return prices, result.ErrorOrNil()
}

func writePrices(w io.Writer, at time.Time, tokens []common.Address, prices map[common.Address]string) {
	for _, token := range tokens {
		price, ok := prices[token]
		if !ok {
			price = "unavailable"
		}

		fmt.Fprintf(w, "%s %s %s\n", at.UTC().Format(time.RFC3339), token.Hex(), price)
	}
}

// logPrices records each poll at debug level.
func logPrices(logger zerolog.Logger, prices map[common.Address]string) {
	for token, price := range prices {
		logger.Debug().Str("token", token.Hex()).Str("price", price).Msg("token price")
	}
}
