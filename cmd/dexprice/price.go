package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/umee-network/dexprice/dex"
)

// defaultToken is priced when dexprice runs without a subcommand (UNI).
var defaultToken = common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984")

func runDefaultPrice(cmd *cobra.Command, _ []string) error {
	svc, err := newPriceService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	price := svc.fetcher.PriceOrZero(cmd.Context(), defaultToken, dex.Uniswap)

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Price of token on %s: $%s\n", dex.Uniswap, price)
	return err
}

func getPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price [token-address] [exchange]",
		Short: "Print the USD price of a token quoted by a DEX router",
		Long: `Print the USD price of a token quoted by a DEX router.
The exchange defaults to uniswap. Rate limited and failed quotes are retried;
the command fails once every attempt was used.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, exchange, err := parseTokenArgs(args)
			if err != nil {
				return err
			}

			svc, err := newPriceService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			price, err := svc.fetcher.GetTokenPrice(cmd.Context(), token, exchange)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", price)

			withReference, _ := cmd.Flags().GetBool(flagReference)
			if !withReference {
				return nil
			}

			ref, err := svc.reference.QueryUSDPrice(cmd.Context(), exchange.Network(), token)
			if err != nil {
				svc.logger.Warn().Err(err).Msg("failed to fetch reference price")
				return nil
			}

			onChain, err := decimal.NewFromString(price)
			if err != nil {
				return errors.Wrapf(err, "invalid price %q", price)
			}

			fmt.Fprintf(out, "reference: %s (deviation %s%%)\n", ref, deviation(onChain, ref).StringFixed(2))
			return nil
		},
	}

	cmd.Flags().Bool(flagReference, false, "Also print the CoinGecko reference price and the deviation from it")

	return cmd
}

func getQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote [token-address] [exchange]",
		Short: "Request a single router quote and print the route and raw amounts",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, exchange, err := parseTokenArgs(args)
			if err != nil {
				return err
			}

			svc, err := newPriceService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			quote, err := svc.fetcher.Quote(cmd.Context(), token, exchange)
			if err != nil {
				return err
			}

			hops := make([]string, len(quote.Path))
			for i, addr := range quote.Path {
				hops[i] = addr.Hex()
			}

			amounts := make([]string, len(quote.Amounts))
			for i, amount := range quote.Amounts {
				amounts[i] = amount.String()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "exchange: %s (%s)\n", quote.Exchange, quote.Exchange.Network())
			fmt.Fprintf(out, "router:   %s\n", quote.Exchange.Router().Hex())
			fmt.Fprintf(out, "path:     %s\n", strings.Join(hops, " -> "))
			fmt.Fprintf(out, "amounts:  %s\n", strings.Join(amounts, ", "))
			fmt.Fprintf(out, "price:    %s\n", quote.Price)

			return nil
		},
	}

	return cmd
}

// parseTokenArgs reads a token address and an optional exchange name.
func parseTokenArgs(args []string) (common.Address, dex.Exchange, error) {
	token, err := parseAddress(args[0])
	if err != nil {
		return common.Address{}, "", err
	}

	exchange := dex.Uniswap
	if len(args) > 1 {
		exchange, err = dex.ParseExchange(args[1])
		if err != nil {
			return common.Address{}, "", err
		}
	}

	return token, exchange, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("invalid token address: %s", s)
	}

	return common.HexToAddress(s), nil
}

// deviation returns the relative difference of price from reference in percent.
func deviation(price, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}

	return price.Sub(reference).Div(reference).Mul(decimal.NewFromInt(100))
}
