package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/umee-network/dexprice/coingecko"
	"github.com/umee-network/dexprice/ethereum"
	"github.com/umee-network/dexprice/pricefeed"
	"github.com/umee-network/dexprice/ratelimit"
)

// NewRootCmd returns the dexprice command tree. Without a subcommand it
// prices a fixed token on Uniswap.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dexprice",
		Short:        "Fetch token USD prices from on-chain DEX router quotes",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runDefaultPrice,
	}

	cmd.PersistentFlags().AddFlagSet(rootFlagSet())
	cmd.PersistentFlags().AddFlagSet(rpcFlagSet())
	cmd.PersistentFlags().AddFlagSet(fetcherFlagSet())

	cmd.AddCommand(
		getPriceCmd(),
		getQuoteCmd(),
		getWatchCmd(),
	)

	return cmd
}

// parseServerConfig layers the optional config file, the environment and
// explicitly set flags, in increasing precedence. Unset flags provide defaults.
func parseServerConfig(cmd *cobra.Command) (*koanf.Koanf, error) {
	konfig := koanf.New(".")

	if path, _ := cmd.Flags().GetString(flagConfig); path != "" {
		if err := konfig.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := konfig.Load(env.Provider(envPrefix, ".", envKey(envPrefix)), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// INFURA_API_KEY -> infura-api-key
	if err := konfig.Load(env.Provider("INFURA_", ".", envKey("")), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := konfig.Load(posflag.Provider(cmd.Flags(), ".", konfig), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	return konfig, nil
}

func envKey(prefix string) func(string) string {
	return func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, prefix)), "_", "-")
	}
}

func getLogger(konfig *koanf.Koanf) (zerolog.Logger, error) {
	logLvlStr := konfig.String(flagLogLevel)
	logLvl, err := zerolog.ParseLevel(logLvlStr)
	if err != nil {
		return zerolog.Nop(), err
	}

	var logWriter io.Writer

	logFormatStr := konfig.String(flagLogFormat)
	switch strings.ToLower(logFormatStr) {
	case logLevelJSON:
		logWriter = os.Stderr

	case logLevelText:
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}

	default:
		return zerolog.Nop(), fmt.Errorf("invalid logging format: %s", logFormatStr)
	}

	return zerolog.New(logWriter).Level(logLvl).With().Timestamp().Logger(), nil
}

// positiveInt reads a count that must be at least one. Values from the config
// file or the environment skip the flag type checks, and a non numeric value
// reads as zero.
func positiveInt(konfig *koanf.Koanf, key string) (int, error) {
	v := konfig.Int(key)
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q must be a positive integer", key, konfig.String(key))
	}

	return v, nil
}

// priceService bundles everything a command needs to fetch prices.
type priceService struct {
	logger    zerolog.Logger
	client    *ethereum.Client
	fetcher   *pricefeed.Fetcher
	reference *coingecko.PriceFeed
}

func newPriceService(cmd *cobra.Command) (*priceService, error) {
	konfig, err := parseServerConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := getLogger(konfig)
	if err != nil {
		return nil, err
	}

	ethRPC, err := parseURL(logger, konfig, flagEthRPC)
	if err != nil {
		return nil, err
	}

	bscRPC, err := parseURL(logger, konfig, flagBSCRPC)
	if err != nil {
		return nil, err
	}

	maxAttempts, err := positiveInt(konfig, flagMaxAttempts)
	if err != nil {
		return nil, err
	}

	maxRequests, err := positiveInt(konfig, flagMaxRequests)
	if err != nil {
		return nil, err
	}

	cacheSize, err := positiveInt(konfig, flagDecimalsCacheSize)
	if err != nil {
		return nil, err
	}

	pool := ethereum.NewPool(logger, ethereum.NetworkConfig{
		InfuraAPIKey: konfig.String(flagInfuraAPIKey),
		EthereumRPC:  ethRPC,
		BSCRPC:       bscRPC,
	}, nil)

	client, err := ethereum.NewClient(logger, pool, ethereum.ClientConfig{
		RPCTimeout:        konfig.Duration(flagRPCTimeout),
		DecimalsCacheSize: cacheSize,
	})
	if err != nil {
		return nil, err
	}

	window := konfig.Duration(flagRateWindow)
	limiter := ratelimit.NewSlidingWindow(maxRequests, window, nil)

	fetcher := pricefeed.NewFetcher(logger, client, limiter, pricefeed.Config{
		MaxAttempts: uint(maxAttempts),
		RetryDelay:  limiter.Window(),
	})

	reference := coingecko.NewPriceFeed(logger, &coingecko.Config{
		BaseURL: konfig.String(flagCoinGeckoAPI),
	})

	return &priceService{
		logger:    logger,
		client:    client,
		fetcher:   fetcher,
		reference: reference,
	}, nil
}

func (s *priceService) Close() {
	s.client.Close()
}
