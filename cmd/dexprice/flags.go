// nolint: lll
package main

import (
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/umee-network/dexprice/coingecko"
	"github.com/umee-network/dexprice/dex"
	"github.com/umee-network/dexprice/ethereum"
	"github.com/umee-network/dexprice/pricefeed"
	"github.com/umee-network/dexprice/ratelimit"
)

const (
	logLevelJSON = "json"
	logLevelText = "text"

	envPrefix = "DEXPRICE_"

	flagConfig            = "config"
	flagLogLevel          = "log-level"
	flagLogFormat         = "log-format"
	flagInfuraAPIKey      = "infura-api-key"
	flagEthRPC            = "eth-rpc"
	flagBSCRPC            = "bsc-rpc"
	flagRPCTimeout        = "rpc-timeout"
	flagMaxRequests       = "max-requests"
	flagRateWindow        = "rate-window"
	flagMaxAttempts       = "max-attempts"
	flagDecimalsCacheSize = "decimals-cache-size"
	flagCoinGeckoAPI      = "coingecko-api"
	flagExchange          = "exchange"
	flagReference         = "reference"
	flagInterval          = "interval"
)

func rootFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)

	fs.String(flagConfig, "", "Path to an optional YAML configuration file")
	fs.String(flagLogLevel, zerolog.InfoLevel.String(), "Logging level (debug|info|warn|error|fatal|panic)")
	fs.String(flagLogFormat, logLevelText, "Logging format (text|json)")

	return fs
}

func rpcFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)

	fs.String(flagInfuraAPIKey, "", "Infura API key used to build the Ethereum RPC endpoint (env INFURA_API_KEY)")
	fs.String(flagEthRPC, "", "Ethereum RPC endpoint; overrides the Infura endpoint")
	fs.String(flagBSCRPC, ethereum.DefaultBSCRPC, "BNB Smart Chain RPC endpoint")
	fs.Duration(flagRPCTimeout, ethereum.DefaultRPCTimeout, "Timeout of a single contract call; zero disables it")
	fs.Int(flagDecimalsCacheSize, ethereum.DefaultDecimalsCacheSize, "Number of token decimals entries kept in memory")

	return fs
}

func fetcherFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)

	fs.Int(flagMaxRequests, ratelimit.DefaultMaxRequests, "Maximum quote requests per exchange within the rate window")
	fs.Duration(flagRateWindow, ratelimit.DefaultWindow, "Rate limit window; also the wait between attempts")
	fs.Uint(flagMaxAttempts, pricefeed.DefaultMaxAttempts, "Maximum attempts per price request, rate limited ones included")
	fs.String(flagCoinGeckoAPI, coingecko.DefaultBaseURL, "CoinGecko API base URL used for reference prices")

	return fs
}

func exchangeFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)

	fs.String(flagExchange, dex.Uniswap.String(), "Exchange to quote on (uniswap|sushiswap|pancakeswap)")

	return fs
}

func watchFlagSet() *pflag.FlagSet {
	fs := exchangeFlagSet()

	fs.Duration(flagInterval, 30*time.Second, "Interval between price polls")

	return fs
}

// parseURL logs a warning if the flag provided is an
// unencrypted non-local string, and returns the value.
func parseURL(logger zerolog.Logger, konfig *koanf.Koanf, flag string) (string, error) {
	endpoint := konfig.String(flag)
	if endpoint == "" {
		return "", nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(u.Scheme, "http") && !isLocalHost(u.Hostname()) {
		logger.Warn().Str(flag, u.Scheme+"://"+u.Host).Msg("flag is unsafe; unencrypted non-local url used")
	}
	return endpoint, nil
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
