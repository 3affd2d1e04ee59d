package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umee-network/dexprice/dex"
	"github.com/umee-network/dexprice/pricefeed"
)

var (
	uniToken  = common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984")
	linkToken = common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA")
)

// parsedRootCmd returns the root command with flags parsed from args.
func parsedRootCmd(t *testing.T, args ...string) *cobra.Command {
	cmd := NewRootCmd()
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestParseServerConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dexprice.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max-requests: 7\nmax-attempts: 2\nbsc-rpc: https://bsc.example.org\n"), 0o600))

	t.Setenv("DEXPRICE_MAX_ATTEMPTS", "3")
	t.Setenv("INFURA_API_KEY", "from-env")

	cmd := parsedRootCmd(t, "--config", cfgPath, "--rate-window", "250ms")

	konfig, err := parseServerConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, 7, konfig.Int(flagMaxRequests))
	assert.Equal(t, 3, konfig.Int(flagMaxAttempts))
	assert.Equal(t, "https://bsc.example.org", konfig.String(flagBSCRPC))
	assert.Equal(t, "from-env", konfig.String(flagInfuraAPIKey))
	assert.Equal(t, 250*time.Millisecond, konfig.Duration(flagRateWindow))
	// untouched flags keep their defaults
	assert.Equal(t, "text", konfig.String(flagLogFormat))
}

func TestParseServerConfigMissingFile(t *testing.T) {
	cmd := parsedRootCmd(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := parseServerConfig(cmd)
	require.Error(t, err)
}

func TestNewPriceServiceRejectsNonPositiveCounts(t *testing.T) {
	testCases := []struct {
		name  string
		env   string
		value string
		flag  string
	}{
		{"negative attempts", "DEXPRICE_MAX_ATTEMPTS", "-1", flagMaxAttempts},
		{"zero attempts", "DEXPRICE_MAX_ATTEMPTS", "0", flagMaxAttempts},
		{"negative requests", "DEXPRICE_MAX_REQUESTS", "-5", flagMaxRequests},
		{"non numeric requests", "DEXPRICE_MAX_REQUESTS", "many", flagMaxRequests},
		{"negative cache size", "DEXPRICE_DECIMALS_CACHE_SIZE", "-1024", flagDecimalsCacheSize},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.env, tc.value)

			_, err := newPriceService(parsedRootCmd(t, "--log-level", "error"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.flag)
		})
	}
}

func TestNewPriceServiceRejectsNegativeAttemptsFromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "dexprice.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max-attempts: -1\n"), 0o600))

	_, err := newPriceService(parsedRootCmd(t, "--config", cfgPath, "--log-level", "error"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), flagMaxAttempts)
}

func TestNewPriceServiceDefaults(t *testing.T) {
	svc, err := newPriceService(parsedRootCmd(t, "--log-level", "error"))
	require.NoError(t, err)
	defer svc.Close()

	assert.NotNil(t, svc.fetcher)
}

func TestGetLogger(t *testing.T) {
	testCases := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"text", "debug", "text", false},
		{"json", "warn", "JSON", false},
		{"bad level", "loud", "text", true},
		{"bad format", "info", "xml", true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			konfig := koanf.New(".")
			require.NoError(t, konfig.Load(confmap.Provider(map[string]interface{}{
				flagLogLevel:  tc.level,
				flagLogFormat: tc.format,
			}, "."), nil))

			logger, err := getLogger(konfig)
			if tc.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			expected, _ := zerolog.ParseLevel(tc.level)
			assert.Equal(t, expected, logger.GetLevel())
		})
	}
}

func TestParseURL(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	konfig := koanf.New(".")
	require.NoError(t, konfig.Load(confmap.Provider(map[string]interface{}{
		flagEthRPC: "http://node.example.org:8545/secret",
		flagBSCRPC: "http://localhost:8545",
	}, "."), nil))

	endpoint, err := parseURL(logger, konfig, flagEthRPC)
	require.NoError(t, err)
	assert.Equal(t, "http://node.example.org:8545/secret", endpoint)
	assert.Contains(t, buf.String(), "unencrypted non-local url used")
	assert.NotContains(t, buf.String(), "secret")

	buf.Reset()
	_, err = parseURL(logger, konfig, flagBSCRPC)
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	endpoint, err = parseURL(logger, konfig, flagInfuraAPIKey)
	require.NoError(t, err)
	assert.Empty(t, endpoint)
}

func TestParseTokenArgs(t *testing.T) {
	token, exchange, err := parseTokenArgs([]string{uniToken.Hex()})
	require.NoError(t, err)
	assert.Equal(t, uniToken, token)
	assert.Equal(t, dex.Uniswap, exchange)

	_, exchange, err = parseTokenArgs([]string{uniToken.Hex(), "PancakeSwap"})
	require.NoError(t, err)
	assert.Equal(t, dex.Pancakeswap, exchange)

	_, _, err = parseTokenArgs([]string{"0x..."})
	require.Error(t, err)

	_, _, err = parseTokenArgs([]string{uniToken.Hex(), "curve"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dex.ErrUnknownExchange))
}

func TestDeviation(t *testing.T) {
	dev := deviation(decimal.RequireFromString("101"), decimal.RequireFromString("100"))
	assert.Equal(t, "1.00", dev.StringFixed(2))

	dev = deviation(decimal.RequireFromString("0.9985"), decimal.RequireFromString("1"))
	assert.Equal(t, "-0.15", dev.StringFixed(2))

	assert.True(t, deviation(decimal.NewFromInt(1), decimal.Zero).IsZero())
}

type mockPriceFeed struct {
	mu     sync.Mutex
	calls  []common.Address
	prices map[common.Address]string
}

func (m *mockPriceFeed) GetTokenPrice(_ context.Context, token common.Address, _ dex.Exchange) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, token)
	if price, ok := m.prices[token]; ok {
		return price, nil
	}
	return "", errors.Wrap(pricefeed.ErrPriceUnavailable, "no pool")
}

func TestFetchPrices(t *testing.T) {
	feed := &mockPriceFeed{prices: map[common.Address]string{uniToken: "6.42"}}
	tokens := []common.Address{uniToken, linkToken}

	prices, err := fetchPrices(context.Background(), feed, dex.Uniswap, tokens)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pricefeed.ErrPriceUnavailable))
	assert.Contains(t, err.Error(), linkToken.Hex())
	assert.Equal(t, map[common.Address]string{uniToken: "6.42"}, prices)
	assert.ElementsMatch(t, tokens, feed.calls)

	var buf bytes.Buffer
	at := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	writePrices(&buf, at, tokens, prices)

	assert.Equal(t,
		"2022-09-01T12:00:00Z "+uniToken.Hex()+" 6.42\n"+
			"2022-09-01T12:00:00Z "+linkToken.Hex()+" unavailable\n",
		buf.String(),
	)
}

func TestFetchPricesAllSucceed(t *testing.T) {
	feed := &mockPriceFeed{prices: map[common.Address]string{uniToken: "6.42", linkToken: "7.1"}}

	prices, err := fetchPrices(context.Background(), feed, dex.Sushiswap, []common.Address{uniToken, linkToken})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
}

func TestRootCmdRejectsArgs(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"unexpected"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.Error(t, cmd.Execute())
}
