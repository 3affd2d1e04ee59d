package coingecko

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/umee-network/dexprice/dex"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	maxRespTime        = 15 * time.Second
	maxRespHeadersTime = 15 * time.Second
)

// asset platform ids used by the token_price endpoint
var platforms = map[dex.Network]string{
	dex.NetworkEthereum: "ethereum",
	dex.NetworkBSC:      "binance-smart-chain",
}

type Config struct {
	BaseURL string
}

// PriceFeed queries the coingecko simple price API. It is used as an
// off-chain reference next to router quotes.
type PriceFeed struct {
	client *http.Client
	config *Config

	logger zerolog.Logger
}

type priceResponse map[string]struct {
	USD json.Number `json:"usd"`
}

func NewPriceFeed(logger zerolog.Logger, cfg *Config) *PriceFeed {
	return &PriceFeed{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: maxRespHeadersTime,
			},
			Timeout: maxRespTime,
		},
		config: checkConfig(cfg),
		logger: logger.With().Str("module", "coingecko_pricefeed").Logger(),
	}
}

// QueryUSDPrice returns the USD price of the token contract on network.
func (cp *PriceFeed) QueryUSDPrice(ctx context.Context, network dex.Network, token common.Address) (decimal.Decimal, error) {
	platform, ok := platforms[network]
	if !ok {
		return decimal.Zero, errors.Errorf("no coingecko platform for network %s", network)
	}

	u, err := url.ParseRequestURI(urlJoin(cp.config.BaseURL, "simple", "token_price", platform))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to parse URL")
	}

	contract := strings.ToLower(token.Hex())

	q := make(url.Values)
	q.Set("contract_addresses", contract)
	q.Set("vs_currencies", "usd")
	u.RawQuery = q.Encode()

	price, err := cp.query(ctx, u.String(), contract)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to get price for token %s", token.Hex())
	}

	return price, nil
}

// QueryNativeUSDPrice returns the USD price of the network's native currency.
func (cp *PriceFeed) QueryNativeUSDPrice(ctx context.Context, network dex.Network) (decimal.Decimal, error) {
	id := "ethereum"
	if network == dex.NetworkBSC {
		id = "binancecoin"
	}

	u, err := url.ParseRequestURI(urlJoin(cp.config.BaseURL, "simple", "price"))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to parse URL")
	}

	q := make(url.Values)
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	u.RawQuery = q.Encode()

	price, err := cp.query(ctx, u.String(), id)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to get price for %s", id)
	}

	return price, nil
}

func (cp *PriceFeed) query(ctx context.Context, reqURL, key string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to create HTTP request")
	}

	resp, err := cp.client.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to fetch price from %s", reqURL)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errors.Errorf("unexpected status %d from %s", resp.StatusCode, reqURL)
	}

	var respBody priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to parse response body from %s", reqURL)
	}

	entry, ok := respBody[key]
	if !ok || entry.USD == "" {
		return decimal.Zero, errors.New("price not listed")
	}

	price, err := decimal.NewFromString(entry.USD.String())
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid price %q", entry.USD)
	}

	if price.IsZero() {
		return decimal.Zero, errors.New("zero price reported")
	}

	cp.logger.Debug().Str("key", key).Str("price", price.String()).Msg("reference price fetched")

	return price, nil
}

func urlJoin(baseURL string, segments ...string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	u.Path = path.Join(append([]string{u.Path}, segments...)...)
	return u.String()
}

func checkConfig(cfg *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}

	if len(cfg.BaseURL) == 0 {
		cfg.BaseURL = DefaultBaseURL
	}

	return cfg
}
