package ethereum

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/umee-network/dexprice/dex"
)

const (
	DefaultBSCRPC     = "https://bsc-dataseed.binance.org/"
	infuraMainnetBase = "https://mainnet.infura.io/v3/"
)

// ErrNoEndpoint is returned when no RPC endpoint is configured for a network.
var ErrNoEndpoint = errors.New("no RPC endpoint configured")

//go:generate mockgen -destination=mocks/caller.go -package=mocks github.com/umee-network/dexprice/ethereum Caller

// Caller is a read-only contract backend that owns a connection.
type Caller interface {
	bind.ContractCaller
	Close()
}

// DialFunc opens a connection to an RPC endpoint.
type DialFunc func(ctx context.Context, endpoint string) (Caller, error)

// NetworkConfig holds the RPC endpoints per network. EthereumRPC takes
// precedence over the Infura credential.
type NetworkConfig struct {
	InfuraAPIKey string
	EthereumRPC  string
	BSCRPC       string
}

// Endpoint resolves the RPC URL used for network.
func (cfg NetworkConfig) Endpoint(network dex.Network) (string, error) {
	switch network {
	case dex.NetworkEthereum:
		if cfg.EthereumRPC != "" {
			return cfg.EthereumRPC, nil
		}
		if cfg.InfuraAPIKey == "" {
			return "", errors.Wrap(ErrNoEndpoint, "ethereum: set INFURA_API_KEY or --eth-rpc")
		}
		return infuraMainnetBase + cfg.InfuraAPIKey, nil

	case dex.NetworkBSC:
		if cfg.BSCRPC != "" {
			return cfg.BSCRPC, nil
		}
		return DefaultBSCRPC, nil

	default:
		return "", errors.Wrapf(ErrNoEndpoint, "unsupported network %q", network)
	}
}

// DialEthClient connects to an EVM JSON-RPC endpoint.
func DialEthClient(ctx context.Context, endpoint string) (Caller, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to RPC: %s", redactEndpoint(endpoint))
	}

	return ethclient.NewClient(rpcClient), nil
}

// Pool keeps one connection per network, dialed on first use. Dials of
// different networks do not wait on each other.
type Pool struct {
	mu    sync.Mutex
	conns map[dex.Network]*poolConn

	cfg    NetworkConfig
	dial   DialFunc
	logger zerolog.Logger
}

type poolConn struct {
	mu     sync.Mutex
	caller Caller
}

// NewPool returns an empty pool. A nil dial uses DialEthClient.
func NewPool(logger zerolog.Logger, cfg NetworkConfig, dial DialFunc) *Pool {
	if dial == nil {
		dial = DialEthClient
	}

	return &Pool{
		conns:  make(map[dex.Network]*poolConn),
		cfg:    cfg,
		dial:   dial,
		logger: logger.With().Str("module", "rpc_pool").Logger(),
	}
}

func (p *Pool) entry(network dex.Network) *poolConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.conns[network]
	if !ok {
		pc = &poolConn{}
		p.conns[network] = pc
	}

	return pc
}

// Conn returns the connection for network, dialing it if needed. Concurrent
// callers for the same network share a single dial.
func (p *Pool) Conn(ctx context.Context, network dex.Network) (Caller, error) {
	pc := p.entry(network)

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.caller != nil {
		return pc.caller, nil
	}

	endpoint, err := p.cfg.Endpoint(network)
	if err != nil {
		return nil, err
	}

	conn, err := p.dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	pc.caller = conn
	p.logger.Info().
		Str("network", network.String()).
		Str("endpoint", redactEndpoint(endpoint)).
		Msg("provider initialized")

	return conn, nil
}

// Close closes every open connection. The pool may be reused afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[dex.Network]*poolConn)
	p.mu.Unlock()

	for _, pc := range conns {
		pc.mu.Lock()
		if pc.caller != nil {
			pc.caller.Close()
			pc.caller = nil
		}
		pc.mu.Unlock()
	}
}

// redactEndpoint drops the path and query, which may carry API keys.
func redactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "<invalid>"
	}

	return strings.ToLower(u.Scheme) + "://" + u.Host
}
