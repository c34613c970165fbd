// Package chains implements the per-chain access layer for the lendwatch
// monitor. It owns the supported chain table, lazily dialed and cached RPC
// clients, and uniform reads of the protocol's ERC-4626-shaped pool
// contracts and plain ERC-20 token contracts.
package chains

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "chains")

// Chain ids of the supported networks.
const (
	EthereumChainID uint64 = 1
	OptimismChainID uint64 = 10
	MonadChainID    uint64 = 143
	SonicChainID    uint64 = 146
	PlasmaChainID   uint64 = 9745
	ArbitrumChainID uint64 = 42161
)

// Chain describes one supported EVM network.
type Chain struct {
	ID          uint64
	Name        string
	DisplayName string
	// DefaultRPC is the public endpoint used when no explicit endpoint is
	// configured through the environment.
	DefaultRPC string
}

// Supported lists every chain the monitor scans, in scan order.
// Adding a chain here (plus a fetcher strategy entry) is all that is needed
// to bring it online.
var Supported = []Chain{
	{ID: EthereumChainID, Name: "ethereum", DisplayName: "Ethereum", DefaultRPC: "https://ethereum-rpc.publicnode.com"},
	{ID: ArbitrumChainID, Name: "arbitrum", DisplayName: "Arbitrum", DefaultRPC: "https://arb1.arbitrum.io/rpc"},
	{ID: OptimismChainID, Name: "optimism", DisplayName: "Optimism", DefaultRPC: "https://mainnet.optimism.io"},
	{ID: SonicChainID, Name: "sonic", DisplayName: "Sonic", DefaultRPC: "https://rpc.soniclabs.com"},
	{ID: PlasmaChainID, Name: "plasma", DisplayName: "Plasma", DefaultRPC: "https://rpc.plasma.to"},
	{ID: MonadChainID, Name: "monad", DisplayName: "Monad", DefaultRPC: "https://rpc.monad.xyz"},
}

var supportedByID = func() map[uint64]Chain {
	m := make(map[uint64]Chain, len(Supported))
	for _, c := range Supported {
		m[c.ID] = c
	}
	return m
}()

// ByID returns the chain definition for the given id.
func ByID(id uint64) (Chain, bool) {
	c, ok := supportedByID[id]
	return c, ok
}

// DisplayName returns a human readable name for a chain id, falling back to
// the numeric id for unknown chains.
func DisplayName(id uint64) string {
	if c, ok := supportedByID[id]; ok {
		return c.DisplayName
	}
	return fmt.Sprintf("chain %d", id)
}

// EndpointEnvVar is the environment variable consulted for an explicit RPC
// endpoint of the given chain, e.g. RPC_URL_ETHEREUM.
func (c Chain) EndpointEnvVar() string {
	return "RPC_URL_" + strings.ToUpper(c.Name)
}

// Endpoint resolves the RPC endpoint for the chain: the environment
// override when set, the public default otherwise.
func (c Chain) Endpoint() string {
	if v := os.Getenv(c.EndpointEnvVar()); v != "" {
		return v
	}
	return c.DefaultRPC
}
