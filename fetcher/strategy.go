package fetcher

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/lendwatch/lendwatch/chains"
)

type strategy int

const (
	// strategyRegistry enumerates every market through the protocol's
	// on-chain registry contract.
	strategyRegistry strategy = iota
	// strategyStatic iterates a hard-coded pool list and reads each pool
	// directly. Used where registry enumeration is unreliable (gas-limit
	// mismatches in the registry's aggregate call, partial deployments).
	strategyStatic
)

// StaticPool is one entry of a hard-coded pool list. Name, Symbol and
// Decimals are fallbacks for pools whose metadata views are unreliable.
type StaticPool struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	Collaterals []string
}

type chainPlan struct {
	strategy strategy
	registry common.Address
	pools    []StaticPool
}

// chainPlans is the per-chain strategy table. Every supported chain must
// have an entry.
var chainPlans = map[uint64]chainPlan{
	chains.EthereumChainID: {
		strategy: strategyRegistry,
		registry: common.HexToAddress("0x52Aa899454998Be5b000Ad077a46Bbe360F4e497"),
	},
	chains.ArbitrumChainID: {
		strategy: strategyRegistry,
		registry: common.HexToAddress("0x20fAe091714119359d1Bb6BC742C52e19e9C1afD"),
	},
	chains.OptimismChainID: {
		strategy: strategyRegistry,
		registry: common.HexToAddress("0x73591bfBd996cac3429fe312d1209aCF27201fFa"),
	},
	chains.SonicChainID: {
		strategy: strategyStatic,
		pools: []StaticPool{
			{
				Address:     common.HexToAddress("0x6Ab5d5E96aC59f66baB57450275cc16961219796"),
				Name:        "Sonic USDC.e Pool",
				Symbol:      "lwUSDC",
				Decimals:    6,
				Collaterals: []string{"wS", "WETH"},
			},
			{
				Address:     common.HexToAddress("0x3C1Cb427D20F15563aDa8C249E71db76d7183B6c"),
				Name:        "Sonic wS Pool",
				Symbol:      "lwWS",
				Decimals:    18,
				Collaterals: []string{"USDC.e"},
			},
		},
	},
	chains.PlasmaChainID: {
		strategy: strategyStatic,
		pools: []StaticPool{
			{
				Address:  common.HexToAddress("0x9fD1f3cC1b4D5EaE09118db506bac6FA0c1e4683"),
				Name:     "Plasma USDT Pool",
				Symbol:   "lwUSDT",
				Decimals: 6,
			},
		},
	},
	chains.MonadChainID: {
		strategy: strategyStatic,
		pools: []StaticPool{
			{
				Address:  common.HexToAddress("0xE4c5B1679b62E63c0a2D22B1fc48EfBeD75856cF"),
				Name:     "Monad USDC Pool",
				Symbol:   "lwUSDC",
				Decimals: 6,
			},
			{
				Address:  common.HexToAddress("0xB2aa0C2C4fD6BFCBF699d4c787CD6Cc0dC461a9d"),
				Name:     "Monad WMON Pool",
				Symbol:   "lwWMON",
				Decimals: 18,
			},
		},
	},
}
