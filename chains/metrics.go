package chains

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendwatch_rpc_calls_total",
		Help: "Contract read calls issued, by chain id.",
	}, []string{"chain"})
	rpcFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendwatch_rpc_failures_total",
		Help: "Contract read calls that failed after retries, by chain id and error kind.",
	}, []string{"chain", "kind"})
	rpcRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendwatch_rpc_retries_total",
		Help: "Retry attempts made against chain RPC endpoints.",
	})
	chainHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lendwatch_chain_height",
		Help: "Latest block number observed by the health prober, by chain.",
	}, []string{"chain"})
)
