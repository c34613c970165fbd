package chains

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// ClientProvider lazily dials one ethclient per chain and caches it for the
// process lifetime. Initialization is publication safe; after the first
// successful dial the client is read concurrently without locking.
type ClientProvider struct {
	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
}

// NewClientProvider returns an empty provider. No endpoint is dialed until
// the first call for its chain.
func NewClientProvider() *ClientProvider {
	return &ClientProvider{clients: make(map[uint64]*ethclient.Client)}
}

// Client returns the cached client for the chain, dialing the configured
// endpoint on first use.
func (p *ClientProvider) Client(ctx context.Context, chainID uint64) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[chainID]; ok {
		return c, nil
	}
	chain, ok := ByID(chainID)
	if !ok {
		return nil, &RPCError{ChainID: chainID, Kind: Permanent, Op: "dial", Err: errors.Errorf("unsupported chain id %d", chainID)}
	}
	endpoint := chain.Endpoint()
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, wrapRPC(chainID, "dial", err)
	}
	client := ethclient.NewClient(rpcClient)
	p.clients[chainID] = client
	log.WithField("chain", chain.Name).Debug("Dialed RPC endpoint")
	return client, nil
}

// Close releases every dialed client.
func (p *ClientProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
