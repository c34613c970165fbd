package chains

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/async"
)

const defaultProbeInterval = 2 * time.Minute

// BlockReader is the slice of the reader the prober needs.
type BlockReader interface {
	BlockNumber(ctx context.Context, chainID uint64) (uint64, error)
}

// Prober periodically reads the head block number of every supported chain
// and aggregates endpoint reachability into the node health status. A chain
// that fails its probe is reported down until a probe succeeds again.
type Prober struct {
	ctx      context.Context
	cancel   context.CancelFunc
	reader   BlockReader
	chains   []Chain
	interval time.Duration

	mu   sync.Mutex
	down map[uint64]error
}

// NewProber builds the prober. Chains and interval default to the supported
// chain set and two minutes.
func NewProber(ctx context.Context, reader BlockReader, probeChains []Chain, interval time.Duration) *Prober {
	if len(probeChains) == 0 {
		probeChains = Supported
	}
	if interval == 0 {
		interval = defaultProbeInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Prober{
		ctx:      ctx,
		cancel:   cancel,
		reader:   reader,
		chains:   probeChains,
		interval: interval,
		down:     make(map[uint64]error),
	}
}

// Start runs an immediate probe round and then schedules periodic ones.
func (p *Prober) Start() {
	log.WithField("interval", p.interval).Info("Starting chain health prober")
	go p.probe()
	async.RunEvery(p.ctx, p.interval, p.probe)
}

// Stop cancels in-flight probes.
func (p *Prober) Stop() error {
	p.cancel()
	return nil
}

// Status reports nil while every probed endpoint answers, and an error
// naming the unreachable chains otherwise.
func (p *Prober) Status() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.down) == 0 {
		return nil
	}
	names := make([]string, 0, len(p.down))
	for id := range p.down {
		names = append(names, DisplayName(id))
	}
	sort.Strings(names)
	return errors.Errorf("unreachable chains: %s", strings.Join(names, ", "))
}

// probe is one reachability round over every configured chain.
func (p *Prober) probe() {
	for _, chain := range p.chains {
		height, err := p.reader.BlockNumber(p.ctx, chain.ID)
		if err != nil {
			p.mu.Lock()
			p.down[chain.ID] = err
			p.mu.Unlock()
			log.WithError(err).WithField("chain", chain.Name).Warn("Chain health probe failed")
			continue
		}
		p.mu.Lock()
		delete(p.down, chain.ID)
		p.mu.Unlock()
		chainHeight.WithLabelValues(chain.Name).Set(float64(height))
	}
}
