package resolver

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gtrade-dashboard/internal/adapter"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/types"
)

// PairNames resolves numeric pair indices to display names. Well-known
// indices come from the static table without a chain read; other names are
// read once from the diamond and remembered for the process lifetime.
type PairNames struct {
	reader  adapter.ChainReader
	diamond common.Address
	static  map[uint64]string
	logger  *logging.Logger

	mu       sync.RWMutex
	resolved map[uint64]string
}

// NewPairNames creates a pair name resolver seeded with the tracked pairs
func NewPairNames(reader adapter.ChainReader, diamond common.Address, pairs []types.TrackedPair) *PairNames {
	static := make(map[uint64]string, len(pairs))
	for _, p := range pairs {
		static[p.Index] = p.Name
	}
	return &PairNames{
		reader:   reader,
		diamond:  diamond,
		static:   static,
		logger:   logging.GetGlobalLogger().WithComponent("resolver").WithField("source", "pair_name"),
		resolved: make(map[uint64]string),
	}
}

// FallbackName returns the placeholder used when a name cannot be resolved
func FallbackName(index uint64) string {
	return fmt.Sprintf("Pair-%d", index)
}

// Resolve returns the name of the pair at index. It never fails.
func (p *PairNames) Resolve(ctx context.Context, index uint64) string {
	if name, ok := p.static[index]; ok {
		return name
	}

	p.mu.RLock()
	name, ok := p.resolved[index]
	p.mu.RUnlock()
	if ok {
		return name
	}

	err := p.reader.CallView(ctx, adapter.ViewCall{
		Contract: p.diamond,
		ABI:      adapter.GTradeABI,
		Method:   adapter.MethodPairName,
		Args:     []interface{}{new(big.Int).SetUint64(index)},
	}, &name)
	if err != nil {
		p.logger.WithField("pairIndex", index).WithError(err).Debug("Pair name lookup failed")
		return FallbackName(index)
	}
	if name == "" {
		return FallbackName(index)
	}

	p.mu.Lock()
	p.resolved[index] = name
	p.mu.Unlock()
	return name
}
