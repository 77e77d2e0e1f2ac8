package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gtrade-dashboard/internal/adapter"
	"github.com/gtrade-dashboard/internal/config"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/resolver"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

// Runtime is a configured data source together with the chain resources
// behind it. Reader is nil for the mock source.
type Runtime struct {
	Source DataSource
	Reader *adapter.EthereumReader

	client *ethclient.Client
}

// NewRuntime builds the data source selected by cfg.Dashboard.DataSource
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	kind, err := ParseSourceKind(cfg.Dashboard.DataSource)
	if err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx)

	if kind == types.SourceMock {
		logger.Info("Using mock data source")
		source := NewMockSource(cfg.Dashboard.Pairs, decimal.NewFromFloat(cfg.Dashboard.InitialFunding), cfg.Dashboard.HistoryPageSize)
		return &Runtime{Source: source}, nil
	}

	reader, client, err := adapter.DialEthereumReader(ctx, adapter.EthereumReaderConfig{
		Chain:          cfg.Chain.Name,
		RequestTimeout: cfg.Chain.RequestTimeout,
		CallsPerSecond: cfg.Chain.CallsPerSecond,
		CallBurst:      cfg.Chain.CallBurst,

		MaxConsecutiveFails: cfg.Chain.MaxConsecutiveFails,
		MinSuccessRate:      cfg.Chain.MinSuccessRate,
	}, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Chain.Name, err)
	}

	resolvers, err := resolver.New(reader, resolver.Config{
		Token:           common.HexToAddress(cfg.Chain.TokenAddress),
		TokenDecimals:   cfg.Chain.TokenDecimals,
		Diamond:         common.HexToAddress(cfg.Chain.DiamondAddress),
		CollateralIndex: cfg.Chain.CollateralIndex,
		HistoryPageSize: cfg.Dashboard.HistoryPageSize,
		FallbackBalance: decimal.NewFromFloat(cfg.Dashboard.FallbackBalance),
		Pairs:           cfg.Dashboard.Pairs,
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"chain":   cfg.Chain.Name,
		"rpc":     cfg.Chain.RPCURL,
		"diamond": cfg.Chain.DiamondAddress,
	}).Info("Using live chain data source")
	return &Runtime{Source: resolvers, Reader: reader, client: client}, nil
}

// NewAggregator creates the aggregator configured by cfg over the runtime's source
func (r *Runtime) NewAggregator(cfg *config.Config) (*Aggregator, error) {
	return NewAggregator(r.Source, AggregatorConfig{
		Wallets:        cfg.Dashboard.Wallets,
		TradeCap:       cfg.Dashboard.TradeCap,
		PnLRetention:   cfg.Dashboard.PnLRetention,
		InitialFunding: decimal.NewFromFloat(cfg.Dashboard.InitialFunding),
	})
}

// Close releases the RPC connection, if any
func (r *Runtime) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
