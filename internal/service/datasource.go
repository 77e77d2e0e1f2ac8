package service

import (
	"context"
	"fmt"

	"github.com/gtrade-dashboard/internal/resolver"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/shopspring/decimal"
)

// DataSource is the pluggable origin of per-wallet and per-pair data.
// Implementations never return errors: a failed read yields the documented
// fallback and ok=false.
type DataSource interface {
	Kind() types.SourceKind
	Balance(ctx context.Context, wallet types.StrategyWallet) (decimal.Decimal, bool)
	OpenPositions(ctx context.Context, wallet types.StrategyWallet) ([]resolver.TradeRecord, bool)
	TradeHistory(ctx context.Context, wallet types.StrategyWallet) ([]resolver.TradeRecord, bool)
	FundingRates(ctx context.Context) (rates []resolver.RateRecord, failed []string)
}

// The live source is the resolver set itself
var _ DataSource = (*resolver.Resolvers)(nil)

// ParseSourceKind validates a configured data source name
func ParseSourceKind(s string) (types.SourceKind, error) {
	switch types.SourceKind(s) {
	case types.SourceLive:
		return types.SourceLive, nil
	case types.SourceMock:
		return types.SourceMock, nil
	default:
		return "", fmt.Errorf("unknown data source %q", s)
	}
}
