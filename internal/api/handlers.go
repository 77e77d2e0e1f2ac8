package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gtrade-dashboard/internal/adapter"
	"github.com/gtrade-dashboard/internal/circuitbreaker"
	apierrors "github.com/gtrade-dashboard/internal/errors"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/gtrade-dashboard/internal/worker"
)

// StrategiesResponse is the body of GET /api/strategies
type StrategiesResponse struct {
	Strategies  []types.Strategy `json:"strategies"`
	Loading     bool             `json:"loading"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// StrategyResponse is the body of GET /api/strategies/{id}
type StrategyResponse struct {
	Strategy types.Strategy `json:"strategy"`
	Trades   []types.Trade  `json:"trades"`
	Loading  bool           `json:"loading"`
}

// TradesResponse is the body of GET /api/trades
type TradesResponse struct {
	Trades  []types.Trade `json:"trades"`
	Count   int           `json:"count"`
	Loading bool          `json:"loading"`
}

// FundingRatesResponse is the body of GET /api/funding-rates
type FundingRatesResponse struct {
	FundingRates []types.FundingRate       `json:"fundingRates"`
	BestLong     *types.FundingOpportunity `json:"bestLong"`
	BestShort    *types.FundingOpportunity `json:"bestShort"`
	Loading      bool                      `json:"loading"`
}

// PnLHistoryResponse is the body of GET /api/pnl-history
type PnLHistoryResponse struct {
	PnLHistory []types.PnLDataPoint `json:"pnlHistory"`
	Loading    bool                 `json:"loading"`
}

// RefreshResponse is the body of POST /api/refresh
type RefreshResponse struct {
	Started bool `json:"started"`
	Loading bool `json:"loading"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string                  `json:"status"`
	Service       string                  `json:"service"`
	Source        types.SourceKind        `json:"source,omitempty"`
	UptimeSeconds int64                   `json:"uptimeSeconds"`
	Stale         bool                    `json:"stale"`
	Provider      *adapter.ProviderHealth `json:"provider,omitempty"`
	Breaker       *circuitbreaker.Stats   `json:"breaker,omitempty"`
	Refresh       *worker.Status          `json:"refresh"`
}

// handleDashboard returns the full current snapshot
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, s.controller.CurrentSnapshot())
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	snapshot := s.controller.CurrentSnapshot()
	respondJSON(w, r, http.StatusOK, StrategiesResponse{
		Strategies:  snapshot.Strategies,
		Loading:     snapshot.Loading,
		GeneratedAt: snapshot.GeneratedAt,
	})
}

// handleStrategy returns one strategy and its trades from the merged list
func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snapshot := s.controller.CurrentSnapshot()

	strategy, ok := snapshot.StrategyByID(id)
	if !ok {
		respondCategorized(w, r, apierrors.NewNotFoundError("strategy", id))
		return
	}

	trades := make([]types.Trade, 0)
	for _, t := range snapshot.Trades {
		if t.Strategy == id {
			trades = append(trades, t)
		}
	}
	respondJSON(w, r, http.StatusOK, StrategyResponse{
		Strategy: *strategy,
		Trades:   trades,
		Loading:  snapshot.Loading,
	})
}

// handleTrades returns the newest trades, optionally limited by ?limit=
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := s.config.TradeCap
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > s.config.TradeCap {
			respondCategorized(w, r, apierrors.NewInvalidParameterError("limit",
				"must be an integer between 1 and "+strconv.Itoa(s.config.TradeCap)))
			return
		}
		limit = n
	}

	snapshot := s.controller.CurrentSnapshot()
	trades := snapshot.Trades
	if len(trades) > limit {
		trades = trades[:limit]
	}
	respondJSON(w, r, http.StatusOK, TradesResponse{
		Trades:  trades,
		Count:   len(trades),
		Loading: snapshot.Loading,
	})
}

func (s *Server) handleFundingRates(w http.ResponseWriter, r *http.Request) {
	snapshot := s.controller.CurrentSnapshot()
	respondJSON(w, r, http.StatusOK, FundingRatesResponse{
		FundingRates: snapshot.FundingRates,
		BestLong:     snapshot.BestLong,
		BestShort:    snapshot.BestShort,
		Loading:      snapshot.Loading,
	})
}

func (s *Server) handlePnLHistory(w http.ResponseWriter, r *http.Request) {
	snapshot := s.controller.CurrentSnapshot()
	respondJSON(w, r, http.StatusOK, PnLHistoryResponse{
		PnLHistory: snapshot.PnLHistory,
		Loading:    snapshot.Loading,
	})
}

// handleRefresh asks for a refresh. 202 when one started, 200 when the
// trigger was coalesced into an in-flight or recent refresh.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.controller.TriggerRefresh() {
		respondJSON(w, r, http.StatusAccepted, RefreshResponse{Started: true, Loading: true})
		return
	}
	respondJSON(w, r, http.StatusOK, RefreshResponse{Started: false, Loading: s.controller.IsLoading()})
}

// handleHealth reports process, chain endpoint and refresh loop health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.controller.CurrentSnapshot()
	resp := HealthResponse{
		Status:        "healthy",
		Service:       "gtrade-dashboard",
		Source:        snapshot.Source,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Stale:         snapshot.Stale,
		Refresh:       s.controller.GetStatus(),
	}
	if s.chain != nil {
		resp.Provider = s.chain.Health()
		resp.Breaker = s.chain.BreakerStats()
	}

	switch {
	case resp.Breaker != nil && resp.Breaker.State == circuitbreaker.StateOpen:
		resp.Status = "unavailable"
	case resp.Provider != nil && !resp.Provider.IsHealthy, resp.Stale:
		resp.Status = "degraded"
	}

	// Degraded data is still served, so only an open breaker fails the probe
	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, r, status, resp)
}
