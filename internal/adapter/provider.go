package adapter

import (
	"fmt"
	"sync"
	"time"
)

// ProviderHealth represents the health status of the RPC endpoint
type ProviderHealth struct {
	Chain            string        `json:"chain"`
	URL              string        `json:"url"`
	TotalRequests    int64         `json:"totalRequests"`
	SuccessfulReqs   int64         `json:"successfulRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	SuccessRate      float64       `json:"successRate"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastSuccess      time.Time     `json:"lastSuccess"`
	LastFailure      time.Time     `json:"lastFailure"`
	LastError        string        `json:"lastError,omitempty"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	IsHealthy        bool          `json:"isHealthy"`
}

// RPCProvider tracks the health of the single RPC endpoint the reader talks to.
// Only transport failures are recorded as failures: a reverted call still
// proves the endpoint is answering.
type RPCProvider struct {
	mu sync.RWMutex

	chain string
	url   string

	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	lastError        string
	consecutiveFails int

	maxConsecutiveFails int
	minSuccessRate      float64
}

// NewRPCProvider creates a provider for the given endpoint
func NewRPCProvider(chain, url string) (*RPCProvider, error) {
	if url == "" {
		return nil, fmt.Errorf("rpc URL cannot be empty")
	}

	return &RPCProvider{
		chain:               chain,
		url:                 url,
		maxConsecutiveFails: 5,
		minSuccessRate:      0.5,
	}, nil
}

// RecordSuccess records a request the endpoint answered
func (p *RPCProvider) RecordSuccess(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.successfulReqs++
	p.totalLatency += duration
	p.lastSuccess = time.Now()
	p.consecutiveFails = 0
}

// RecordFailure records a request the endpoint did not answer
func (p *RPCProvider) RecordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.failedReqs++
	p.lastFailure = time.Now()
	p.consecutiveFails++
	if err != nil {
		p.lastError = err.Error()
	}
}

// GetHealth returns the current health status of the endpoint
func (p *RPCProvider) GetHealth() *ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var successRate float64
	if p.totalRequests > 0 {
		successRate = float64(p.successfulReqs) / float64(p.totalRequests)
	}

	var avgLatency time.Duration
	if p.successfulReqs > 0 {
		avgLatency = p.totalLatency / time.Duration(p.successfulReqs)
	}

	return &ProviderHealth{
		Chain:            p.chain,
		URL:              p.url,
		TotalRequests:    p.totalRequests,
		SuccessfulReqs:   p.successfulReqs,
		FailedReqs:       p.failedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      p.lastSuccess,
		LastFailure:      p.lastFailure,
		LastError:        p.lastError,
		ConsecutiveFails: p.consecutiveFails,
		IsHealthy:        p.isHealthyLocked(),
	}
}

// IsHealthy returns true if the endpoint is considered healthy
func (p *RPCProvider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.isHealthyLocked()
}

// isHealthyLocked checks health status (must be called with lock held)
func (p *RPCProvider) isHealthyLocked() bool {
	if p.consecutiveFails >= p.maxConsecutiveFails {
		return false
	}

	// Success rate only counts once there is enough data
	if p.totalRequests >= 10 {
		successRate := float64(p.successfulReqs) / float64(p.totalRequests)
		if successRate < p.minSuccessRate {
			return false
		}
	}

	return true
}

// SetHealthThresholds configures health check thresholds
func (p *RPCProvider) SetHealthThresholds(maxConsecutiveFails int, minSuccessRate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if maxConsecutiveFails > 0 {
		p.maxConsecutiveFails = maxConsecutiveFails
	}

	if minSuccessRate > 0 && minSuccessRate <= 1.0 {
		p.minSuccessRate = minSuccessRate
	}
}
