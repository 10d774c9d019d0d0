package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/config"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
)

// CircuitBreaker implements the circuit breaker pattern for the runs of one network
type CircuitBreaker struct {
	network       string
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	now           func() time.Time
	logger        logger.Logger
	mu            sync.Mutex
}

// State is a snapshot of a circuit breaker
type State struct {
	Network       string        `json:"network"`
	Enabled       bool          `json:"enabled"`
	Open          bool          `json:"open"`
	FailureCount  int           `json:"failure_count"`
	FailThreshold int           `json:"fail_threshold"`
	FailureWindow time.Duration `json:"failure_window"`
	LastFailure   time.Time     `json:"last_failure,omitempty"`
	TripTime      time.Time     `json:"trip_time,omitempty"`
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(network string, cfg config.CircuitBreakerConfig, logger logger.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		network:       network,
		enabled:       cfg.Enabled,
		failThreshold: cfg.Threshold,
		failureWindow: cfg.WindowDuration,
		resetTimeout:  cfg.ResetTimeout,
		now:           time.Now,
		logger:        logger,
	}
}

// RecordFailure records a failure and trips the circuit if threshold is exceeded
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	// If the circuit is already tripped, check if it's time to try again
	if cb.tripped {
		if now.Sub(cb.tripTime) > cb.resetTimeout {
			cb.logger.InfoWithNetwork(cb.network, "Circuit breaker: attempting to reset after timeout")
			cb.tripped = false
			cb.failureCount = 0
		} else {
			return true
		}
	}

	if now.Sub(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		metrics.CircuitTrips.WithLabelValues(cb.network).Inc()
		cb.logger.ErrorWithNetwork(cb.network, "Circuit breaker tripped: %d failed runs in %s", cb.failureCount, cb.failureWindow)
		return true
	}

	return false
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// If tripped but reset timeout has passed, try again
	if cb.tripped && cb.now().Sub(cb.tripTime) > cb.resetTimeout {
		cb.logger.InfoWithNetwork(cb.network, "Circuit breaker: reset timeout elapsed, accepting runs again")
		cb.tripped = false
		cb.failureCount = 0
		return false
	}

	return cb.tripped
}

// Reset manually resets the circuit breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = false
	cb.failureCount = 0
	cb.logger.NoticeWithNetwork(cb.network, "Circuit breaker manually reset")
}

// State returns a snapshot of the circuit breaker
func (cb *CircuitBreaker) State() State {
	open := cb.IsOpen()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return State{
		Network:       cb.network,
		Enabled:       cb.enabled,
		Open:          open,
		FailureCount:  cb.failureCount,
		FailThreshold: cb.failThreshold,
		FailureWindow: cb.failureWindow,
		LastFailure:   cb.lastFailure,
		TripTime:      cb.tripTime,
	}
}

// Registry holds one circuit breaker per network
type Registry struct {
	cfg      config.CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
	logger   logger.Logger
	mu       sync.Mutex
}

// NewRegistry creates an empty registry; breakers are created on first use
func NewRegistry(cfg config.CircuitBreakerConfig, logger logger.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker of network, creating it if needed
func (r *Registry) Get(network string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[network]
	if !ok {
		cb = NewCircuitBreaker(network, r.cfg, r.logger)
		r.breakers[network] = cb
	}
	return cb
}

// Lookup returns the breaker of network if one exists
func (r *Registry) Lookup(network string) (*CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[network]
	return cb, ok
}

// States returns a snapshot of every breaker ordered by network
func (r *Registry) States() []State {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	states := make([]State, 0, len(breakers))
	for _, cb := range breakers {
		states = append(states, cb.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Network < states[j].Network })
	return states
}
