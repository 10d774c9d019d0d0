// Package dispatcher runs bridge transfers on a fixed pool of workers for the
// serve mode. Runs of one source account never overlap.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/bridge"
	"github.com/speedrun-hq/stellar-bridge/pkg/circuitbreaker"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

var (
	// ErrQueueFull is returned when no queue slot is free for a new transfer
	ErrQueueFull = errors.New("transfer queue is full")
	// ErrCircuitOpen is returned while the circuit breaker of the request network is open
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrStopped is returned once the dispatcher has shut down
	ErrStopped = errors.New("dispatcher stopped")
)

// Runner executes a single bridge transfer
type Runner interface {
	Run(ctx context.Context, req bridge.Request, seed []byte) (*bridge.Result, error)
}

// KeyFunc returns the signing seed of a source account. It is called once per
// job, right before the run.
type KeyFunc func(source string) ([]byte, error)

// Outcome is the result of a dispatched transfer
type Outcome struct {
	Result *bridge.Result
	Err    error
}

type job struct {
	ctx  context.Context
	req  bridge.Request
	done chan Outcome
}

// Dispatcher is a bounded queue in front of a pool of workers
type Dispatcher struct {
	runner   Runner
	keys     KeyFunc
	breakers *circuitbreaker.Registry
	workers  int
	jobs     chan *job
	logger   logger.Logger

	locksMu sync.Mutex
	locks   map[string]*accountLock

	stopped chan struct{}
	wg      sync.WaitGroup
}

// New creates a dispatcher with workers workers and room for queueSize waiting transfers
func New(runner Runner, keys KeyFunc, breakers *circuitbreaker.Registry, workers, queueSize int, logger logger.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	return &Dispatcher{
		runner:   runner,
		keys:     keys,
		breakers: breakers,
		workers:  workers,
		jobs:     make(chan *job, queueSize),
		logger:   logger,
		locks:    make(map[string]*accountLock),
		stopped:  make(chan struct{}),
	}
}

// Start launches the workers; they stop when ctx is done
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	go func() {
		<-ctx.Done()
		d.wg.Wait()
		close(d.stopped)
	}()
}

// Wait blocks until every worker has exited
func (d *Dispatcher) Wait() {
	<-d.stopped
}

// Submit enqueues req and waits for its outcome. A full queue and an open
// circuit reject the request immediately. If ctx ends first the run keeps
// going in the background and ctx.Err() is returned.
func (d *Dispatcher) Submit(ctx context.Context, req bridge.Request) (*bridge.Result, error) {
	network := req.Network.Name
	if d.breakers != nil && d.breakers.Get(network).IsOpen() {
		metrics.CircuitRejections.WithLabelValues(network).Inc()
		return nil, fmt.Errorf("%w for %s", ErrCircuitOpen, network)
	}

	j := &job{ctx: ctx, req: req, done: make(chan Outcome, 1)}
	select {
	case <-d.stopped:
		return nil, ErrStopped
	default:
	}
	select {
	case d.jobs <- j:
		metrics.QueueDepth.Inc()
	default:
		return nil, ErrQueueFull
	}

	select {
	case out := <-j.done:
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.stopped:
		return nil, ErrStopped
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.logger.Debug("Starting worker %d", id)
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("Worker %d shutting down", id)
			return
		case j := <-d.jobs:
			metrics.QueueDepth.Dec()
			j.done <- d.process(id, j)
		}
	}
}

func (d *Dispatcher) process(id int, j *job) Outcome {
	req := j.req
	network := req.Network.Name

	if j.ctx.Err() != nil {
		d.logger.InfoWithNetwork(network, "Worker %d: caller gave up on transfer from %s before it started", id, req.SourceAddress)
		return Outcome{Err: j.ctx.Err()}
	}
	// re-check, the breaker may have tripped while the job was queued
	if d.breakers != nil && d.breakers.Get(network).IsOpen() {
		metrics.CircuitRejections.WithLabelValues(network).Inc()
		return Outcome{Err: fmt.Errorf("%w for %s", ErrCircuitOpen, network)}
	}

	unlock := d.lockAccount(req.SourceAddress)
	defer unlock()

	seed, err := d.keys(req.SourceAddress)
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: no signing key for %s: %v", models.ErrConfiguration, req.SourceAddress, err)}
	}

	d.logger.InfoWithNetwork(network, "Worker %d processing transfer of %s %s from %s", id, req.Amount, req.SourceAsset, req.SourceAddress)
	start := time.Now()
	result, err := d.runner.Run(j.ctx, req, seed)
	wipe(seed)

	if err != nil {
		errorType, countsAsFailure := classifyError(err)
		metrics.DispatchFailures.WithLabelValues(network, errorType).Inc()
		d.logger.ErrorWithNetwork(network, "Worker %d: transfer from %s failed after %s (%s): %v",
			id, req.SourceAddress, time.Since(start), errorType, err)

		if countsAsFailure && d.breakers != nil {
			if d.breakers.Get(network).RecordFailure() {
				d.logger.ErrorWithNetwork(network, "Circuit breaker open, new transfers are rejected")
			}
		}
		return Outcome{Err: err}
	}

	d.logger.InfoWithNetwork(network, "Worker %d: transfer from %s finished as %s in %s", id, req.SourceAddress, result.Status, time.Since(start))
	return Outcome{Result: result}
}

// accountLock is a per-account mutex shared by the jobs holding or waiting for it
type accountLock struct {
	mu   sync.Mutex
	refs int
}

// lockAccount serializes runs of one source account and returns the unlock
// function. The entry is dropped once no job holds or waits for it.
func (d *Dispatcher) lockAccount(address string) func() {
	d.locksMu.Lock()
	l, ok := d.locks[address]
	if !ok {
		l = &accountLock{}
		d.locks[address] = l
	}
	l.refs++
	d.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		d.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, address)
		}
		d.locksMu.Unlock()
	}
}

// classifyError names the error for metrics and reports whether it indicates a
// network problem the circuit breaker should count. Rejected requests do not.
func classifyError(err error) (string, bool) {
	switch {
	case errors.Is(err, models.ErrPolicy):
		return "policy", false
	case errors.Is(err, models.ErrConfiguration):
		return "configuration", false
	case errors.Is(err, models.ErrAccountNotFound):
		return "account_not_found", false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled", false
	case errors.Is(err, models.ErrSubmissionRejected):
		return "submission_rejected", true
	case errors.Is(err, models.ErrTransactionFailed):
		return "transaction_failed", true
	case errors.Is(err, models.ErrSimulationFailed):
		return "simulation_failed", true
	case errors.Is(err, models.ErrProtocol):
		return "protocol", true
	case errors.Is(err, models.ErrEncoding):
		return "encoding", true
	case errors.Is(err, models.ErrNetworkTimeout):
		return "network_timeout", true
	}
	return "unknown_error", true
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
