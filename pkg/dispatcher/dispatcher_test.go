package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/stellar-bridge/pkg/bridge"
	"github.com/speedrun-hq/stellar-bridge/pkg/circuitbreaker"
	"github.com/speedrun-hq/stellar-bridge/pkg/config"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
)

type fakeRunner struct {
	mu       sync.Mutex
	err      error
	release  chan struct{}
	running  map[string]int
	overlaps int32
	runs     int32
	seeds    [][]byte
}

func (f *fakeRunner) Run(_ context.Context, req bridge.Request, seed []byte) (*bridge.Result, error) {
	atomic.AddInt32(&f.runs, 1)

	f.mu.Lock()
	if f.running == nil {
		f.running = make(map[string]int)
	}
	f.running[req.SourceAddress]++
	if f.running[req.SourceAddress] > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	f.seeds = append(f.seeds, append([]byte(nil), seed...))
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}

	f.mu.Lock()
	f.running[req.SourceAddress]--
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return &bridge.Result{Status: bridge.StatusConfirmed, Hash: "hash-" + req.Amount, Network: req.Network.Name}, nil
}

func seedFor(source string) ([]byte, error) {
	return []byte(source), nil
}

func testRequest(source, amount string) bridge.Request {
	return bridge.Request{Amount: amount, SourceAddress: source, Network: networks.Testnet}
}

func startDispatcher(t *testing.T, runner Runner, breakers *circuitbreaker.Registry, workers, queue int) *Dispatcher {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	d := New(runner, seedFor, breakers, workers, queue, &logger.EmptyLogger{})
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Wait()
	})
	return d
}

func TestSubmitReturnsResult(t *testing.T) {
	runner := &fakeRunner{}
	d := startDispatcher(t, runner, nil, 2, 4)

	result, err := d.Submit(context.Background(), testRequest("GA", "10"))
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusConfirmed, result.Status)
	assert.Equal(t, "hash-10", result.Hash)
	assert.Equal(t, [][]byte{[]byte("GA")}, runner.seeds)
}

func TestRunsOfOneAccountDoNotOverlap(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	d := startDispatcher(t, runner, nil, 4, 8)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Submit(context.Background(), testRequest("GSAME", fmt.Sprint(i)))
			assert.NoError(t, err)
		}(i)
	}

	for i := 0; i < 4; i++ {
		runner.release <- struct{}{}
	}
	wg.Wait()
	assert.Equal(t, int32(4), atomic.LoadInt32(&runner.runs))
	assert.Zero(t, atomic.LoadInt32(&runner.overlaps))
}

func TestAccountLocksAreReleased(t *testing.T) {
	runner := &fakeRunner{}
	d := startDispatcher(t, runner, nil, 2, 4)

	for _, source := range []string{"GA", "GB", "GC"} {
		_, err := d.Submit(context.Background(), testRequest(source, "1"))
		require.NoError(t, err)
	}

	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	assert.Empty(t, d.locks)
}

func TestQueueFull(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	d := startDispatcher(t, runner, nil, 1, 1)
	defer close(runner.release)

	go func() { _, _ = d.Submit(context.Background(), testRequest("GA", "1")) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runner.runs) == 1 }, time.Second, time.Millisecond)

	go func() { _, _ = d.Submit(context.Background(), testRequest("GB", "2")) }()
	require.Eventually(t, func() bool { return len(d.jobs) == 1 }, time.Second, time.Millisecond)

	_, err := d.Submit(context.Background(), testRequest("GC", "3"))
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestCircuitBreakerRejectsAfterFailures(t *testing.T) {
	breakers := circuitbreaker.NewRegistry(config.CircuitBreakerConfig{
		Enabled:        true,
		Threshold:      2,
		WindowDuration: time.Minute,
		ResetTimeout:   time.Hour,
	}, &logger.EmptyLogger{})
	runner := &fakeRunner{err: &bridge.Error{Phase: bridge.PhaseSubmitMain, Err: models.ErrSubmissionRejected}}
	d := startDispatcher(t, runner, breakers, 1, 1)

	for i := 0; i < 2; i++ {
		_, err := d.Submit(context.Background(), testRequest("GA", "1"))
		require.ErrorIs(t, err, models.ErrSubmissionRejected)
	}

	_, err := d.Submit(context.Background(), testRequest("GA", "1"))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runner.runs))

	breakers.Get(networks.TestnetName).Reset()
	_, err = d.Submit(context.Background(), testRequest("GA", "1"))
	require.ErrorIs(t, err, models.ErrSubmissionRejected)
}

func TestRejectedRequestsDoNotTripBreaker(t *testing.T) {
	breakers := circuitbreaker.NewRegistry(config.CircuitBreakerConfig{
		Enabled:        true,
		Threshold:      1,
		WindowDuration: time.Minute,
		ResetTimeout:   time.Hour,
	}, &logger.EmptyLogger{})
	runner := &fakeRunner{err: &bridge.Error{Phase: bridge.PhasePolicy, Err: models.ErrPolicy}}
	d := startDispatcher(t, runner, breakers, 1, 1)

	for i := 0; i < 3; i++ {
		_, err := d.Submit(context.Background(), testRequest("GA", "1"))
		require.ErrorIs(t, err, models.ErrPolicy)
	}
	assert.False(t, breakers.Get(networks.TestnetName).IsOpen())
}

func TestMissingKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &fakeRunner{}
	d := New(runner, func(string) ([]byte, error) { return nil, errors.New("unknown account") }, nil, 1, 1, &logger.EmptyLogger{})
	d.Start(ctx)

	_, err := d.Submit(context.Background(), testRequest("GA", "1"))
	require.ErrorIs(t, err, models.ErrConfiguration)
	assert.Zero(t, atomic.LoadInt32(&runner.runs))
}

func TestSubmitAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := New(&fakeRunner{}, seedFor, nil, 1, 1, &logger.EmptyLogger{})
	d.Start(ctx)
	cancel()
	d.Wait()

	_, err := d.Submit(context.Background(), testRequest("GA", "1"))
	require.ErrorIs(t, err, ErrStopped)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err      error
		name     string
		breaking bool
	}{
		{err: models.ErrPolicy, name: "policy"},
		{err: fmt.Errorf("wrapped: %w", models.ErrConfiguration), name: "configuration"},
		{err: models.ErrAccountNotFound, name: "account_not_found"},
		{err: context.Canceled, name: "canceled"},
		{err: &bridge.Error{Phase: bridge.PhaseConfirmMain, Err: models.ErrTransactionFailed}, name: "transaction_failed", breaking: true},
		{err: models.ErrProtocol, name: "protocol", breaking: true},
		{err: errors.New("connection refused"), name: "unknown_error", breaking: true},
	}
	for _, tt := range tests {
		name, breaking := classifyError(tt.err)
		assert.Equal(t, tt.name, name)
		assert.Equal(t, tt.breaking, breaking, tt.name)
	}
}
