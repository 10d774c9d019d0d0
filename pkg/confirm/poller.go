// Package confirm polls the network for the terminal status of a submitted transaction.
package confirm

import (
	"context"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

const (
	// DefaultInterval is the fixed delay between two status queries
	DefaultInterval = time.Second

	// DefaultMaxAttempts is the maximum number of status queries per confirmation
	DefaultMaxAttempts = 30
)

// StatusQuerier returns the current status of a transaction
type StatusQuerier interface {
	GetStatus(ctx context.Context, hash string) (models.ConfirmationStatus, error)
}

// Poller is a bounded fixed-interval status poll. It never submits anything.
type Poller struct {
	interval    time.Duration
	maxAttempts int
	network     string
	logger      logger.Logger
}

// NewPoller creates a new poller; non-positive values select the defaults
func NewPoller(interval time.Duration, maxAttempts int, network string, logger logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Poller{
		interval:    interval,
		maxAttempts: maxAttempts,
		network:     network,
		logger:      logger,
	}
}

// MaxWait returns the worst case time spent sleeping between queries
func (p *Poller) MaxWait() time.Duration {
	return time.Duration(p.maxAttempts-1) * p.interval
}

// Confirm queries the status of hash until it is SUCCESS or FAILED, or the
// attempt budget is spent, in which case NOT_FOUND is returned. PENDING is
// never returned. A failed query consumes an attempt. The only error is a
// context error.
func (p *Poller) Confirm(ctx context.Context, q StatusQuerier, hash string) (models.ConfirmationStatus, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		status, err := q.GetStatus(ctx, hash)
		switch {
		case err != nil:
			p.logger.ErrorWithNetwork(p.network, "Status query %d/%d for %s failed: %v", attempt, p.maxAttempts, hash, err)
		case status.Terminal():
			p.logger.InfoWithNetwork(p.network, "Transaction %s is %s after %d queries", hash, status, attempt)
			metrics.PollAttempts.WithLabelValues(p.network, status.String()).Observe(float64(attempt))
			return status, nil
		default:
			p.logger.DebugWithNetwork(p.network, "Transaction %s is %s (%d/%d)", hash, status, attempt, p.maxAttempts)
		}

		if attempt == p.maxAttempts {
			break
		}

		if timer == nil {
			timer = time.NewTimer(p.interval)
		} else {
			timer.Reset(p.interval)
		}
		select {
		case <-ctx.Done():
			return models.StatusNotFound, ctx.Err()
		case <-timer.C:
		}
	}

	p.logger.NoticeWithNetwork(p.network, "Transaction %s not confirmed after %d queries, outcome unknown", hash, p.maxAttempts)
	metrics.PollAttempts.WithLabelValues(p.network, models.StatusNotFound.String()).Observe(float64(p.maxAttempts))
	return models.StatusNotFound, nil
}
