package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/speedrun-hq/stellar-bridge/pkg/bridge"
	"github.com/speedrun-hq/stellar-bridge/pkg/circuitbreaker"
	"github.com/speedrun-hq/stellar-bridge/pkg/dispatcher"
	"github.com/speedrun-hq/stellar-bridge/pkg/health"
	"github.com/speedrun-hq/stellar-bridge/pkg/router"
	"github.com/speedrun-hq/stellar-bridge/pkg/signer"
)

var serveQueueSize int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transfer API with health checks and metrics",
	Long: `serve starts WORKER_COUNT transfer workers behind a bounded queue and an
HTTP server on METRICS_PORT exposing /health, /ready, /status, /metrics,
POST /circuit/reset and POST /v1/transfers. It stops on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveQueueSize, "queue-size", 0, "number of transfers that may wait for a worker, defaults to WORKER_COUNT")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	a.logger.Info("Starting stellar-bridge on %s", a.profile.Name)

	g, ctx := errgroup.WithContext(cmd.Context())

	l, err := a.dialLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	orchestrator := bridge.NewOrchestrator(
		map[string]bridge.Ledger{a.profile.Name: l},
		router.New(a.cfg.Router.Endpoint, a.cfg.Router.RateLimit, a.cfg.Router.TokenCacheTTL, a.logger),
		signer.Ed25519{},
		a.logger,
		bridge.Options{
			PollInterval:    a.cfg.Poll.Interval,
			PollMaxAttempts: a.cfg.Poll.MaxAttempts,
		},
	)

	// check the key once at startup so a misconfigured service fails fast
	seed, err := a.signingSeed()
	if err != nil {
		return err
	}
	wipe(seed)

	if a.cfg.MetricsAPIKey == "" {
		a.logger.Notice("METRICS_API_KEY is not set, POST /v1/transfers is disabled")
	}

	breakers := circuitbreaker.NewRegistry(a.cfg.CircuitBreaker, a.logger)
	breakers.Get(a.profile.Name)

	d := dispatcher.New(orchestrator, a.keyFor, breakers, a.cfg.WorkerCount, serveQueueSize, a.logger)
	d.Start(ctx)

	server := health.NewServer(
		a.cfg.MetricsPort,
		[]health.Network{{Profile: a.profile, Checker: l}},
		breakers,
		d,
		health.Defaults{
			Network:          a.profile.Name,
			SourceAddress:    a.cfg.SourceAddress,
			SourceAsset:      a.cfg.Transfer.SourceAsset,
			DestinationChain: a.cfg.Transfer.DestinationChain,
			DestinationAsset: a.cfg.Transfer.DestinationAsset,
			AllowMainnet:     a.allowMainnet,
		},
		a.cfg.MetricsAPIKey,
		a.logger,
	)

	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		d.Wait()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("Shutdown complete")
	return nil
}
