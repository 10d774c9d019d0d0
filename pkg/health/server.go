package health

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-hq/stellar-bridge/pkg/bridge"
	"github.com/speedrun-hq/stellar-bridge/pkg/circuitbreaker"
	"github.com/speedrun-hq/stellar-bridge/pkg/dispatcher"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
)

// Checker reports whether a network backend can serve requests
type Checker interface {
	Ready(ctx context.Context) error
}

// Transferer runs a bridge transfer on behalf of an API caller
type Transferer interface {
	Submit(ctx context.Context, req bridge.Request) (*bridge.Result, error)
}

// Network is a network served by the server
type Network struct {
	Profile networks.Profile
	Checker Checker
}

// Defaults fill in the fields a transfer request leaves empty
type Defaults struct {
	Network          string
	SourceAddress    string
	SourceAsset      string
	DestinationChain string
	DestinationAsset string
	AllowMainnet     bool
}

// Server represents a health check and transfer API HTTP server
type Server struct {
	port          string
	networks      map[string]Network
	breakers      *circuitbreaker.Registry
	transfers     Transferer
	defaults      Defaults
	metricsAPIKey string
	logger        logger.Logger
}

// NewServer creates a new health check server
func NewServer(
	port string,
	nets []Network,
	breakers *circuitbreaker.Registry,
	transfers Transferer,
	defaults Defaults,
	metricsAPIKey string,
	logger logger.Logger,
) *Server {
	byName := make(map[string]Network, len(nets))
	for _, n := range nets {
		byName[n.Profile.Name] = n
	}
	return &Server{
		port:          port,
		networks:      byName,
		breakers:      breakers,
		transfers:     transfers,
		defaults:      defaults,
		metricsAPIKey: metricsAPIKey,
		logger:        logger,
	}
}

// authMiddleware is a middleware that checks for a valid API key
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.metricsAPIKey)) != 1 {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/circuit/reset", s.handleCircuitReset)
	mux.Handle("/metrics", s.authMiddleware(promhttp.Handler()))
	// transfers sign with the service key, so they are never served without an API key
	if s.transfers != nil && s.metricsAPIKey != "" {
		mux.Handle("/v1/transfers", s.authMiddleware(http.HandlerFunc(s.handleTransfer)))
	}
	return mux
}

// Start serves until ctx is done, then shuts the server down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting health, metrics and transfer server on port %s", s.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down health server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, name := range s.networkNames() {
		n := s.networks[name]
		if n.Checker == nil {
			continue
		}
		if err := n.Checker.Ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Network %s not ready: %v", name, err)))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})

	for _, name := range s.networkNames() {
		n := s.networks[name]
		circuitStatus := "closed"
		if s.breakers != nil {
			if cb, ok := s.breakers.Lookup(name); ok && cb.IsOpen() {
				circuitStatus = "open"
			}
		}

		networkStatus := map[string]interface{}{
			"rpc_url":     n.Profile.RPCURL,
			"horizon_url": n.Profile.HorizonURL,
			"production":  n.Profile.Production,
			"circuit":     circuitStatus,
		}
		if n.Checker != nil {
			ready := n.Checker.Ready(r.Context())
			networkStatus["ready"] = ready == nil
			if ready != nil {
				networkStatus["error"] = ready.Error()
			}
		}
		status[name] = networkStatus
	}
	if s.breakers != nil {
		status["circuit_breakers"] = s.breakers.States()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

// Circuit breaker admin control endpoint
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	network := r.URL.Query().Get("network")
	if network == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing network parameter"))
		return
	}

	var cb *circuitbreaker.CircuitBreaker
	ok := false
	if s.breakers != nil {
		cb, ok = s.breakers.Lookup(network)
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for network %s", network)))
		return
	}

	cb.Reset()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for network %s reset", network)))
}

// TransferRequest is the body of POST /v1/transfers
type TransferRequest struct {
	Amount           string `json:"amount"`
	SourceAddress    string `json:"source_address,omitempty"`
	DestAddress      string `json:"dest_address"`
	SourceAsset      string `json:"source_asset,omitempty"`
	DestinationChain string `json:"destination_chain,omitempty"`
	DestinationAsset string `json:"destination_asset,omitempty"`
	Network          string `json:"network,omitempty"`
}

type errorResponse struct {
	Error        string       `json:"error"`
	Phase        bridge.Phase `json:"phase,omitempty"`
	Hash         string       `json:"hash,omitempty"`
	TransferHash string       `json:"transfer_hash,omitempty"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body TransferRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	req, err := s.bridgeRequest(body)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.transfers.Submit(r.Context(), req)
	if err != nil {
		resp := errorResponse{Error: err.Error()}
		var bridgeErr *bridge.Error
		if errors.As(err, &bridgeErr) {
			resp.Phase = bridgeErr.Phase
			resp.Hash = bridgeErr.Hash
			resp.TransferHash = bridgeErr.TransferHash
		}
		s.writeJSON(w, statusFor(err), resp)
		return
	}

	code := http.StatusOK
	if result.Pending() {
		code = http.StatusAccepted
	}
	s.writeJSON(w, code, result)
}

func (s *Server) bridgeRequest(body TransferRequest) (bridge.Request, error) {
	name := firstNonEmpty(body.Network, s.defaults.Network)
	n, ok := s.networks[name]
	if !ok {
		return bridge.Request{}, fmt.Errorf("%w: network %q is not served", models.ErrConfiguration, name)
	}
	return bridge.Request{
		Amount:           body.Amount,
		SourceAddress:    firstNonEmpty(body.SourceAddress, s.defaults.SourceAddress),
		DestAddress:      body.DestAddress,
		SourceAsset:      firstNonEmpty(body.SourceAsset, s.defaults.SourceAsset),
		DestinationChain: firstNonEmpty(body.DestinationChain, s.defaults.DestinationChain),
		DestinationAsset: firstNonEmpty(body.DestinationAsset, s.defaults.DestinationAsset),
		Network:          n.Profile,
		AllowMainnet:     s.defaults.AllowMainnet,
	}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrPolicy):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatcher.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, dispatcher.ErrCircuitOpen), errors.Is(err, dispatcher.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding response JSON: %v", err)
	}
}

func (s *Server) networkNames() []string {
	names := make([]string, 0, len(s.networks))
	for name := range s.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
