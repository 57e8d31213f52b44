package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cngnlend/chain"
	"cngnlend/config"
	"cngnlend/gate"
	"cngnlend/observability"
	"cngnlend/syncer"
	"cngnlend/wad"
)

const requestBodyLimit = 1 << 16 // 64 KiB; amount payloads are tiny

// Server is the HTTP surface the web front end consumes. Labels and
// enabled/disabled decisions all derive from the gate's evaluation; the
// server adds transport, auth, and formatting only.
type Server struct {
	store        *syncer.Store
	sync         *syncer.Synchronizer
	gate         *gate.Gate
	logger       *slog.Logger
	safetyBuffer *big.Int
	cfg          config.Config
}

// NewServer wires the gateway. The safety buffer for the max-safe-withdraw
// shortcut comes from configuration (default 1.2).
func NewServer(cfg config.Config, sync *syncer.Synchronizer, g *gate.Gate, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	buffer, err := wad.Parse(cfg.Position.SafetyBufferWad)
	if err != nil {
		return nil, err
	}
	return &Server{
		store:        sync.Store(),
		sync:         sync,
		gate:         g,
		logger:       logger,
		safetyBuffer: buffer,
		cfg:          cfg,
	}, nil
}

// Router assembles the chi route tree with auth, rate limiting, and
// request IDs applied to the API surface. /healthz and /metrics stay open.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	auth := newAuthenticator(s.cfg.Auth)
	limiter := newClientLimiter(s.cfg.RateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Use(requestID)
		r.Use(limiter.middleware)
		r.Use(auth.middleware)
		r.Get("/protocol", s.handleProtocol)
		r.Get("/position", s.handlePosition)
		r.Get("/balances", s.handleBalances)
		r.Post("/refresh", s.handleRefresh)
		r.Route("/actions/{kind}", func(r chi.Router) {
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/submit", s.handleSubmit)
		})
		r.Get("/shortcuts/max-borrow", s.handleMaxBorrow)
		r.Get("/shortcuts/max-safe-withdraw", s.handleMaxSafeWithdraw)
		r.Get("/shortcuts/repay-percentage", s.handleRepayPercentage)
	})
	return r
}

// ListenAndServe runs the HTTP server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type errorPayload struct {
	Error string    `json:"error"`
	Tag   chain.Tag `json:"tag,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Error: message})
}

func writeTaggedError(w http.ResponseWriter, err error) {
	tag := chain.Classify(err)
	writeJSON(w, statusForTag(tag), errorPayload{Error: err.Error(), Tag: tag})
}

func statusForTag(tag chain.Tag) int {
	switch tag {
	case chain.TagInvalidAmount:
		return http.StatusUnprocessableEntity
	case chain.TagConfiguration:
		return http.StatusInternalServerError
	case chain.TagWrongNetwork:
		return http.StatusServiceUnavailable
	case chain.TagTransactionRejected, chain.TagStaleProjection:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) observe(route string, status int) {
	observability.Gateway().ObserveRequest(route, status)
}
