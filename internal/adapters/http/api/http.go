// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/okian/lastcall/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	MarketDependencies
	PredictionDependencies
	ResolveDependencies
	StandingsDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	marketsHandler    *MarketsHandler
	predictionHandler *PredictionHandler
	resolveHandler    *ResolveHandler
	standingsHandler  *StandingsHandler

	limiter *rate.Limiter
	logger  logger.Logger
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	adminSecret string
	rps         float64
	burst       int
	logger      logger.Logger
}

// WithAdminSecret sets the secret expected in X-Admin-Secret on resolve.
// An empty secret disables the resolve route.
func WithAdminSecret(secret string) Option {
	return func(o *serverOptions) { o.adminSecret = secret }
}

// WithRateLimit limits write routes to rps requests per second with the
// given burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *serverOptions) {
		o.rps = rps
		o.burst = burst
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{burst: 1, logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		marketsHandler:    NewMarketsHandler(deps),
		predictionHandler: NewPredictionHandler(deps),
		resolveHandler:    NewResolveHandler(deps, o.adminSecret),
		standingsHandler:  NewStandingsHandler(deps),
		logger:            o.logger,
	}
	s.marketsHandler.logger = o.logger.Named("markets")
	s.predictionHandler.logger = o.logger.Named("predictions")
	s.resolveHandler.logger = o.logger.Named("resolve")
	s.standingsHandler.logger = o.logger.Named("standings")
	if o.rps > 0 {
		burst := o.burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(o.rps), burst)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /healthz", s.route("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("GET /stats", s.route("stats", s.statsHandler.HandleStats))

	mux.HandleFunc("POST /markets", s.route("create_market", s.write(s.marketsHandler.HandleCreateMarket)))
	mux.HandleFunc("GET /markets/{id}", s.route("get_market", s.marketsHandler.HandleGetMarket))
	mux.HandleFunc("POST /markets/{id}/predictions", s.route("predictions", s.write(s.predictionHandler.HandlePostPrediction)))
	mux.HandleFunc("POST /markets/{id}/resolve", s.route("resolve", s.write(s.resolveHandler.HandleResolve)))
	mux.HandleFunc("GET /markets/{id}/standings", s.route("standings", s.standingsHandler.HandleGetStandings))
	mux.HandleFunc("GET /markets/{id}/settlement", s.route("settlement", s.standingsHandler.HandleGetSettlement))
}

func (s *Server) route(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return MetricsMiddleware(RecoverMiddleware(next, s.logger.Named(endpoint)), endpoint)
}

func (s *Server) write(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return RateLimitMiddleware(next, s.limiter)
}

var validate = validator.New() //nolint:gochecknoglobals // validator caches struct metadata

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as a JSON error body with the status its kind maps to.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into v and validates its struct tags.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}
