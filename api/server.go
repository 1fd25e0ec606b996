/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     Structured request logging (zerolog)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Request duration by route pattern (optional)
  6. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /healthz                 Liveness
  /metrics                 Prometheus scrape endpoint (optional)
  /api/strategies/*        Strategies, period ledgers, positions
  /api/items/*             Minting component
  /api/treasury/*          Tokens and prices
  /api/scenarios/*         Demo scenarios
  /api/admin/*             Manual clock

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/warp/staking-engine/logging"
	"github.com/warp/staking-engine/metrics"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         zerolog.Logger
	// Metrics is optional; nil disables /metrics and request timing.
	Metrics *metrics.Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(opts.Logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", h.ListStrategies)
			r.Route("/{strategy}", func(r chi.Router) {
				r.Get("/", h.GetStrategy)

				// Period ledger
				r.Get("/current-period", h.CurrentPeriod)
				r.Post("/update-deposits", h.UpdateDeposits)
				r.Get("/periods/{period}", h.GetPeriod)
				r.Put("/periods/{period}/earnings", h.SetEarnings)

				// Positions
				r.Post("/positions", h.Stake)
				r.Route("/positions/{collection}/{id}", func(r chi.Router) {
					r.Get("/", h.GetPosition)
					r.Get("/pending", h.Pending)
					r.Get("/payouts", h.ListPayouts)
					r.Post("/claim", h.Claim)
					r.Post("/sell", h.Sell)
				})
			})
		})

		r.Route("/items", func(r chi.Router) {
			r.Post("/", h.MintItem)
			r.Get("/{collection}/{id}", h.GetItem)
			r.Post("/{collection}/{id}/transfer", h.TransferItem)
		})

		r.Route("/treasury", func(r chi.Router) {
			r.Get("/tokens", h.ListTokens)
			r.Put("/tokens/{token}/price", h.SetTokenPrice)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/clock", h.SetClock)
		})
	})

	return r
}
