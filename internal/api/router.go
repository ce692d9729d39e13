// Package api exposes the monitor over HTTP: KPI queries, alert history and
// the live notification socket.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"svfe-monitor/internal/auth"
	"svfe-monitor/internal/hub"
	"svfe-monitor/internal/model"
	"svfe-monitor/internal/service"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Pinger reports backend reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP layer. A nil Verifier disables
// authentication; a nil Pinger makes /healthz always report ok.
type Deps struct {
	Service        *service.Service
	Hub            *hub.Hub
	Verifier       TokenVerifier
	Pinger         Pinger
	AllowedOrigins []string
	Logger         zerolog.Logger
}

type handlers struct {
	svc      *service.Service
	hub      *hub.Hub
	pinger   Pinger
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewRouter wires every route.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger.With().Str("component", "api").Logger()
	h := &handlers{
		svc:      deps.Service,
		hub:      deps.Hub,
		pinger:   deps.Pinger,
		upgrader: hub.NewUpgrader(deps.AllowedOrigins),
		logger:   logger,
	}

	router := mux.NewRouter().StrictSlash(true)
	router.Use(recovery(logger))
	router.Use(accessLog(logger))
	router.Use(cors(deps.AllowedOrigins))

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Handle("/ws/notifications",
		requireAuth(deps.Verifier, true, logger)(http.HandlerFunc(h.notifications))).
		Methods(http.MethodGet)

	protected := router.NewRoute().Subrouter()
	protected.Use(requireAuth(deps.Verifier, false, logger))

	get := []string{http.MethodGet, http.MethodOptions}

	protected.HandleFunc("/transactions/", h.transactions(model.SourceCurrent)).Methods(get...)
	protected.HandleFunc("/transactions_hist/", h.transactions(model.SourceHistorical)).Methods(get...)

	protected.HandleFunc("/kpis/", h.kpis(model.SourceCurrent)).Methods(get...)
	protected.HandleFunc("/kpis_hist/", h.kpis(model.SourceHistorical)).Methods(get...)

	protected.HandleFunc("/terminal_distribution/", h.terminalDistribution).Methods(get...)
	protected.HandleFunc("/refusal_rate_per_issuer/", h.issuerRefusal).Methods(get...)
	protected.HandleFunc("/system_status/", h.systemStatus).Methods(get...)

	protected.HandleFunc("/transaction_trends/", h.trends(model.SourceCurrent)).Methods(get...)
	protected.HandleFunc("/transaction_trends_hist/", h.trends(model.SourceHistorical)).Methods(get...)

	protected.HandleFunc("/alerts/", h.alerts).Methods(get...)

	return router
}
