package gateway

import (
	"net/http"

	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the lot gateway
type Config struct {
	ConnectionConfig ConnectionConfig
	AllowedOrigins   []string
}

// DefaultConfig returns default configuration for the lot gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		AllowedOrigins:   []string{"*"},
	}
}

// Service bundles the REST API and the websocket fan-out.
type Service struct {
	api               *API
	wsHandler         *WebSocketHandler
	connectionManager *ConnectionManager
	config            Config
}

// NewService creates the gateway. cache and tracker may be nil.
func NewService(config Config, engine LotEngine, cache SnapshotCache, clock auction.Clock, tracker LotTracker) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		api:               NewAPI(engine, cache, clock, tracker),
		wsHandler:         NewWebSocketHandler(cm, engine),
		connectionManager: cm,
		config:            config,
	}
}

// Connections returns the websocket fan-out. It is an auction.EventSink.
func (s *Service) Connections() *ConnectionManager {
	return s.connectionManager
}

// RegisterRoutes registers the REST and WebSocket routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.api.RegisterRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	log.Info().Msg("lot gateway routes registered")
}

// Handler returns the routes wrapped with CORS.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return NewCORS(s.config.AllowedOrigins).Handler(mux)
}

// NewCORS returns the CORS policy shared by the HTTP entry points.
func NewCORS(allowedOrigins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}
