package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/gridlock/pkg/api/handlers"
	"github.com/cbodonnell/gridlock/pkg/api/middleware"
	authproviders "github.com/cbodonnell/gridlock/pkg/auth/providers"
	"github.com/cbodonnell/gridlock/pkg/feed"
	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/repositories"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
	ChangeFeed   feed.ChangeFeed
}

// NewAPIServer creates the match service's HTTP surface: the record
// endpoints, the atomic join/move procedures, and the websocket feed.
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	router := mux.NewRouter()
	router.Use(middleware.NewAuthMiddleware(opts.AuthProvider))

	router.HandleFunc("/matches", handlers.HandleCreateMatch(opts.Repository)).Methods(http.MethodPost)
	router.HandleFunc("/matches/{matchID}", handlers.HandleGetMatch(opts.Repository)).Methods(http.MethodGet)
	router.HandleFunc("/matches/{matchID}", handlers.HandleDeleteMatch(opts.Repository)).Methods(http.MethodDelete)
	router.HandleFunc("/matches/{matchID}/join", handlers.HandleJoinMatch(opts.Repository)).Methods(http.MethodPost)
	router.HandleFunc("/matches/{matchID}/move", handlers.HandleApplyMove(opts.Repository)).Methods(http.MethodPost)
	router.HandleFunc("/matches/{matchID}/reset", handlers.HandleResetMatch(opts.Repository)).Methods(http.MethodPost)
	router.HandleFunc("/matches/{matchID}/cancel", handlers.HandleCancelMatch(opts.Repository)).Methods(http.MethodPost)
	router.HandleFunc("/matches/{matchID}/feed", handlers.HandleFeed(opts.ChangeFeed, opts.Repository)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Handler returns the server's root handler.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
