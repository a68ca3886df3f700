package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/heatlink/heatlink/pkg/log"
	"github.com/heatlink/heatlink/pkg/notify"
	"github.com/heatlink/heatlink/pkg/publisher"
	"github.com/heatlink/heatlink/pkg/storage"
	"github.com/heatlink/heatlink/pkg/uplink"
	"github.com/levenlabs/go-lflag"
)

type contextKey string

const userEmailContextKey contextKey = "userEmail"

// tokenVerifier is a function that validates an OIDC ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// authenticator validates a bearer token and returns the caller's email.
type authenticator func(ctx context.Context, token string) (string, error)

// Server handles the HTTP API for the heatlink bridge. It orchestrates
// interactions between the uplink connections, storage and the thermostat
// publisher.
type Server struct {
	registry  *uplink.Registry
	storage   storage.Database
	publisher *publisher.Publisher
	notifier  notify.Notifier

	listenAddr string
	httpServer *http.Server

	allowedEmails []string
	oidcAudience  string
	authenticate  authenticator
	bypassAuth    bool
	serverName    string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(reg *uplink.Registry, db storage.Database, pub *publisher.Publisher) *Server {
	srv := &Server{
		registry:   reg,
		storage:    db,
		publisher:  pub,
		notifier:   notify.NewStoreNotifier(db),
		serverName: "heatlink",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcAudience := lflag.String("oidc-audience", "", "audience/client ID to validate for id tokens")
	allowedEmails := lflag.String("allowed-emails", "", "comma-delimited list of email addresses allowed to call the API")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		if *allowedEmails != "" {
			srv.allowedEmails = strings.Split(*allowedEmails, ",")
			for i, email := range srv.allowedEmails {
				srv.allowedEmails[i] = strings.TrimSpace(email)
			}
		}
		if *oidcAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.oidcAudience = *oidcAudience
			srv.authenticate = oidcAuthenticator(provider.Verifier(&oidc.Config{ClientID: *oidcAudience}).Verify)
		} else {
			// no audience means local deployment without auth
			srv.bypassAuth = true
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/smarthome/mode", s.handleSetSmarthomeMode)
	apiMux.HandleFunc("POST /api/parameters/set", s.handleSetParameter)
	apiMux.HandleFunc("POST /api/parameters/get", s.handleGetParameter)
	apiMux.HandleFunc("POST /api/thermostats", s.handleSetThermostat)
	apiMux.HandleFunc("GET /api/notifications", s.handleListNotifications)
	apiMux.HandleFunc("GET /api/history/calls", s.handleHistoryCalls)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(mux))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
