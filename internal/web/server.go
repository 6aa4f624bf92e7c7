package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/vitos/deribit_gateway/internal/app"
	"github.com/vitos/deribit_gateway/internal/domain"
	"github.com/vitos/deribit_gateway/internal/usecase"
	"go.uber.org/zap"
)

// Gateway is what the HTTP surface needs from the client.
type Gateway interface {
	Invoke(ctx context.Context, name string, args map[string]any) domain.Outcome
	Operations() []usecase.Operation
	Journal(ctx context.Context, limit int) ([]*domain.JournalEntry, error)
	Status() app.Status
}

type Server struct {
	router  *mux.Router
	server  *http.Server
	gateway Gateway
	logger  *zap.Logger
}

func NewServer(port int, allowedOrigins []string, gateway Gateway, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  mux.NewRouter(),
		gateway: gateway,
		logger:  logger,
	}
	s.routes()

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           c.Handler(s.router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Operations
	api.HandleFunc("/operations", s.handleListOperations).Methods(http.MethodGet)
	api.HandleFunc("/operations/{name}", s.handleInvoke).Methods(http.MethodPost)

	// Journal
	api.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)

	// Status
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
}

// Handler exposes the routed handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
