package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-service/applications"
	"github.com/jrsteele09/go-token-service/grants"
	"github.com/jrsteele09/go-token-service/internal/config"
	"github.com/jrsteele09/go-token-service/legacy"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/jrsteele09/go-token-service/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Services bundles the domain components the HTTP layer fronts.
type Services struct {
	Registry  *applications.Registry
	Processor *grants.Processor
	Bridge    *legacy.Bridge
	Store     tokens.Store
	Users     users.Repo
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	services Services
	sessions *SessionIssuer
	logger   zerolog.Logger
}

func New(cfg config.Config, services Services, logger zerolog.Logger) (*Server, error) {
	if services.Registry == nil || services.Processor == nil || services.Bridge == nil || services.Store == nil || services.Users == nil {
		return nil, errors.New("[Server New] all services are required")
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		services: services,
		sessions: NewSessionIssuer(cfg.GetSessionSecret(), cfg.GetMaxSessionAge()),
		logger:   logger,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
