package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-token-service/applications"
	applicationsqlrepo "github.com/jrsteele09/go-token-service/applications/sqlrepo"
	"github.com/jrsteele09/go-token-service/grants"
	"github.com/jrsteele09/go-token-service/grants/authcoderepo"
	"github.com/jrsteele09/go-token-service/internal/config"
	"github.com/jrsteele09/go-token-service/legacy"
	"github.com/jrsteele09/go-token-service/organizations"
	orgsqlrepo "github.com/jrsteele09/go-token-service/organizations/sqlrepo"
	"github.com/jrsteele09/go-token-service/secrets"
	"github.com/jrsteele09/go-token-service/server"
	"github.com/jrsteele09/go-token-service/tokens"
	"github.com/jrsteele09/go-token-service/tokens/sqlstore"
	"github.com/jrsteele09/go-token-service/users"
	usersqlrepo "github.com/jrsteele09/go-token-service/users/sqlrepo"
	"github.com/rs/zerolog"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	displayAppname(c.GetAppName())

	services, err := buildServices(c, logger)
	if err != nil {
		return fmt.Errorf("buildServices: %w", err)
	}

	handler, err := server.New(c, services, logger)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildServices wires the domain components onto sqlite. An unset
// DATABASE_PATH runs everything on an ephemeral in-memory database.
func buildServices(c config.Config, logger zerolog.Logger) (server.Services, error) {
	ctx := context.Background()

	path := c.GetDatabasePath()
	if path == "" {
		path = ":memory:"
		logger.Warn().Msg("DATABASE_PATH not set, tokens will not survive a restart")
	}
	db, err := sqlstore.OpenDB(path)
	if err != nil {
		return server.Services{}, err
	}

	store := sqlstore.New(db)
	orgRepo := orgsqlrepo.New(db)
	userRepo := usersqlrepo.New(db)
	appRepo := applicationsqlrepo.New(db)
	for _, schema := range []interface {
		InitSchema(context.Context) error
	}{store, orgRepo, userRepo, appRepo} {
		if err := schema.InitSchema(ctx); err != nil {
			return server.Services{}, err
		}
	}

	registry, err := applications.NewRegistry(appRepo, orgRepo, store, secrets.New(c.GetSecretKey()),
		applications.WithLogger(logger))
	if err != nil {
		return server.Services{}, err
	}

	processor, err := grants.New(registry, userRepo, store, authcoderepo.NewInMemoryRepo(),
		grants.WithLogger(logger),
		grants.WithAccessTokenExpiry(c.GetAccessTokenExpiry()),
		grants.WithAuthCodeTimeout(c.GetAuthCodeTimeout()),
		grants.WithAllowExternalUserTokens(c.GetAllowExternalUserTokenCreation()))
	if err != nil {
		return server.Services{}, err
	}

	bridge, err := legacy.New(userRepo, store,
		legacy.WithLogger(logger),
		legacy.WithTokenExpiry(c.GetLegacyTokenExpiry()))
	if err != nil {
		return server.Services{}, err
	}

	if err := seedDefaults(orgRepo, userRepo, logger); err != nil {
		return server.Services{}, err
	}

	return server.Services{
		Registry:  registry,
		Processor: processor,
		Bridge:    bridge,
		Store:     store,
		Users:     userRepo,
	}, nil
}

// seedDefaults makes a fresh database usable: a default organization and an
// admin account when none exist yet.
func seedDefaults(orgRepo organizations.Repo, userRepo users.Repo, logger zerolog.Logger) error {
	orgs, err := orgRepo.List(0, 1)
	if err != nil {
		return err
	}
	if len(orgs) == 0 {
		if err := orgRepo.Upsert(&organizations.Organization{Name: "Default"}); err != nil {
			return err
		}
		logger.Info().Msg("created Default organization")
	}

	existing, err := userRepo.List(0, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	password := config.GetEnv("ADMIN_PASSWORD", "")
	if password == "" {
		password, err = tokens.GenerateTokenString()
		if err != nil {
			return err
		}
		logger.Info().Str("password", password).Msg("generated admin password, set ADMIN_PASSWORD to override")
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return err
	}
	if err := userRepo.Upsert(&users.User{Username: "admin", PasswordHash: hash}); err != nil {
		return err
	}
	logger.Info().Msg("created admin user")
	return nil
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
