// Command server runs the shopcore HTTP API: account lifecycle, session
// issuing and the geographic reference lookups.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	accountHandler "shopcore/internal/account/handler"
	"shopcore/internal/account/models"
	"shopcore/internal/account/service"
	accountStore "shopcore/internal/account/store"
	"shopcore/internal/audit"
	"shopcore/internal/credential"
	"shopcore/internal/credential/tokenstore"
	geoHandler "shopcore/internal/geo/handler"
	"shopcore/internal/geo/resolver"
	geoStore "shopcore/internal/geo/store"
	"shopcore/internal/notify"
	"shopcore/internal/platform/config"
	"shopcore/internal/platform/httpserver"
	"shopcore/internal/platform/logger"
	"shopcore/internal/platform/metrics"
	"shopcore/internal/platform/middleware"
	"shopcore/internal/platform/postgres"
	platformRedis "shopcore/internal/platform/redis"
	"shopcore/internal/session"
	dErrors "shopcore/pkg/domain-errors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New()
	m := metrics.New()

	var (
		accounts accountStore.AccountStore
		geo      geoStore.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		accounts = accountStore.NewPostgres(db)
		geo = geoStore.NewPostgres(db)
		log.InfoContext(ctx, "using postgres stores")
	} else {
		accounts = accountStore.NewInMemory()
		mem := geoStore.NewInMemory()
		if cfg.SeedGeo {
			if err := geoStore.SeedReferenceData(ctx, mem); err != nil {
				return fmt.Errorf("seed geo data: %w", err)
			}
		}
		geo = mem
		log.InfoContext(ctx, "using in-memory stores")
	}

	var tokens credential.TokenStore = tokenstore.NewInMemory()
	var redisClient *platformRedis.Client
	if cfg.RedisURL != "" {
		redisClient, err = platformRedis.New(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		tokens = tokenstore.NewRedis(redisClient.Client)
		log.InfoContext(ctx, "using redis token store")
	}

	credentials, err := credential.New(tokens)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.NewLog(log)
	if cfg.Mailgun.APIKey != "" && cfg.Mailgun.Domain != "" {
		notifier = notify.NewMailgun(cfg.Mailgun.APIKey, cfg.Mailgun.Domain, cfg.Mailgun.Sender)
		log.InfoContext(ctx, "using mailgun notifier", "domain", cfg.Mailgun.Domain)
	}

	geoResolver, err := resolver.New(geo, resolver.WithLogger(log))
	if err != nil {
		return err
	}

	accountService, err := service.New(accounts, credentials, notifier, geoResolver,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithAudit(audit.NewPublisher(audit.NewInMemoryStore())),
		service.WithConfig(service.Config{
			MaxFailedAttempts:    cfg.Lockout.MaxFailedAttempts,
			LockoutDuration:      cfg.Lockout.Duration,
			ConfirmationTokenTTL: cfg.Tokens.ConfirmationTTL,
			ResetTokenTTL:        cfg.Tokens.ResetTTL,
			PublicBaseURL:        cfg.PublicBaseURL,
			NotifyTimeout:        10 * time.Second,
		}),
	)
	if err != nil {
		return err
	}

	if err := bootstrapAdmin(ctx, cfg, accountService, log); err != nil {
		return err
	}

	sessions, err := session.NewIssuer(cfg.JWTSigningKey, cfg.SessionTTL)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Metrics(m))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)

	accountHandler.New(accountService, sessions, log).Register(router)
	geoHandler.New(geoResolver, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	server := httpserver.New(cfg.Addr, router)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gCtx, "server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
		defer cancel()
		log.InfoContext(shutdownCtx, "shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// bootstrapAdmin provisions the operator account when configured. An account
// that already exists is not an error.
func bootstrapAdmin(ctx context.Context, cfg config.Config, svc *service.Service, log *slog.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}
	_, err := svc.CreateAdmin(ctx, service.RegisterRequest{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Profile:  models.Profile{FirstName: "Store", LastName: "Admin"},
	})
	if err != nil {
		if dErrors.Is(err, dErrors.CodeDuplicateEmail) {
			log.InfoContext(ctx, "admin account already present", "email", cfg.AdminEmail)
			return nil
		}
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.InfoContext(ctx, "admin account created", "email", cfg.AdminEmail)
	return nil
}
