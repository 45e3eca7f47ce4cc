package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ONSdigital/ras-party-accounts/account"
	"github.com/ONSdigital/ras-party-accounts/clients"
	"github.com/ONSdigital/ras-party-accounts/metrics"
	"github.com/ONSdigital/ras-party-accounts/notify"
	"github.com/ONSdigital/ras-party-accounts/store"
	"github.com/ONSdigital/ras-party-accounts/token"
	"github.com/ONSdigital/ras-party-accounts/transaction"
	"github.com/Unleash/unleash-client-go/v3"
	"github.com/julienschmidt/httprouter"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Error("Error connecting to the database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	listener := newBasicListener(logger)
	features, err := unleash.NewClient(
		unleash.WithListener(listener),
		unleash.WithAppName(cfg.ServiceName),
		unleash.WithUrl(strings.TrimSuffix(cfg.UnleashPath, "/")+"/"),
	)
	if err != nil {
		logger.Error("Error starting the Unleash client", "error", err)
		os.Exit(1)
	}
	defer features.Close()
	select {
	case <-listener.Ready():
	case <-time.After(10 * time.Second):
		logger.Warn("Unleash not ready, every feature is off until it is")
	}

	transport, err := newNotifyTransport(ctx, cfg)
	if err != nil {
		logger.Error("Error connecting to the notification transport", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := httprouter.New()
	addRoutes(router, newAPI(cfg, db, features, transport, reg, logger))

	var wg sync.WaitGroup
	wg.Add(1)
	srv := startServer(router, &wg, cfg.ListenPort)
	logger.Info("Started party accounts service", "port", cfg.ListenPort, "version", cfg.AppVersion)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down the server", "error", err)
	}
	wg.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openDatabase(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.DBMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating schema: %w", err)
		}
	}
	return db, nil
}

func newNotifyTransport(ctx context.Context, cfg Config) (notify.Transport, error) {
	switch cfg.NotifyTransport {
	case "http":
		return notify.NewHTTPTransport(cfg.NotifyService, cfg.SecurityUserName, cfg.SecurityUserPassword, cfg.RequestTimeout), nil
	case "redis":
		client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return notify.NewRedisTransport(client, cfg.NotifyChannel), nil
	}
	return nil, fmt.Errorf("unknown notify_transport %q", cfg.NotifyTransport)
}

// newAPI wires the account service to its collaborators
func newAPI(cfg Config, db *sql.DB, features featureToggle, transport notify.Transport, reg *prometheus.Registry, logger *slog.Logger) *api {
	m := metrics.New(reg)
	clientOpts := []clients.Option{clients.WithTimeout(cfg.RequestTimeout), clients.WithObserver(m)}

	notifier := notify.NewGateway(transport, notify.Templates{
		EmailVerification:     cfg.EmailVerificationTemplate,
		RequestPasswordChange: cfg.RequestPasswordChangeTemplate,
		ConfirmPasswordChange: cfg.ConfirmPasswordChangeTemplate,
	}, notify.WithLogger(logger), notify.WithFailureCounter(m))

	coordinator := transaction.New(db,
		transaction.WithLogger(logger),
		transaction.WithTimeout(cfg.TransactionTimeout),
		transaction.WithRecorder(m),
	)

	accounts := account.NewService(db, coordinator, token.New(cfg.SecretKey),
		account.PublicWebsite{URL: cfg.FrontstageURL},
		account.Collaborators{
			IAC:                clients.NewIACClient(cfg.IACService, clientOpts...),
			Case:               clients.NewCaseClient(cfg.CaseService, clientOpts...),
			CollectionExercise: clients.NewCollectionExerciseClient(cfg.CollectionExerciseService, clientOpts...),
			Survey:             clients.NewSurveyClient(cfg.SurveyService, clientOpts...),
			Credentials:        clients.NewOAuthClient(cfg.OAuthService, cfg.OAuthClientID, cfg.OAuthClientSecret, clientOpts...),
			Notifier:           notifier,
		},
		account.WithLogger(logger),
		account.WithTokenExpiry(cfg.EmailTokenExpiry),
		account.WithRecorder(m),
	)

	return &api{
		cfg:      cfg,
		accounts: accounts,
		features: features,
		metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		logger:   logger,
	}
}

func startServer(router http.Handler, wg *sync.WaitGroup, port string) *http.Server {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server stopped", "error", err)
		}
	}()

	return srv
}
