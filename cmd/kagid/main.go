package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	config "github.com/ueckoken/kagi/configs"
	"github.com/ueckoken/kagi/internal/application/services"
	"github.com/ueckoken/kagi/internal/core/domain/door"
	"github.com/ueckoken/kagi/internal/core/ports"
	"github.com/ueckoken/kagi/internal/infrastructure/authority"
	"github.com/ueckoken/kagi/internal/infrastructure/health"
	"github.com/ueckoken/kagi/internal/infrastructure/httpserver"
	"github.com/ueckoken/kagi/internal/infrastructure/metrics"
	"github.com/ueckoken/kagi/internal/infrastructure/reader"
	"github.com/ueckoken/kagi/internal/infrastructure/systemd"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env-file", "", "dotenv file to load before the environment (default ./.env)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return 0
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		return 1
	}

	logger := newLogger(&cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		return 1
	}

	logger.WithField("version", version).Info("Starting kagid...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accessMetrics, err := metrics.NewAccessMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.WithError(err).Error("failed to register metrics")
		return 1
	}

	var healthCheckers []ports.HealthChecker

	// Cache
	cache, redisClient, closeCache, err := newCache(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize cache")
		return 1
	}
	defer closeCache()
	if redisClient != nil {
		healthCheckers = append(healthCheckers, health.NewRedisHealthChecker(redisClient))
	}

	// Authority
	authClient, err := authority.NewClient(authority.Config{
		BaseURL:     cfg.Authority.BaseURL,
		APIKey:      cfg.Authority.APIKey,
		MaxAttempts: cfg.Authority.MaxAttempts,
		BackoffMin:  cfg.Authority.BackoffMin,
		BackoffMax:  cfg.Authority.BackoffMax,
	}, &http.Client{}, accessMetrics, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize authority client")
		return 1
	}
	verifier := services.NewCardVerifier(authClient, cache, services.VerifierConfig{
		CacheTTL:         cfg.Cache.TTL,
		LookupTimeout:    cfg.Cache.LookupTimeout,
		AuthorityTimeout: cfg.Authority.Timeout,
	}, accessMetrics, logger)

	// Audit log
	auditRepo, database, err := newAuditRepository(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize audit log")
		return 1
	}
	if database != nil {
		defer database.Close()
		healthCheckers = append(healthCheckers, health.NewDBHealthChecker(database))
	}
	auditService := services.NewAuditService(auditRepo, logger)
	hashCard, err := newCardHashFunc(cfg)
	if err != nil {
		logger.WithError(err).Error("invalid AUDIT_HASH_KEY")
		return 1
	}

	// Hardware
	actuator, indicator, err := newHardware(&cfg.Hardware, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize hardware")
		return 1
	}
	initial, err := door.ParseState(cfg.Door.InitialState)
	if err != nil {
		logger.WithError(err).Error("invalid DOOR_INITIAL_STATE")
		return 1
	}
	controller := services.NewDoorController(actuator, indicator, services.DoorControllerConfig{
		Initial: initial,
		Settle:  cfg.Door.Settle,
	}, accessMetrics, logger)

	if err := resetActuator(ctx, controller, cfg.Hardware.ResetAttempts, logger); err != nil {
		logger.WithError(err).Error("actuator did not reach neutral position")
		return 1
	}

	// Reader
	cardReader := reader.NewLineReader(reader.Open(cfg.Reader.Source), reader.Config{
		AttemptTimeout: cfg.Reader.AttemptTimeout,
		Debounce:       cfg.Reader.Debounce,
		BackoffMin:     cfg.Reader.BackoffMin,
		BackoffMax:     cfg.Reader.BackoffMax,
	}, logger)
	defer cardReader.Close()

	loop := services.NewAccessService(services.AccessServiceDeps{
		Reader:         cardReader,
		Verifier:       verifier,
		Controller:     controller,
		Audit:          auditService,
		Metrics:        accessMetrics,
		HashCard:       hashCard,
		StallThreshold: cfg.Door.StallThreshold,
	}, logger)
	healthCheckers = append(healthCheckers, health.NewLoopHealthChecker(loop))

	// Status server
	var server *httpserver.Server
	if cfg.Status.Addr != "" {
		server, err = newStatusServer(cfg, controller, auditService, healthCheckers, logger)
		if err != nil {
			logger.WithError(err).Error("failed to initialize status server")
			return 1
		}
		go func() {
			if err := server.Start(); err != nil {
				logger.WithError(err).Error("status server stopped")
			}
		}()
	}

	notifier := systemd.NewNotifier(logger)
	go notifier.RunWatchdog(ctx, loop)
	notifier.Ready()

	err = loop.Run(ctx)
	notifier.Stopping()
	logger.Info("Shutting down...")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("status server forced to shutdown")
		}
	}

	if err != nil {
		logger.WithError(err).Error("door loop failed")
		return 1
	}
	logger.Info("kagid exited")
	return 0
}

func newLogger(cfg *config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

// resetActuator drives the lock to neutral, retrying with backoff. The daemon
// refuses to serve cards while the mechanism is in an unknown position.
func resetActuator(ctx context.Context, controller ports.DoorController, attempts int, logger *logrus.Logger) error {
	if attempts < 1 {
		attempts = 1
	}
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = controller.Reset(ctx); err == nil {
			return nil
		}
		logger.WithError(err).WithField("attempt", i).Warn("actuator reset failed")
		if i == attempts {
			break
		}
		if err := services.SleepContext(ctx, b.Duration()); err != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

func newStatusServer(cfg *config.Config, controller ports.DoorController, auditService ports.AuditService, checkers []ports.HealthChecker, logger *logrus.Logger) (*httpserver.Server, error) {
	var tokens ports.TokenService
	if cfg.Status.JWTSecret != "" {
		var err error
		if tokens, err = services.NewTokenService(cfg.Status.JWTSecret); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("STATUS_JWT_SECRET is empty; /api/v1 is unauthenticated")
	}

	var auditSvc ports.AuditService
	if cfg.Audit.Driver != "none" {
		auditSvc = auditService
	}

	return httpserver.NewServer(&httpserver.ServerConfig{
		Addr:         cfg.Status.Addr,
		ReadTimeout:  cfg.Status.ReadTimeout,
		WriteTimeout: cfg.Status.WriteTimeout,
		Version:      version,
	}, logger, httpserver.ServerDeps{
		Door:           controller,
		AuditService:   auditSvc,
		Tokens:         tokens,
		HealthCheckers: checkers,
	})
}
