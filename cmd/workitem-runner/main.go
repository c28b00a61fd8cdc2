// cmd/workitem-runner/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cadio-client/internal/common/aws"
	"cadio-client/internal/common/config"
	"cadio-client/internal/common/credentials"
	"cadio-client/internal/common/database"
	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
	"cadio-client/internal/common/observability"
	"cadio-client/internal/pipeline"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to a config file (default: configs/config.yaml)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return errors.ExitConfiguration
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name, nil, log)
	defer obs.Shutdown()

	if cfg.Metrics.Address != "" {
		srv := startMetricsServer(cfg.Metrics.Address, zapLog)
		defer srv.Close()
	}

	provider := credentials.NewProvider(cfg.Credentials)
	deps := pipeline.Dependencies{
		Logger:        log,
		Credentials:   provider,
		Observability: obs,
	}

	if cfg.Database.Redis.Enabled() {
		rdb := database.NewRedis(cfg.Database.Redis)
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			// the token cache is an optimization; run without it
			zapLog.Warn("redis unavailable, token cache disabled", zap.Error(err))
		} else {
			deps.TokenCache = rdb
			zapLog.Info("Redis connected successfully")
		}
	}

	if cfg.Database.Postgres.Enabled() {
		var pg *database.PostgresClient
		err := retryWithBackoff(ctx, func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				pg.Close()
				return err
			}
			return pg.Migrate(ctx)
		}, 5, time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Warn("postgres unavailable, run history disabled", zap.Error(err))
		} else {
			defer pg.Close()
			deps.History = pg
			zapLog.Info("PostgreSQL connected successfully")
		}
	}

	if cfg.Notifications.Enabled() {
		keys := notificationKeys(provider)
		if cfg.Notifications.SES.Enabled {
			sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWSRegion, keys)
			if err != nil {
				zapLog.Warn("SES client init failed", zap.Error(err))
			} else {
				deps.SES = sesClient
			}
		}
		if cfg.Notifications.SNS.Enabled {
			snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWSRegion, keys)
			if err != nil {
				zapLog.Warn("SNS client init failed", zap.Error(err))
			} else {
				deps.SNS = snsClient
			}
		}
	}

	result, err := pipeline.NewRunner(cfg, deps).Run(ctx)
	code := errors.NewErrorHandler(log).HandleRunError(result.RunID, err)
	if err == nil {
		fmt.Printf("WorkItem %s %s\n", result.WorkItemID, result.Status)
		fmt.Printf("Report: %s\n", result.ReportPath)
		fmt.Printf("Result: %s\n", result.ResultPath)
	}
	return code
}

// notificationKeys reuses the storage keys when present; otherwise the SDK's default chain applies.
func notificationKeys(p credentials.Provider) aws.StaticKeys {
	access, _ := p.Get(credentials.AWSAccessKey)
	secret, _ := p.Get(credentials.AWSSecretKey)
	return aws.StaticKeys{AccessKey: access, SecretKey: secret}
}

func startMetricsServer(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Metrics server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
