package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whorules/arm-controller/internal/alert"
	"github.com/whorules/arm-controller/internal/circuitbreaker"
	"github.com/whorules/arm-controller/internal/config"
	"github.com/whorules/arm-controller/internal/control"
	"github.com/whorules/arm-controller/internal/domain/model"
	"github.com/whorules/arm-controller/internal/gateway"
	"github.com/whorules/arm-controller/internal/health"
	"github.com/whorules/arm-controller/internal/journal"
	"github.com/whorules/arm-controller/internal/policy"
	"github.com/whorules/arm-controller/internal/prometheus"
	"github.com/whorules/arm-controller/internal/store/postgres"
	redisstore "github.com/whorules/arm-controller/internal/store/redis"
	"github.com/whorules/arm-controller/internal/tracing"
)

const (
	serviceName         = "arm-controller"
	journalWriteTimeout = 2 * time.Second
	alertSendTimeout    = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	logger.Info("starting arm-controller",
		"prometheus_url", cfg.Prometheus.URL,
		"gateway_url", cfg.Gateway.URL,
		"tick_interval", cfg.Control.TickInterval.String(),
		"timeout_enabled", cfg.Timeout.Enabled,
		"retry_enabled", cfg.Retry.Enabled,
		"concurrency_enabled", cfg.Concurrency.Enabled,
		"db_url", maskCredentials(cfg.DB.URL),
		"redis_url", maskCredentials(cfg.Redis.URL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("arm-controller exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("arm-controller shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	var (
		sinks []journal.Sink
		db    *postgres.DB
	)
	if cfg.DB.URL != "" {
		db, err = postgres.New(postgres.Config{
			URL:                cfg.DB.URL,
			MaxOpenConns:       cfg.DB.MaxOpenConns,
			MaxIdleConns:       cfg.DB.MaxIdleConns,
			ConnMaxLifetime:    cfg.DB.ConnMaxLifetime,
			StatementTimeoutMS: cfg.DB.StatementTimeoutMS,
		})
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx, postgres.Migrations()); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		sinks = append(sinks, postgres.NewSetpointChangeRepo(db))
	}
	if cfg.Redis.URL != "" {
		stream, err := redisstore.NewStream(ctx, cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer stream.Close()
		sinks = append(sinks, stream)
	}

	alerter := buildAlerter(cfg.Alert, logger)
	changeAlerts := alert.NewChangeAlerts(alerter, cfg.Alert.ApplyFailureThreshold, logger)
	changeJournal := journal.New(logger, journalWriteTimeout, sinks...)
	registry := health.NewRegistry(cfg.Control.UnhealthyThreshold, healthEventAlert(alerter, logger))

	source, err := prometheus.New(prometheus.Config{
		URL:     cfg.Prometheus.URL,
		Timeout: cfg.Prometheus.Timeout,
	})
	if err != nil {
		return err
	}
	gw, err := gateway.NewClient(gateway.Config{
		URL:     cfg.Gateway.URL,
		Timeout: cfg.Gateway.Timeout,
		RPS:     cfg.Gateway.RPS,
		Burst:   cfg.Gateway.Burst,
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Gateway.BreakerFailureThreshold,
			OpenTimeout:      cfg.Gateway.BreakerOpenTimeout,
		},
	})
	if err != nil {
		return err
	}

	controllers, err := buildControllers(cfg, source, gw, logger,
		control.WithObserver(changeJournal),
		control.WithObserver(changeAlerts),
	)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return health.Serve(gCtx, ":"+strconv.Itoa(cfg.Server.HealthPort), registry, logger)
	})

	var policyRepo *postgres.RuntimePolicyRepo
	if db != nil {
		policyRepo = postgres.NewRuntimePolicyRepo(db)
	}

	for _, ctrl := range controllers {
		ctrl := ctrl
		registry.Register(ctrl.Parameter())
		runner := control.NewRunner(ctrl, control.RunnerConfig{
			Interval:     cfg.Control.TickInterval,
			ReadyDelay:   cfg.Control.ReadyDelay,
			InitAttempts: cfg.Control.InitAttempts,
			InitBackoff:  cfg.Control.InitBackoff,
		}, registry, logger)
		g.Go(func() error {
			return runner.Run(gCtx)
		})

		if policyRepo != nil {
			watcher := policy.NewWatcher(policyRepo, ctrl, ctrl.Policy(), logger, cfg.Control.PolicyPollInterval)
			g.Go(func() error {
				return watcher.Run(gCtx)
			})
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildControllers creates one controller per enabled parameter in startup
// order.
func buildControllers(cfg *config.Config, source control.MetricSource, gw *gateway.Client, logger *slog.Logger, opts ...control.Option) ([]*control.Controller, error) {
	var out []*control.Controller
	label := cfg.Control.ResourceLabel

	for _, p := range model.AllParameters() {
		var (
			ctrl *control.Controller
			err  error
		)
		ctrlOpts := append([]control.Option{control.WithLogger(logger)}, opts...)
		switch p {
		case model.ParameterTimeout:
			if !cfg.Timeout.Enabled {
				continue
			}
			sp := gateway.NewTimeoutSetpoints(gw)
			ctrl, err = control.New(control.Config{
				Parameter:     p,
				Query:         cfg.Timeout.Query,
				ResourceLabel: label,
			}, cfg.Timeout.Policy, source, sp, sp, ctrlOpts...)
		case model.ParameterRetry:
			if !cfg.Retry.Enabled {
				continue
			}
			sp := gateway.NewRetrySetpoints(gw, retryTemplate(cfg.Retry), cfg.Retry.SeedRoutes, cfg.Retry.Policy.Min, logger)
			ctrl, err = control.New(control.Config{
				Parameter:     p,
				Query:         cfg.Retry.Query,
				ResourceLabel: label,
			}, cfg.Retry.Policy, source, sp, sp, ctrlOpts...)
		case model.ParameterConcurrency:
			if !cfg.Concurrency.Enabled {
				continue
			}
			sp := gateway.NewBulkheadSetpoints(gw, cfg.Concurrency.MaxWaitMs)
			ctrl, err = control.New(control.Config{
				Parameter:     p,
				Query:         cfg.Concurrency.Query,
				Guards:        cfg.Concurrency.Guards(),
				ResourceLabel: label,
			}, cfg.Concurrency.Policy, source, sp, sp, ctrlOpts...)
		}
		if err != nil {
			return nil, fmt.Errorf("build %s controller: %w", p, err)
		}
		out = append(out, ctrl)
	}
	return out, nil
}

func retryTemplate(cfg config.RetryConfig) gateway.RetryPolicy {
	return gateway.RetryPolicy{
		MaxAttempts:          cfg.Policy.Min,
		FirstBackoff:         gateway.ISODuration(cfg.FirstBackoff),
		MaxBackoff:           gateway.ISODuration(cfg.MaxBackoff),
		Factor:               cfg.Factor,
		BasedOnPreviousValue: false,
		Statuses:             cfg.Statuses,
		Methods:              cfg.Methods,
	}
}

func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Cooldown, logger, channels...)
}

// healthEventAlert turns controller health events into alerts.
func healthEventAlert(alerter alert.Alerter, logger *slog.Logger) health.EventFunc {
	return func(ev health.Event, snap health.Snapshot) {
		a := alert.Alert{
			Parameter: snap.Parameter,
			Fields: map[string]string{
				"consecutive_failures": strconv.Itoa(snap.ConsecutiveFailures),
			},
		}
		switch ev {
		case health.EventUnhealthy:
			a.Type = alert.AlertTypeUnhealthy
			a.Title = "Controller unhealthy"
			a.Message = snap.LastError
		case health.EventRecovered:
			a.Type = alert.AlertTypeRecovery
			a.Title = "Controller recovered"
			a.Message = "ticks are succeeding again"
		case health.EventStartupFault:
			a.Type = alert.AlertTypeStartupFault
			a.Title = "Controller failed to initialize"
			a.Message = snap.LastError
		default:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), alertSendTimeout)
		defer cancel()
		if err := alerter.Send(ctx, a); err != nil {
			logger.Warn("health alert failed", "parameter", snap.Parameter, "event", ev, "error", err)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// maskCredentials hides the userinfo part of a connection URL for logging.
func maskCredentials(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	masked := u.String()
	prefix := u.Scheme + "://"
	return prefix + "***@" + masked[len(prefix):]
}
