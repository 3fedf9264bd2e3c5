// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hiring-notifications/internal/api"
	"hiring-notifications/internal/common/aws"
	"hiring-notifications/internal/common/camunda"
	"hiring-notifications/internal/common/config"
	"hiring-notifications/internal/common/database"
	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/common/observability"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/audit"
	"hiring-notifications/internal/notify/dispatcher"
	"hiring-notifications/internal/notify/queue"
	"hiring-notifications/internal/notify/selector"
	"hiring-notifications/internal/notify/status"
	"hiring-notifications/internal/notify/store"
	"hiring-notifications/internal/notify/transport"

	sn "hiring-notifications/internal/workers/application/send-notification"
	es "hiring-notifications/internal/workers/communication/email-send"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
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
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...", zap.String("version", cfg.App.Version))

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	var tracing *observability.Tracing
	if cfg.Tracing.JaegerEndpoint != "" {
		tracing, err = observability.NewTracing(cfg.App.Name, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			zapLog.Warn("tracing disabled", zap.Error(err))
		}
	}

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	records := store.NewPostgres(pg.DB, log)
	checks := map[string]api.Check{"postgres": pg.Ping}

	// --- Template caches ---
	var caches []selector.Cache
	var redis *database.RedisClient
	if cfg.Notifications.Cache.Enabled {
		caches = append(caches, selector.NewMemoryCache(config.GetDuration(cfg.Notifications.Cache.LocalTTL)))

		if cfg.Database.Redis.Address != "" {
			err = retryWithBackoff(func() error {
				var err error
				redis, err = database.NewRedis(cfg.Database.Redis)
				if err != nil {
					return err
				}
				return redis.Ping(ctx)
			}, 10, 2*time.Second, zapLog, "Redis connection")
			if err != nil {
				zapLog.Fatal("redis failed after retries", zap.Error(err))
			}
			defer redis.Close()
			zapLog.Info("Redis connected successfully")

			caches = append(caches, selector.NewRedisCache(redis.Client, config.GetDuration(cfg.Notifications.Cache.TemplateTTL)))
			checks["redis"] = redis.Ping
		}
	}

	templates := selector.New(records, log, caches...)

	// --- Template change listener ---
	listenCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	if len(caches) > 0 {
		listener := store.NewTemplateListener(cfg.Database.Postgres.GetDSN(), templates, log)
		go func() {
			if err := listener.Run(listenCtx); err != nil {
				zapLog.Error("Template listener stopped, caches expire by TTL only", zap.Error(err))
			}
		}()
	}

	// --- Outcome audit ---
	recorder := buildRecorder(ctx, cfg, zapLog)

	// --- Mail transport ---
	mailer, err := transport.New(ctx, cfg)
	if err != nil {
		zapLog.Fatal("mail transport init failed", zap.Error(err))
	}
	zapLog.Info("Mail transport configured", zap.String("transport", mailer.Name()))

	disp, err := dispatcher.New(dispatcher.Options{
		Applicants:    records,
		Templates:     templates,
		Aliases:       records,
		Transport:     mailer,
		Recorder:      recorder,
		Observability: obs,
		Logger:        log,
		Timeout:       config.GetDuration(cfg.Notifications.Dispatch.Timeout),
		TriggerPrefix: cfg.Notifications.Dispatch.TriggerPrefix,
	})
	if err != nil {
		zapLog.Fatal("dispatcher init failed", zap.Error(err))
	}

	dispatchQueue := queue.New(disp.Dispatch, queue.Config{
		Workers: cfg.Notifications.Dispatch.Workers,
		Size:    cfg.Notifications.Dispatch.QueueSize,
	}, func(req dispatcher.Request, n models.Notification) {
		zapLog.Error("status notification not delivered",
			zap.String("applicantId", req.ApplicantID),
			zap.String("orgId", req.OrgID),
			zap.String("status", req.Status),
			zap.String("outcome", n.Outcome),
			zap.String("reason", n.Reason),
		)
	}, log)

	statusService := status.NewService(records, dispatchQueue, cfg.Notifications.Dispatch.Statuses, log)

	// --- Workflow workers ---
	var zeebeClient *camunda.Client
	var workers []*camunda.Worker
	if cfg.Camunda.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = camunda.NewClientFromConfig(cfg.Camunda)
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		checks["zeebe"] = zeebeClient.HealthCheck
		statusService.WithPublisher(zeebeClient)

		if wcfg := config.GetWorkerConfig(cfg, sn.TaskType); wcfg.Enabled {
			handler, err := sn.NewHandler(sn.HandlerOptions{
				AppConfig:     cfg,
				Dispatcher:    disp,
				Observability: obs,
				Logger:        log,
			})
			if err != nil {
				zapLog.Fatal("failed to create send-notification handler", zap.Error(err))
			}
			workers = append(workers, camunda.StartWorker(zeebeClient.GetClient(), sn.TaskType, wcfg, handler.Handle, log))
		}

		if wcfg := config.GetWorkerConfig(cfg, es.TaskType); wcfg.Enabled {
			handler, err := es.NewHandler(es.HandlerOptions{
				AppConfig: cfg,
				Transport: mailer,
				Logger:    log,
			})
			if err != nil {
				zapLog.Fatal("failed to create email-send handler", zap.Error(err))
			}
			workers = append(workers, camunda.StartWorker(zeebeClient.GetClient(), es.TaskType, wcfg, handler.Handle, log))
		}
		zapLog.Info("Workers registered", zap.Int("count", len(workers)))
	} else {
		zapLog.Info("camunda.broker_address not set, workflow workers disabled")
	}

	// --- API, Health & Metrics Server ---
	server := &http.Server{
		Addr: cfg.HTTP.Address,
		Handler: api.NewRouter(api.Options{
			Status:         statusService,
			Previewer:      disp,
			Checks:         checks,
			Logger:         log,
			RequestTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
		}),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout) + time.Second,
	}
	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping API server", zap.Error(err))
	}
	stopListener()

	for _, w := range workers {
		w.Stop()
	}

	if err := dispatchQueue.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Dispatch queue did not drain", zap.Error(err), zap.Int("pending", dispatchQueue.Len()))
	}

	if zeebeClient != nil {
		if err := zeebeClient.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	if tracing != nil {
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error flushing traces", zap.Error(err))
		}
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// buildRecorder returns the configured outcome recorders. Audit sinks that fail to
// initialise are logged and left out.
func buildRecorder(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) dispatcher.Recorder {
	if !cfg.Notifications.Audit.Enabled {
		return audit.Nop{}
	}

	var recorders audit.Multi

	if len(cfg.Database.Elasticsearch.GetAddresses()) > 0 {
		var esClient *database.ElasticsearchClient
		err := retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Error("elasticsearch audit disabled", zap.Error(err))
		} else {
			recorders = append(recorders, audit.NewElasticsearchRecorder(esClient, cfg.Notifications.Audit.Index))
			zapLog.Info("Elasticsearch audit enabled", zap.String("index", cfg.Notifications.Audit.Index))
		}
	}

	if cfg.Notifications.Audit.SNSTopicARN != "" {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Error("sns audit disabled", zap.Error(err))
		} else {
			recorders = append(recorders, audit.NewSNSRecorder(snsClient, cfg.Notifications.Audit.SNSTopicARN))
			zapLog.Info("SNS audit enabled")
		}
	}

	if len(recorders) == 0 {
		return audit.Nop{}
	}
	return recorders
}
