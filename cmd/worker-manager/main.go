// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"photobrief-workers/internal/common/camunda"
	"photobrief-workers/internal/common/config"
	"photobrief-workers/internal/common/database"
	"photobrief-workers/internal/common/logger"
	"photobrief-workers/internal/common/observability"
	"photobrief-workers/internal/common/progress"
	"photobrief-workers/internal/common/telemetry"

	"photobrief-workers/internal/brief/composer"
	"photobrief-workers/internal/brief/defaults"
	"photobrief-workers/internal/brief/enhancement"
	"photobrief-workers/internal/brief/extraction"
	"photobrief-workers/internal/brief/orchestrator"
	"photobrief-workers/internal/brief/rules"

	// Brief Pipeline Workers (5)
	cbr "photobrief-workers/internal/workers/brief/create-brief-record"
	ebf "photobrief-workers/internal/workers/brief/extract-brief-fields"
	gb "photobrief-workers/internal/workers/brief/generate-brief"
	pb "photobrief-workers/internal/workers/brief/preview-brief"
	sba "photobrief-workers/internal/workers/brief/send-brief-alert"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console", "")

	zapLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	// Swap in the configured logger now that settings are loaded.
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Load brief assets ---
	rulesEngine, err := rules.Load(cfg.Brief.ValidationRulesPath)
	if err != nil {
		zapLog.Fatal("validation rules load failed",
			zap.String("path", cfg.Brief.ValidationRulesPath), zap.Error(err))
	}

	structure, err := composer.LoadStructure(cfg.Brief.TemplatePath)
	if err != nil {
		zapLog.Fatal("prompt template load failed",
			zap.String("path", cfg.Brief.TemplatePath), zap.Error(err))
	}

	defaultsTable, err := defaults.Load(cfg.Brief.DefaultsPath)
	if err != nil {
		zapLog.Fatal("defaults table load failed",
			zap.String("path", cfg.Brief.DefaultsPath), zap.Error(err))
	}
	zapLog.Info("Brief assets loaded",
		zap.String("rulesPath", cfg.Brief.ValidationRulesPath),
		zap.String("templatePath", cfg.Brief.TemplatePath),
		zap.String("defaultsPath", cfg.Brief.DefaultsPath),
	)

	// --- Init GenAI clients ---
	genaiTimeout := config.GetDuration(cfg.APIs.GenAI.Timeout)

	extractor := extraction.NewClient(&extraction.Config{
		BaseURL:     cfg.APIs.GenAI.BaseURL,
		APIKey:      cfg.APIs.GenAI.APIKey,
		MaxTokens:   cfg.Brief.Extraction.MaxTokens,
		Temperature: cfg.Brief.Extraction.Temperature,
		Timeout:     genaiTimeout,
	}, &extractionLoggerAdapter{log})

	enhancer := enhancement.NewClient(&enhancement.Config{
		BaseURL:     cfg.APIs.GenAI.BaseURL,
		APIKey:      cfg.APIs.GenAI.APIKey,
		MaxRetries:  cfg.Brief.Enhancement.MaxRetries,
		MaxTokens:   cfg.Brief.Enhancement.MaxTokens,
		Temperature: cfg.Brief.Enhancement.Temperature,
		Timeout:     genaiTimeout,
	}, &enhancementLoggerAdapter{log})

	// --- Init progress tracking and telemetry ---
	var progressSink progress.Sink = progress.Nop{}
	if cfg.Progress.Enabled {
		ttl := config.GetDuration(cfg.Progress.TTL)
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		progressSink = progress.NewTracker(redis.GetClient(), ttl, log)
		zapLog.Info("Progress tracking enabled", zap.Duration("ttl", ttl))
	}

	var recorder telemetry.Recorder = telemetry.Nop{}
	if cfg.Telemetry.Enabled {
		recorder = telemetry.NewIndexer(esClient.Client, cfg.Telemetry.IndexPrefix, log)
		zapLog.Info("Pipeline telemetry enabled", zap.String("indexPrefix", cfg.Telemetry.IndexPrefix))
	}

	// --- Build the brief orchestrator ---
	orch, err := orchestrator.New(orchestrator.Options{
		Extractor:   extractor,
		Enhancer:    enhancer,
		Rules:       rulesEngine,
		Structure:   structure,
		Defaults:    defaultsTable,
		MaxAttempts: cfg.Brief.Extraction.MaxAttempts,
		MinWords:    cfg.Brief.Quality.MinWords,
		MinSections: cfg.Brief.Quality.MinSections,
		Progress:    progressSink,
		Telemetry:   recorder,
		Logger:      &orchestratorLoggerAdapter{log},
	})
	if err != nil {
		zapLog.Fatal("orchestrator construction failed", zap.Error(err))
	}

	// --- Register Brief Pipeline Workers ---
	var workers []*camunda.CamundaWorker
	addWorker := func(w *camunda.CamundaWorker) {
		if w != nil {
			workers = append(workers, w)
			obs.WorkerStarted(context.Background(), w.TaskType())
		}
	}

	zc := zeebeClient.GetClient()

	// Extract Brief Fields
	{
		wcfg := config.GetWorkerConfig(cfg, ebf.TaskType)
		workerCfg := ebf.LoadConfig()
		if wcfg.Timeout > 0 {
			workerCfg.Timeout = config.GetDuration(wcfg.Timeout)
		}
		handler := ebf.NewHandler(workerCfg, orch, log)
		addWorker(camunda.NewWorker(zc, ebf.TaskType, wcfg, handler.Handle, zapLog))
	}

	// Generate Brief
	{
		wcfg := config.GetWorkerConfig(cfg, gb.TaskType)
		workerCfg := gb.LoadConfig()
		if wcfg.Timeout > 0 {
			workerCfg.Timeout = config.GetDuration(wcfg.Timeout)
		}
		handler := gb.NewHandler(workerCfg, orch, log)
		addWorker(camunda.NewWorker(zc, gb.TaskType, wcfg, handler.Handle, zapLog))
	}

	// Preview Brief
	{
		wcfg := config.GetWorkerConfig(cfg, pb.TaskType)
		workerCfg := pb.LoadConfig()
		workerCfg.AppVersion = cfg.App.Version
		if wcfg.Timeout > 0 {
			workerCfg.Timeout = config.GetDuration(wcfg.Timeout)
		}
		handler := pb.NewHandler(workerCfg, orch, log)
		addWorker(camunda.NewWorker(zc, pb.TaskType, wcfg, handler.Handle, zapLog))
	}

	// Create Brief Record
	{
		wcfg := config.GetWorkerConfig(cfg, cbr.TaskType)
		workerCfg := cbr.LoadConfig()
		if wcfg.Timeout > 0 {
			workerCfg.Timeout = config.GetDuration(wcfg.Timeout)
		}
		handler := cbr.NewHandler(workerCfg, pg.DB, log)
		addWorker(camunda.NewWorker(zc, cbr.TaskType, wcfg, handler.Handle, zapLog))
	}

	// Send Brief Alert
	{
		wcfg := config.GetWorkerConfig(cfg, sba.TaskType)
		workerCfg := sba.LoadConfig()
		if wcfg.Timeout > 0 {
			workerCfg.Timeout = config.GetDuration(wcfg.Timeout)
		}
		workerCfg.EmailEnabled = cfg.Alerts.Email.Enabled
		workerCfg.FromEmail = cfg.Alerts.Email.FromEmail
		workerCfg.OpsEmail = cfg.Alerts.Email.OpsEmail
		workerCfg.SNSEnabled = cfg.Alerts.SNS.Enabled
		workerCfg.TopicARN = cfg.Alerts.SNS.TopicARN
		workerCfg.AWSRegion = cfg.Alerts.AWS.Region
		if wcfg.Enabled {
			handler, err := sba.NewHandler(workerCfg, log)
			if err != nil {
				zapLog.Fatal("failed to create send-brief-alert handler", zap.Error(err))
			}
			addWorker(camunda.NewWorker(zc, sba.TaskType, wcfg, handler.Handle, zapLog))
		} else {
			zapLog.Info("worker disabled", zap.String("taskType", sba.TaskType))
		}
	}

	zapLog.Info("All brief workers registered successfully", zap.Int("workers", len(workers)))

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
			if err := zeebeClient.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range workers {
		w.Stop()
		obs.WorkerStopped(context.Background(), w.TaskType())
	}

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// Logger adapters for brief packages that declare their own Logger interfaces
type extractionLoggerAdapter struct {
	logger.Logger
}

func (a *extractionLoggerAdapter) With(fields map[string]interface{}) extraction.Logger {
	return &extractionLoggerAdapter{a.Logger.With(fields)}
}

type enhancementLoggerAdapter struct {
	logger.Logger
}

func (a *enhancementLoggerAdapter) With(fields map[string]interface{}) enhancement.Logger {
	return &enhancementLoggerAdapter{a.Logger.With(fields)}
}

type orchestratorLoggerAdapter struct {
	logger.Logger
}

func (a *orchestratorLoggerAdapter) With(fields map[string]interface{}) orchestrator.Logger {
	return &orchestratorLoggerAdapter{a.Logger.With(fields)}
}
