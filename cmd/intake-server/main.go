// cmd/intake-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"claims-intake/internal/common/airtable"
	"claims-intake/internal/common/aws"
	"claims-intake/internal/common/config"
	"claims-intake/internal/common/database"
	"claims-intake/internal/common/elevenlabs"
	"claims-intake/internal/common/geocode"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/common/observability"
	"claims-intake/internal/common/storage"
	"claims-intake/internal/common/workflow"
	"claims-intake/internal/conversation/archive"
	"claims-intake/internal/conversation/search"
	"claims-intake/internal/conversation/transcript"
	"claims-intake/internal/conversation/voice"
	"claims-intake/internal/intake/audit"
	"claims-intake/internal/intake/capture"
	"claims-intake/internal/intake/contact"
	"claims-intake/internal/intake/notify"
	"claims-intake/internal/intake/orchestrator"
	"claims-intake/internal/server"
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
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting intake server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("intake-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Redis with retry ---
	var redis *database.RedisClient
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

	// --- Init PostgreSQL audit store (optional) ---
	var auditStore *audit.Store
	if cfg.Database.Postgres.Host != "" {
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
		auditStore = audit.NewStore(pg.DB, log)
		zapLog.Info("PostgreSQL connected successfully")
	} else {
		zapLog.Info("PostgreSQL not configured, submission auditing disabled")
	}

	// --- Init Elasticsearch transcript indexer (optional) ---
	var indexer transcript.Indexer
	if cfg.Search.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		indexer = search.NewIndexer(esClient.Client, cfg.Search.Index, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init External Service Clients ---
	storageClient := storage.NewClient(
		cfg.Storage.BaseURL,
		cfg.Storage.Bucket,
		cfg.Storage.ServiceKey,
		cfg.Storage.CacheControl,
		config.GetDuration(cfg.Storage.Timeout),
	)

	workflowClient := workflow.NewClient(cfg.Workflow.WebhookURL, config.GetDuration(cfg.Workflow.Timeout))

	voiceClient := elevenlabs.NewClient(
		cfg.Voice.BaseURL,
		cfg.Voice.APIKey,
		cfg.Voice.AgentID,
		config.GetDuration(cfg.Voice.Timeout),
	)

	sheetClient := airtable.NewClient(
		"",
		cfg.Sheet.APIKey,
		cfg.Sheet.BaseID,
		cfg.Sheet.TableName,
		config.GetDuration(cfg.Sheet.Timeout),
	)

	var geocoder contact.Geocoder
	if cfg.Geocode.BaseURL != "" {
		geocoder = geocode.NewClient(cfg.Geocode.BaseURL, cfg.Geocode.UserAgent, config.GetDuration(cfg.Geocode.Timeout))
	}

	var notifier orchestrator.Notifier
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier = notify.NewService(log, sesClient, snsClient, cfg.Notifications)
	}

	zapLog.Info("All external service clients initialized")

	// --- Wire Services ---
	var archiver transcript.Archiver
	if cfg.Archive.Enabled {
		archiver = archive.NewWorkbook(cfg.Archive.Path, cfg.Archive.SheetName, log)
	}

	transcriptSvc := transcript.NewService(log, voiceClient, sheetClient, indexer, archiver, transcript.Options{
		Mode:            cfg.Sheet.Mode,
		ClaimField:      cfg.Sheet.ClaimField,
		TranscriptField: cfg.Sheet.TranscriptField,
	})

	// A finished conversation delivers its transcript in the background;
	// the session is already gone by then, so the timeout is independent.
	voiceMgr := voice.NewManager(log, config.GetDuration(cfg.Voice.InactivityTimeout), func(conversationID, claimID, reason string) {
		go func() {
			deliverCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if _, stdErr := transcriptSvc.Deliver(deliverCtx, conversationID, claimID); stdErr != nil {
				log.WithError(stdErr).WithFields(map[string]interface{}{
					"conversation_id": conversationID,
					"claim_id":        claimID,
				}).Error("Post-conversation transcript delivery failed", nil)
			}
		}()
	})

	sessionStore := orchestrator.NewSessionStore(redis.Client, config.GetDuration(cfg.Intake.SessionTTL))
	captureSvc := capture.NewService(log, storageClient, cfg.Intake.MaxUploadBytes)
	contactSvc := contact.NewService(log, geocoder)

	var auditRecorder orchestrator.AuditRecorder
	if auditStore != nil {
		auditRecorder = auditStore
	}

	intakeSvc := orchestrator.NewService(log, sessionStore, captureSvc, workflowClient, auditRecorder, notifier)

	handlers := server.NewHandlers(log, contactSvc, intakeSvc, voiceMgr, voiceClient, transcriptSvc, cfg.Intake.MaxUploadBytes)
	srv := server.New(cfg.Server, log, handlers, obs)

	// --- Serve until signalled ---
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		zapLog.Info("Shutting down...", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("graceful shutdown failed", zap.Error(err))
		}
	}

	zapLog.Info("Intake server stopped")
}
