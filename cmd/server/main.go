// Package main runs the real-time tactical analytics server: stream
// control plane, frame ingest, analysis pipeline, and the WebSocket event
// plane, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitchsight/backend/config"
	"github.com/pitchsight/backend/internal/ingest"
	"github.com/pitchsight/backend/internal/middleware"
	"github.com/pitchsight/backend/internal/ml"
	"github.com/pitchsight/backend/internal/realtime"
	"github.com/pitchsight/backend/internal/replay"
	"github.com/pitchsight/backend/internal/stream"
	"github.com/pitchsight/backend/internal/streamlog"
	"github.com/pitchsight/backend/pkg/database"
	"github.com/pitchsight/backend/pkg/queue"
	"github.com/pitchsight/backend/pkg/redis"
	"github.com/pitchsight/backend/pkg/response"
	"github.com/pitchsight/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Optional collaborators degrade individually: the analysis core runs
	// with no database, no Redis, and no S3.
	var auditor stream.Auditor
	var sessionLogs *streamlog.Repository
	var clipRepo *replay.Repository
	if cfg.HasDatabase() {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		sessionLogs = streamlog.NewRepository(pool, logger)
		auditor = sessionLogs
		clipRepo = replay.NewRepository(pool)
	}

	var hubPub realtime.RedisPublisher
	var hubSub realtime.RedisSubscriber
	var jobQueue *queue.Queue
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, running single-instance without clip queue", zap.Error(err))
	} else {
		defer rdb.Close()
		redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
		hubPub, hubSub = redisPubSub, redisPubSub
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}

	var s3Client *storage.S3
	if cfg.AWS.AccessKeyID != "" || os.Getenv("AWS_ACCESS_KEY_ID") != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ClipsBucket:          cfg.AWS.ClipsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	var inferencer ml.Inferencer
	if cfg.ML.ServerURL != "" {
		inferencer = ml.NewHTTPClient(cfg.ML.ServerURL, cfg.ML.Timeout, logger)
		logger.Info("using inference server", zap.String("url", cfg.ML.ServerURL))
	} else {
		inferencer = &ml.Synthetic{}
		logger.Warn("ML_SERVER_URL not set, using synthetic inferencer")
	}
	inferencer = ml.NewLimited(inferencer, int64(cfg.ML.MaxConcurrent))

	hub := realtime.NewHub(logger, hubPub, hubSub)
	supervisor := stream.NewSupervisor(cfg.Stream, inferencer, hub, auditor, logger)
	adapter := ingest.NewAdapter(supervisor, logger)
	streamHandler := stream.NewHandler(supervisor, logger)

	supCtx, supCancel := context.WithCancel(context.Background())
	defer supCancel()
	go supervisor.Run(supCtx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Control plane
	router.POST("/streams", streamHandler.Start)
	router.GET("/streams", streamHandler.List)
	router.GET("/streams/:id", streamHandler.Get)
	router.DELETE("/streams/:id", streamHandler.Stop)
	router.GET("/stats", streamHandler.Stats)

	// Session history requires Postgres.
	if sessionLogs != nil {
		historyHandler := streamlog.NewHandler(sessionLogs, logger)
		router.GET("/streams/:id/sessions", historyHandler.ListByStream)
		router.GET("/sessions/:id", historyHandler.Get)
	}

	// Clip export requires Postgres and the Redis job queue.
	if clipRepo != nil && jobQueue != nil {
		exporter := replay.NewExporter(clipRepo, jobQueue, os.Getenv("CLIP_STAGE_DIR"), logger)
		clipHandler := replay.NewHandler(supervisor, exporter, clipRepo, s3Client, logger)
		router.POST("/streams/:id/clips", clipHandler.Export)
		router.GET("/streams/:id/clips", clipHandler.ListByStream)
		router.GET("/clips/:id", clipHandler.Get)
		router.GET("/clips/:id/download-url", clipHandler.DownloadURL)
	} else {
		logger.Info("clip export disabled")
	}

	// Event plane (subscribers) and ingest edge.
	router.GET("/ws", realtime.ServeWs(hub, logger))
	router.GET("/ingest", ingest.ServeWS(adapter, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port),
			zap.Int("max_streams", cfg.Stream.MaxConcurrentStreams))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	supCancel() // stops the sweep and all sessions
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
