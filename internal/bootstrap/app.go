package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"askpdf/internal/ai"
	"askpdf/internal/app"
	"askpdf/internal/chunker"
	"askpdf/internal/config"
	"askpdf/internal/lock"
	"askpdf/internal/model"
	mysqlClient "askpdf/internal/platform/mysql"
	rabbitmqClient "askpdf/internal/platform/rabbitmq"
	redisClient "askpdf/internal/platform/redis"
	"askpdf/internal/repository"
	"askpdf/internal/vectorindex"
	"askpdf/internal/worker"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	CleanupWorker *worker.IndexCleanupWorker

	Sessions *app.SessionService
	Ingest   *app.IngestService
	Query    *app.QueryService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := NewLogger(cfg.App.Env)

	a := &App{Config: cfg, Logger: logger}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.StartedAt = time.Now()
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.PoolConfig{
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.Session{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Redis, err = redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IndexCleanupQueue)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.RAG.IndexDir, 0o755); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}
	indexes := vectorindex.NewStore(cfg.RAG.IndexDir, cfg.RAG.IndexPrefix)

	splitter, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return err
	}

	generator, err := a.newGenerator(ctx)
	if err != nil {
		return err
	}
	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return err
	}

	sessionRepo := repository.NewSessionRepository(mysqlDB)
	locker := lock.NewRedisLocker(
		a.Redis,
		time.Duration(cfg.Redis.LockTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.LockWaitSeconds)*time.Second,
	)
	publisher := rabbitmqClient.NewCleanupPublisher(a.MQConn, cfg.RabbitMQ.IndexCleanupQueue)

	a.Sessions = app.NewSessionService(sessionRepo, indexes, locker, publisher, a.Logger)
	a.Ingest = app.NewIngestService(sessionRepo, indexes, embedder, locker, splitter, cfg.Embedding.BatchSize, a.Logger)
	a.Query = app.NewQueryService(sessionRepo, indexes, embedder, generator, cfg.RAG.TopK, a.Logger)

	a.CleanupWorker = worker.NewIndexCleanupWorker(a.MQConn, sessionRepo, indexes, cfg.RabbitMQ.IndexCleanupQueue, a.Logger)
	if err := a.CleanupWorker.Start(ctx); err != nil {
		return fmt.Errorf("start index cleanup worker failed: %w", err)
	}

	if _, err := a.Sessions.SweepOrphanIndexes(ctx); err != nil {
		a.Logger.Warn("orphan index sweep failed", "error", err)
	}

	a.Logger.Info("application initialized",
		"llm_provider", cfg.LLM.Provider,
		"embedding_provider", cfg.Embedding.Provider,
		"embedding_model", embedder.Model(),
		"index_dir", cfg.RAG.IndexDir,
	)
	return nil
}

func (a *App) newGenerator(ctx context.Context) (app.Generator, error) {
	cfg := a.Config.LLM
	if cfg.Provider == "openai" {
		return ai.NewOpenAIGenerator(ai.NewOpenAICompatibleClient(), ai.ChatConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}), nil
	}

	client, err := ai.NewGeminiClient(ctx, ai.GeminiConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, err
	}
	selected, err := client.SelectModel(ctx, cfg.PreferredModels, cfg.Model)
	if err != nil {
		a.Logger.Warn("list gemini models failed, using fallback", "model", selected, "error", err)
	} else {
		a.Logger.Info("gemini model selected", "model", selected)
	}
	return client, nil
}

func (a *App) newEmbedder(ctx context.Context) (app.Embedder, error) {
	cfg := a.Config.Embedding
	if cfg.Provider == "openai" {
		return ai.NewOpenAIEmbedder(ai.NewOpenAICompatibleClient(), ai.EmbeddingConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}), nil
	}

	client, err := ai.NewGeminiClient(ctx, ai.GeminiConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		EmbeddingModel: cfg.Model,
	})
	if err != nil {
		return nil, err
	}
	return ai.NewGeminiEmbedder(client), nil
}

func (a *App) PingMySQL(ctx context.Context) error {
	return mysqlClient.Ping(ctx, a.MySQL)
}

func (a *App) CheckRabbitMQ(context.Context) error {
	if a.MQConn == nil || a.MQConn.IsClosed() {
		return errors.New("connection closed")
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.CleanupWorker != nil {
		a.CleanupWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MySQL != nil {
		if err := mysqlClient.Close(a.MySQL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
