package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ragworkbench/internal/app"
	"ragworkbench/internal/cache"
	"ragworkbench/internal/config"
	"ragworkbench/internal/ingest"
	mysqlClient "ragworkbench/internal/platform/mysql"
	rabbitmqClient "ragworkbench/internal/platform/rabbitmq"
	redisClient "ragworkbench/internal/platform/redis"
	"ragworkbench/internal/repository"
	"ragworkbench/internal/session"
	"ragworkbench/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	MySQL      *gorm.DB
	Redis      *redis.Client
	MQConn     *amqp.Connection
	TurnWorker *worker.TurnPersistWorker

	Asker    session.Asker
	History  *app.HistoryService
	Registry *app.Registry

	StartedAt time.Time
}

// New wires the workbench. Persistence (MySQL, Redis, RabbitMQ and the turn
// worker) is only connected when persistence.enabled is set.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}

	asker, err := app.NewAsker(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build asker failed: %w", err)
	}
	a.Asker = asker

	if cfg.Persistence.Enabled {
		if err := a.connectPersistence(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	} else {
		a.History = app.NewHistoryService(nil, nil, nil, logger)
	}

	a.Registry = app.NewRegistry(cfg.WorkbenchIdleTTL(), a.newWorkbench, logger)
	logger.Info("workbench ready",
		zap.String("ingest_base_url", cfg.Ingest.BaseURL),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("persistence", cfg.Persistence.Enabled))
	return a, nil
}

func (a *App) connectPersistence(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.DefaultPoolOptions(), !cfg.IsProduction())
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	turnRepo := repository.NewTurnRepository(mysqlDB)
	if err := turnRepo.Migrate(); err != nil {
		return err
	}

	redisCli, err := redisClient.New(ctx, cfg.Persistence.Redis.Addr, cfg.Persistence.Redis.Password, cfg.Persistence.Redis.DB)
	if err != nil {
		return err
	}
	a.Redis = redisCli
	historyCache := cache.NewHistoryCache(redisCli,
		time.Duration(cfg.Persistence.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Persistence.Redis.HistoryDirtyTTLSeconds)*time.Second)

	mqConn, err := rabbitmqClient.New(ctx, cfg.Persistence.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	queue := cfg.Persistence.RabbitMQ.TurnPersistQueue
	a.TurnWorker = worker.NewTurnPersistWorker(mqConn, turnRepo, queue, a.Logger)
	if err := a.TurnWorker.Start(ctx); err != nil {
		return fmt.Errorf("start turn worker failed: %w", err)
	}

	a.History = app.NewHistoryService(rabbitmqClient.NewTurnPublisher(mqConn, queue), turnRepo, historyCache, a.Logger)
	return nil
}

func (a *App) newWorkbench(userID string) *app.Workbench {
	opts := app.WorkbenchOptions{
		PollInterval:    a.Config.PollInterval(),
		RequireIngested: a.Config.Workbench.RequireIngested,
		Logger:          a.Logger,
	}
	if a.History.Enabled() {
		opts.Recorder = a.History.RecorderFor(userID)
	}
	backend := ingest.NewClient(a.Config.Ingest.BaseURL, userID, a.Config.UploadTimeout())
	return app.NewWorkbench(userID, backend, a.Asker, opts)
}

func (a *App) PersistenceEnabled() bool {
	return a.MySQL != nil && a.Redis != nil && a.MQConn != nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Registry != nil {
		a.Registry.Close()
	}
	if a.TurnWorker != nil {
		a.TurnWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	_ = a.Logger.Sync()
	return closeErr
}
