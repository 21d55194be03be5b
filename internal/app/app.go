// Package app 根据配置组装 store / ledger / notifier / engine
package app

import (
	"context"
	"fmt"

	"dorm-engine/internal/config"
	"dorm-engine/internal/database"
	"dorm-engine/internal/ledger"
	"dorm-engine/internal/mqtt"
	"dorm-engine/internal/notify"
	rediscommon "dorm-engine/internal/redis"
	"dorm-engine/internal/repository"
	"dorm-engine/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// streamMaxLen Redis Stream 近似裁剪长度
const streamMaxLen = 10000

// App 运行时依赖
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    repository.Store
	Ledger   ledger.Ledger
	Notifier *notify.Notifier
	Engine   *service.Engine

	Redis *redis.Client
	MQTT  *mqtt.Client

	closers []func()
}

// New 按配置创建全部依赖；失败时已创建的资源会被释放
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	// 1. Store
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		pg := repository.NewPostgresStore(db, a.Logger)
		a.closers = append(a.closers, func() { _ = pg.Close() })
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		a.Store = pg
	default:
		a.Store = repository.NewMemoryStore()
	}

	// 2. Redis（ledger 或 stream 需要时才连接）
	if cfg.Ledger.Driver == "redis" || cfg.Notify.Stream != "" {
		client, err := rediscommon.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	// 3. Ledger
	var opts []ledger.Option
	if cfg.Ledger.MaxEntries > 0 {
		opts = append(opts, ledger.WithMaxEntries(cfg.Ledger.MaxEntries))
	}
	if cfg.Ledger.Driver == "redis" {
		a.Ledger = ledger.NewRedisLedger(a.Redis, cfg.Ledger.Key, a.Logger, opts...)
	} else {
		a.Ledger = ledger.NewMemoryLedger(opts...)
	}

	// 4. Publishers
	var publishers []notify.Publisher
	if cfg.Notify.Stream != "" {
		publishers = append(publishers, notify.NewStreamPublisher(a.Redis, cfg.Notify.Stream, streamMaxLen))
	}
	if cfg.Notify.MQTT.Enabled {
		client, err := mqtt.NewClient(&cfg.Notify.MQTT, a.Logger)
		if err != nil {
			return err
		}
		a.MQTT = client
		a.closers = append(a.closers, client.Disconnect)
		publishers = append(publishers, notify.NewMQTTPublisher(client, cfg.Notify.MQTT.Topic, cfg.Notify.MQTT.QoS))
	}
	if cfg.Notify.WebhookURL != "" {
		publishers = append(publishers, notify.NewWebhookPublisher(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout, a.Logger))
	}

	a.Notifier = notify.NewNotifier(a.Ledger, a.Logger, publishers...)
	a.Engine = service.NewEngine(a.Store, a.Notifier, a.Logger,
		service.WithDefaultMaxPasses(cfg.Residence.DefaultMaxPasses))

	names := make([]string, 0, len(publishers))
	for _, p := range publishers {
		names = append(names, p.Name())
	}
	a.Logger.Info("Engine initialized",
		zap.String("store", storeName(cfg)),
		zap.String("ledger", cfg.Ledger.Driver),
		zap.Strings("publishers", names),
	)
	return nil
}

func storeName(cfg *config.Config) string {
	if cfg.Store.Driver == "postgres" {
		return fmt.Sprintf("postgres://%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}
	return "memory"
}

// Close 逆序释放资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
