// Package app wires stores, locks and services from configuration. It is
// shared by the HTTP server and the cascade worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/auth"
	"ms-registration/internal/config"
	"ms-registration/internal/dashboard"
	"ms-registration/internal/database"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/event"
	eventdb "ms-registration/internal/event/db"
	"ms-registration/internal/kafka"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/checkin"
	regdb "ms-registration/internal/registration/db"
	"ms-registration/internal/sse"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

type App struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            *bun.DB
	Redis         *redis.Client
	Locks         lock.Locker
	Producer      *kafka.Producer
	Emitter       *sse.RegistrationEventEmitter
	Registrations *registration.RegistrationService
	Events        *event.EventService
	Dashboard     *dashboard.Service
}

// New connects to every configured backend. Postgres schemas are migrated
// to the latest version before returning.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if cfg.Database.Driver == "postgres" {
		runner := migrations.NewRunner(db, log)
		if err := runner.MigrateUp(); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if cfg.Redis.Addr != "" {
		client, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.Locks = lock.NewRedisLocker(client, log, cfg.Lock.TTL, cfg.Lock.Wait, cfg.Lock.PollInterval)
		log.Info("LOCK", fmt.Sprintf("Using Redis admission lock at %s", cfg.Redis.Addr))
	} else {
		a.Locks = lock.NewLocal()
		log.Warn("LOCK", "REDIS_ADDR not set, using in-process admission lock (single instance only)")
	}

	codec, err := checkin.NewQRGenerator(cfg.Checkin.SecretKey, cfg.Checkin.QRSize)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("check-in codec: %w", err)
	}

	evDB := &eventdb.DB{Bun: db}
	rDB := &regdb.DB{Bun: db}

	a.Emitter = sse.NewRegistrationEventEmitter()
	a.Registrations = registration.NewRegistrationService(rDB, evDB, a.Locks, log)
	a.Registrations.Checkin = codec
	a.Registrations.Stream = a.Emitter
	a.Events = event.NewEventService(evDB, a.Registrations, a.Registrations.Ledger, a.Locks, log)
	a.Dashboard = dashboard.NewService(rDB, evDB, a.Registrations.Ledger)

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, kafka.AllTopics(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		a.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		a.Registrations.Kafka = a.Producer
		a.Events.Kafka = a.Producer
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))
	} else {
		log.Warn("KAFKA", "KAFKA_ENABLED=false, lifecycle messages will not be published")
	}

	return a, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection to %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Verifier builds the token verifier for the configured auth mode. With
// Redis available, verified tokens are cached.
func (a *App) Verifier(ctx context.Context) (auth.TokenVerifier, error) {
	var v auth.TokenVerifier
	switch a.Config.Auth.Mode {
	case "oidc":
		oidcV, err := auth.NewOIDCVerifier(ctx, a.Config.Auth.OIDCIssuer, a.Config.Auth.ClientID)
		if err != nil {
			return nil, err
		}
		v = oidcV
	case "hmac":
		v = auth.NewHMACVerifier(a.Config.Auth.JWTSecret)
	case "none":
		a.Logger.Warn("AUTH", "AUTH_MODE=none, bearer tokens are trusted as user IDs")
		return auth.HeaderVerifier{}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", a.Config.Auth.Mode)
	}

	if a.Redis != nil {
		return auth.NewCachingVerifier(v, a.Redis, a.Logger), nil
	}
	return v, nil
}

// Ping checks the database and, when configured, Redis.
func (a *App) Ping(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.Producer != nil {
		errs = append(errs, a.Producer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
