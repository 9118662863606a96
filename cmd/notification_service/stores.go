package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/aradsms/notification_service/internal/notification_service/repository/memory"
	"github.com/aradsms/notification_service/internal/notification_service/repository/postgres"
	"github.com/aradsms/notification_service/internal/notification_service/repository/sqlite"
	"github.com/aradsms/notification_service/internal/platform/config"
	"github.com/aradsms/notification_service/internal/platform/database"
)

type stores struct {
	messages domain.MessageLogStore
	events   domain.WebhookEventStore
	ping     func(ctx context.Context) error
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		logger.Info("Connected to PostgreSQL database")
		messages := postgres.NewPgMessageStore(pool)
		return &stores{
			messages: messages,
			events:   postgres.NewPgWebhookEventStore(pool),
			ping:     messages.Ping,
			close:    pool.Close,
		}, nil
	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migrate: %w", err)
		}
		logger.Info("Opened SQLite database", "path", cfg.SQLitePath)
		messages := sqlite.NewMessageStore(db)
		return &stores{
			messages: messages,
			events:   sqlite.NewWebhookEventStore(db),
			ping:     messages.Ping,
			close:    func() { db.Close() },
		}, nil
	default:
		logger.Warn("Using in-memory message log; records are lost on restart")
		messages := memory.NewMessageStore()
		return &stores{
			messages: messages,
			events:   memory.NewWebhookEventStore(),
			ping:     messages.Ping,
			close:    func() {},
		}, nil
	}
}
