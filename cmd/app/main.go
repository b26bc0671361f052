package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ReilBleem13/ChatSync/internal/chat"
	"github.com/ReilBleem13/ChatSync/internal/config"
	"github.com/ReilBleem13/ChatSync/internal/transport"
	"github.com/ReilBleem13/ChatSync/internal/utils"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Print("no .env file: ", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return
	}

	selfID, err := utils.SelfUserID(cfg.API.AccessToken)
	if err != nil {
		slog.Error("Failed to read user id from access token", "error", err)
		return
	}
	slog.Info("Session identity resolved", "user_id", selfID)

	api := transport.NewRestClient(cfg.API.BaseURL, cfg.API.AccessToken, cfg.API.Timeout, cfg.API.MaxRetries)

	var channel transport.Channel
	switch cfg.Push.Backend {
	case "redis":
		channel = transport.NewRedisChannel(cfg.Redis.Addr)
		slog.Info("Push backend: redis", "addr", cfg.Redis.Addr)
	default:
		channel = transport.NewWSChannel(cfg.Push.URL)
		slog.Info("Push backend: websocket", "url", cfg.Push.URL)
	}

	subs := chat.NewSubscriptionManager(channel, cfg.API.AccessToken, cfg.Push.ReconnectBackoff)
	presence := chat.NewPresenceTracker(api, cfg.Presence.RefreshInterval, cfg.Presence.StaleThreshold)

	facade := chat.NewFacade(api, subs, presence, chat.FacadeConfig{
		SelfID:         selfID,
		PageSize:       cfg.Chat.PageSize,
		TypingTTL:      cfg.Chat.TypingTTL,
		MaxContentSize: cfg.Chat.MaxContentSize,
		MaxFileSize:    cfg.Chat.MaxFileSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	facade.Run(ctx)

	if err := facade.RefreshRooms(ctx); err != nil {
		slog.Error("Failed to load room list", "error", err)
		return
	}
	slog.Info("Room list loaded", "rooms", len(facade.Rooms()))

	go func() {
		for range facade.Updates() {
			slog.Debug("State changed",
				"conn", facade.ConnState(),
				"online", len(facade.OnlineUsers()),
			)
		}
	}()

	// Periodic room-list reconciliation keeps the cache converging
	// even when pushed updates stop.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := facade.RefreshRooms(ctx); err != nil {
					slog.Warn("Room list refresh failed", "error", err)
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	cancel()
	slog.Info("Chat session closed")
}
