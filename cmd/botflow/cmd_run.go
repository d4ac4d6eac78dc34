package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openbotkit/botflow/pkg/bus"
	"github.com/openbotkit/botflow/pkg/channels"
	"github.com/openbotkit/botflow/pkg/config"
	"github.com/openbotkit/botflow/pkg/dispatch"
	"github.com/openbotkit/botflow/pkg/engine"
	"github.com/openbotkit/botflow/pkg/graph"
	"github.com/openbotkit/botflow/pkg/logger"
	"github.com/openbotkit/botflow/pkg/nlu"
	"github.com/openbotkit/botflow/pkg/render"
	"github.com/openbotkit/botflow/pkg/session"
	"github.com/openbotkit/botflow/pkg/store"
)

func runCmd() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(cfg.LogLevel)
	if cfg.LogJSON {
		logger.UseJSON()
	}

	g, botName, err := graph.LoadFile(cfg.BotModelPath)
	if err != nil {
		fmt.Printf("Error loading bot model %s: %v\n", cfg.BotModelPath, err)
		os.Exit(1)
	}
	logger.InfoCF("main", "Bot model loaded", map[string]interface{}{
		"bot":   botName,
		"nodes": g.Len(),
		"path":  cfg.BotModelPath,
	})

	var entityStore store.EntityStore
	if cfg.RedisEnabled {
		rs, err := store.NewRedisStore(cfg.Redis)
		if err != nil {
			fmt.Printf("Error connecting to redis: %v\n", err)
			os.Exit(1)
		}
		entityStore = rs
		logger.InfoC("main", "Using Redis entity store")
	} else {
		entityStore = store.NewMemoryStore()
		logger.InfoC("main", "Using in-memory entity store")
	}

	var dispatcher dispatch.Dispatcher = dispatch.Nop{}
	if cfg.ActionWebhookURL != "" {
		dispatcher = dispatch.NewWebhook(cfg.ActionWebhookURL)
		logger.InfoCF("main", "Function dispatch enabled", map[string]interface{}{
			"webhook": cfg.ActionWebhookURL,
		})
	}

	broker := bus.NewMessageBus()
	eng := engine.New(engine.Options{
		Graph:      g,
		Sessions:   session.NewManager(botName),
		Resolver:   nlu.NewRasaResolver(cfg.NLUServers),
		Store:      entityStore,
		Renderer:   render.New(entityStore, botName),
		Dispatcher: dispatcher,
		Broker:     broker,
		BotName:    botName,
	})
	loop := engine.NewLoop(eng, broker)

	manager := channels.NewManager(broker)
	if cfg.Channels.Telegram.Enabled {
		ch, err := channels.NewTelegramChannel(cfg.Channels.Telegram, broker)
		if err != nil {
			fmt.Printf("Error creating telegram channel: %v\n", err)
			os.Exit(1)
		}
		manager.Register(ch)
	}
	if cfg.Channels.Slack.Enabled {
		ch, err := channels.NewSlackChannel(cfg.Channels.Slack, broker)
		if err != nil {
			fmt.Printf("Error creating slack channel: %v\n", err)
			os.Exit(1)
		}
		manager.Register(ch)
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := channels.NewDiscordChannel(cfg.Channels.Discord, broker)
		if err != nil {
			fmt.Printf("Error creating discord channel: %v\n", err)
			os.Exit(1)
		}
		manager.Register(ch)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
		os.Exit(1)
	}

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("main", "Engine loop stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	logger.InfoCF("main", "botflow running", map[string]interface{}{
		"bot": botName,
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.StopAll(shutdownCtx)
	broker.Close()
}
