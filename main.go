package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do"

	"shopassist/app/api"
	"shopassist/app/client/catalog"
	"shopassist/app/client/cdp"
	"shopassist/app/client/events"
	"shopassist/app/config"
	"shopassist/app/service/assistant"
	"shopassist/app/service/conversation"
	"shopassist/app/util/mylog"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer slog.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Config load failed", "error", err)
		os.Exit(1)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		slog.Error("Logging init failed", "error", err)
		os.Exit(1)
	}

	do.Provide(di, catalog.New)
	do.Provide(di, cdp.New)
	do.Provide(di, events.New)
	do.Provide(di, assistant.New)
	do.Provide(di, conversation.New)
	do.Provide(di, api.New)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("Shutting down...")

		cancel()
	}()

	server, err := do.Invoke[*api.Server](di)
	if err != nil {
		slog.Error("Service init failed", "error", err)
		return
	}

	go do.MustInvoke[*conversation.Service](di).RunCleanupLoop(appCtx)

	slog.Info("Service started", "profile", cfg.Engine.Profile, "model", cfg.OpenAI.Model)

	if err = server.Run(appCtx); err != nil {
		slog.Error("HTTP server failed", "error", err)
	}
}
