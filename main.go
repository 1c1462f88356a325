package main

import (
	"context"
	"familycoach/app/client/directory"
	"familycoach/app/client/llm"
	"familycoach/app/config"
	"familycoach/app/service/api"
	"familycoach/app/service/coach"
	"familycoach/app/service/digest"
	"familycoach/app/service/safety"
	"familycoach/app/service/session"
	"familycoach/app/service/tools"
	"familycoach/app/util/metrics"
	"familycoach/app/util/mylog"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, metrics.New)
	do.Provide(di, llm.New)
	do.Provide(di, directory.New)
	do.Provide(di, tools.New)
	do.Provide(di, safety.New)
	do.Provide(di, session.New)
	do.Provide(di, digest.New)
	do.Provide(di, coach.New)
	do.Provide(di, coach.NewServiceDI)
	do.Provide(di, api.New)

	server, err := do.Invoke[*api.Server](di)
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}

	slog.Info("Service started",
		"model_backend", cfg.Model.Backend,
		"directory_backend", cfg.Tools.Directory.Backend,
		"storage_backend", cfg.Storage.Backend,
	)

	group, groupCtx := errgroup.WithContext(appCtx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Shutting down...")
		return nil
	})

	if err = group.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}
}
