package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/config"
	"github.com/dkomarov/curio/internal/images"
	"github.com/dkomarov/curio/internal/logging"
	"github.com/dkomarov/curio/internal/mirror"
	"github.com/dkomarov/curio/internal/store"
	syncpkg "github.com/dkomarov/curio/internal/sync"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.OpenWithFallback(ctx, cfg.DatabasePath, log)
	if err != nil {
		if !errors.Is(err, common.ErrStorageUnavailable) {
			log.Error(ctx, "failed to open store", "error", err)
			os.Exit(1)
		}
		log.Warn(ctx, "running on in-memory state", "error", err)
	}
	defer st.Close()

	profile, err := st.GetProfile(ctx)
	if err != nil {
		log.Error(ctx, "failed to load profile", "error", err)
		os.Exit(1)
	}

	var uploader images.Uploader
	if cfg.S3AccessKey != "" {
		uploader = images.NewS3Uploader(images.S3Config{
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
	}

	imageManager := images.NewManager(st, uploader, log)
	go imageManager.Watch(ctx)
	if uploader != nil {
		go func() {
			if err := imageManager.BackfillRemotes(ctx); err != nil {
				log.Warn(ctx, "image backfill failed", "error", err)
			}
		}()
	}

	syncCfg := syncpkg.DefaultConfig(profile.DeviceID)
	syncCfg.Enabled = cfg.SyncEnabled
	syncCfg.FlushInterval = cfg.FlushInterval
	syncCfg.PollInterval = cfg.PollInterval
	syncCfg.BackoffMin = cfg.BackoffMin

	coordinator := syncpkg.NewCoordinator(st, mirror.NewHTTPClient(cfg.MirrorEndpoint, nil), syncCfg, log)
	coordinator.Start(ctx)
	defer coordinator.Stop()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
}
