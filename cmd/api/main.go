package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/auth"
	"github.com/endesomnia/cloud-sub000/internal/bucket"
	"github.com/endesomnia/cloud-sub000/internal/config"
	"github.com/endesomnia/cloud-sub000/internal/events"
	"github.com/endesomnia/cloud-sub000/internal/file"
	"github.com/endesomnia/cloud-sub000/internal/gateway"
	"github.com/endesomnia/cloud-sub000/internal/logger"
	"github.com/endesomnia/cloud-sub000/internal/naming"
	"github.com/endesomnia/cloud-sub000/internal/overlay"
	"github.com/endesomnia/cloud-sub000/internal/presigned"
	"github.com/endesomnia/cloud-sub000/internal/server"
	"github.com/endesomnia/cloud-sub000/internal/storage"
	"github.com/endesomnia/cloud-sub000/internal/transfer"
	"github.com/endesomnia/cloud-sub000/internal/usage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	zl, err := logger.Init()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	if err := storage.EnsureSchema(ctx, dbPool); err != nil {
		zl.Fatal("ensure schema", zap.Error(err))
	}

	minioClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		zl.Fatal("connect minio", zap.Error(err))
	}

	gw := gateway.New(gateway.NewMinIOClient(minioClient), cfg.MinIO.Region, cfg.MinIO.OpTimeout, zl.Named("gateway"))
	codec := naming.NewCodec(cfg.Naming.Delimiter, cfg.Naming.ScopeBucket, cfg.Naming.ScopeKeys)
	bus := events.NewBus(zl.Named("events"))

	authService := auth.NewService(auth.NewRepository(dbPool), cfg.Auth)
	accountant := usage.NewAccountant(usage.NewRepository(dbPool), cfg.Usage, zl.Named("usage"))

	overlayRepo := overlay.NewRepository(dbPool)
	overlayService := overlay.NewService(overlayRepo)
	if cfg.Overlay.Reconcile {
		bus.Subscribe(overlay.NewReconciler(overlayRepo, zl.Named("overlay")))
	}

	transferOpts := transfer.Options{
		DeleteTimeout: cfg.Transfer.DeleteTimeout,
		Events:        bus,
		Logger:        zl.Named("transfer"),
	}
	if cfg.Transfer.KeyLocking {
		transferOpts.Locks = transfer.NewLockArena()
	}
	coordinator := transfer.NewCoordinator(gw, transferOpts)

	bucketService := bucket.NewService(gw, codec, accountant, bus, zl.Named("bucket"))
	fileService := file.NewService(file.Options{
		Gateway:     gw,
		Mover:       coordinator,
		Codec:       codec,
		Usage:       accountant,
		Events:      bus,
		MaxFileSize: cfg.Server.MaxUploadSize,
		Logger:      zl.Named("file"),
	})
	shareLinks := presigned.NewService(overlayService, gw, cfg.Presign)

	var limiter *server.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = server.NewRateLimiter(cfg.RateLimit)
		go limiter.Run(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Dependencies{
		Config:         cfg,
		DB:             dbPool,
		ObjectStore:    gw,
		Codec:          codec,
		RateLimiter:    limiter,
		AuthService:    authService,
		BucketService:  bucketService,
		FileService:    fileService,
		OverlayService: overlayService,
		UsageService:   accountant,
		ShareLinks:     shareLinks,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zl.Info("cloud API listening",
			zap.String("addr", cfg.Server.Address()),
			zap.Bool("overlay_reconcile", cfg.Overlay.Reconcile),
			zap.Bool("key_locking", cfg.Transfer.KeyLocking),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zl.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}
