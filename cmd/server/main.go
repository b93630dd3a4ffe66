// Command loandocs-server starts the loan document HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/loandocs/internal/access"
	"github.com/and161185/loandocs/internal/config"
	"github.com/and161185/loandocs/internal/limiter"
	"github.com/and161185/loandocs/internal/linkcode"
	"github.com/and161185/loandocs/internal/metrics"
	"github.com/and161185/loandocs/internal/migrate"
	"github.com/and161185/loandocs/internal/repository/postgres"
	"github.com/and161185/loandocs/internal/server/httpapi"
	"github.com/and161185/loandocs/internal/service"
	"github.com/and161185/loandocs/internal/storage"
	"github.com/and161185/loandocs/internal/storage/local"
	"github.com/and161185/loandocs/internal/storage/s3"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const qrSize = 256

// main loads configuration, runs migrations, and serves HTTP until signalled.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Flags override the environment
	addr := flag.String("addr", cfg.HTTPAddr, "HTTP listen address")
	dev := flag.Bool("dev", cfg.Dev(), "development logging")
	flag.Parse()
	cfg.HTTPAddr = *addr
	if *dev {
		cfg.AppEnv = "dev"
	}

	var logger *zap.Logger
	if cfg.Dev() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
	)
	logger.Debug("config", zap.Stringer("cfg", cfg))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ver, err := migrate.Up(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	orderRepo := postgres.NewOrderRepo(db)
	materialRepo := postgres.NewMaterialRepo(db)
	artifactRepo := postgres.NewArtifactRepo(db)
	tokenRepo := postgres.NewTokenRepo(db)

	blobs, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}

	var lim limiter.Limiter = limiter.Noop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		lim = limiter.NewRedis(rdb, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
	} else {
		logger.Warn("REDIS_ADDR not set, login rate limiting disabled")
	}

	m := metrics.New()
	guard := access.NewGuard(nil, m)

	// Services
	authSvc := service.NewAuthService(userRepo, []byte(cfg.JWTSecret), cfg.AccessTTL, lim, guard)
	orderSvc := service.NewOrderService(orderRepo, blobs, guard, logger.Named("orders"), cfg.OrderPageMax)
	materialSvc := service.NewMaterialService(materialRepo, guard)
	artifactSvc := service.NewArtifactService(artifactRepo, orderRepo, materialRepo, blobs, guard,
		service.UploadPolicy{MaxBytes: cfg.MaxUploadBytes, Extensions: cfg.Extensions()}, m, logger.Named("artifacts"))
	collabSvc := service.NewCollabService(tokenRepo, orderRepo, guard, cfg.CollabTTL, cfg.FrontendURL,
		linkcode.New(qrSize), m, logger.Named("collab"))

	api := httpapi.New(httpapi.Deps{
		Auth:           authSvc,
		Orders:         orderSvc,
		Materials:      materialSvc,
		Artifacts:      artifactSvc,
		Collab:         collabSvc,
		Ready:          db.Ping,
		Metrics:        m.Handler(),
		Observer:       m,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Health probe for orchestrators
	hsrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(hsrv, hs)
	hlis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		logger.Fatal("health listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("health listening", zap.String("addr", cfg.HealthAddr))
		errCh <- hsrv.Serve(hlis)
	}()
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		done := make(chan struct{})
		go func() {
			hsrv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			hsrv.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.StorageDriver == config.StorageS3 {
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		})
	}
	return local.New(cfg.UploadDir)
}
