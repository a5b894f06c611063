package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sehyun-p/clubsync/internal/app"
	"github.com/sehyun-p/clubsync/internal/config"
	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/health"
	"github.com/sehyun-p/clubsync/internal/http/handler"
	"github.com/sehyun-p/clubsync/internal/http/middleware"
	"github.com/sehyun-p/clubsync/internal/http/router"
	"github.com/sehyun-p/clubsync/internal/observability"
	"github.com/sehyun-p/clubsync/internal/repository"
	"github.com/sehyun-p/clubsync/internal/security"
	"github.com/sehyun-p/clubsync/internal/service"
	"github.com/sehyun-p/clubsync/internal/tools/common"
)

const (
	apiRateLimitRPM  = 300
	authRateLimitRPM = 20
	scanRateLimitRPM = 120

	idempotencyTTL = 24 * time.Hour
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clubsync",
		Short: "Attendance check-in and finalization backend for student organizations",
	}
	cmd.AddCommand(newServeCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "optional env file loaded before configuration")
	return cmd
}

func runServe(ctx context.Context, envFile string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := common.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return err
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runtime.LoggerProvider = loggerProvider

	application, err := buildApp(ctx, cfg, logger, runtime)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = runtime.Shutdown(shutdownCtx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.ServerAddr, "profile", cfg.Profile)
		if err := application.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return application.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*app.App, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&domain.Member{}, &domain.Session{}, &domain.AttendanceRecord{},
		&domain.ExcuseReport{}, &domain.Notice{}, &domain.PointLog{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at boot, continuing", "error", err)
	}

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)

	members := repository.NewMemberRepository(db)
	sessions := repository.NewSessionRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	excuses := repository.NewExcuseRepository(db)
	notices := repository.NewNoticeRepository(db)
	points := repository.NewPointRepository(db)

	pointSvc := service.NewPointService(points)
	memberSvc := service.NewMemberService(members, jwtMgr, cfg.JWTAccessTTL)
	finalizer := service.NewAttendanceFinalizer(sessions, members, attendance, excuses, pointSvc, nil).
		WithTimings(cfg.FinalizeLateWindow, cfg.FinalizeSafetyOffset)
	scheduler := service.NewFinalizeScheduler(finalizer, sessions, nil)
	if err := scheduler.ReconcileOnBoot(ctx); err != nil {
		return nil, fmt.Errorf("reconcile pending finalizations: %w", err)
	}
	sessionSvc := service.NewSessionService(sessions, scheduler)
	checkinSvc := service.NewCheckInService(
		service.NewRedisCheckInTokenStore(redisClient, cfg.RedisKeyPrefix),
		service.NewOpenSessionResolver(sessions),
		attendance,
		pointSvc,
		nil,
	)
	excuseSvc := service.NewExcuseService(excuses, sessions, nil)
	noticeSvc := service.NewNoticeService(notices)

	abuseGuard := service.NewRedisAuthAbuseGuard(redisClient, cfg.RedisKeyPrefix, service.AuthAbusePolicy{})
	negativeCache := service.NewRedisNegativeLookupCacheStore(redisClient, cfg.RedisKeyPrefix)
	listCache := service.NewRedisAdminListCacheStore(redisClient, cfg.RedisKeyPrefix)
	idempotencyStore := service.NewRedisIdempotencyStore(redisClient, cfg.RedisKeyPrefix)

	readiness := health.NewProbeRunner(2*time.Second,
		health.DatabaseProbe(db),
		health.RedisProbe(redisClient),
	)

	secureCookies := cfg.Profile == "prod"
	deps := router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(memberSvc, abuseGuard, negativeCache, cfg.JWTAccessTTL, secureCookies),
		MemberHandler:     handler.NewMemberHandler(memberSvc, listCache),
		SessionHandler:    handler.NewSessionHandler(sessionSvc, finalizer),
		CheckInHandler:    handler.NewCheckInHandler(checkinSvc),
		AttendanceHandler: handler.NewAttendanceHandler(attendance),
		ExcuseHandler:     handler.NewExcuseHandler(excuseSvc),
		NoticeHandler:     handler.NewNoticeHandler(noticeSvc),
		PointHandler:      handler.NewPointHandler(pointSvc),
		JWTManager:        jwtMgr,
		Idempotency:       middleware.NewIdempotencyMiddleware(idempotencyStore, idempotencyTTL),
		AuthRateLimitRPM:  authRateLimitRPM,
		ScanRateLimitRPM:  scanRateLimitRPM,
		APIRateLimitRPM:   apiRateLimitRPM,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.OTELTracingEnabled,
	}
	if !cfg.RateLimitEnabled {
		passthrough := func(next http.Handler) http.Handler { return next }
		deps.GlobalRateLimiter = passthrough
		deps.AuthRateLimiter = passthrough
		deps.ScanRateLimiter = passthrough
	}

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router.NewRouter(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app.New(cfg, logger, server, runtime, readiness, scheduler.Shutdown), nil
}
