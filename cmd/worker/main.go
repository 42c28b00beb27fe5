package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/comeback-ar/backend/internal/config"
	"github.com/comeback-ar/backend/internal/obs"
	"github.com/comeback-ar/backend/internal/otp"
	"github.com/comeback-ar/backend/internal/payment"
	"github.com/comeback-ar/backend/internal/realtime"
	"github.com/comeback-ar/backend/internal/video"
)

// Task type names shared between the scheduler and the handlers.
const (
	taskExpireSessions = "payment:expire_sessions"
	taskExpireOTP      = "otp:expire_codes"
	taskResyncVideos   = "video:resync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	var rtStore realtime.Store
	if cfg.RealtimeDatabaseURL != "" {
		rtStore = realtime.NewFirebase(realtime.FirebaseConfig{
			DatabaseURL: cfg.RealtimeDatabaseURL,
			AuthToken:   cfg.RealtimeAuthToken,
			Timeout:     cfg.RealtimeTimeout,
			MaxAttempts: cfg.RealtimeMaxAttempts,
			BreakerMin:  cfg.RealtimeBreakerMin,
			BreakerPct:  cfg.RealtimeBreakerRatio,
			BreakerOpen: cfg.RealtimeBreakerOpen,
		}, logger)
	}

	paymentStore := payment.NewStore(pool)
	otpSvc := &otp.Service{
		Store:    otp.NewStore(pool),
		Realtime: rtStore,
		Log:      logger,
		Currency: cfg.Currency,
		TTL:      cfg.OTPTTL,
	}
	videoSvc := &video.Service{Store: video.NewStore(pool), Realtime: rtStore, Log: logger}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskExpireSessions, func(ctx context.Context, _ *asynq.Task) error {
		n, err := paymentStore.ExpireStaleSessions(ctx, time.Now())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info().Int64("count", n).Msg("expired payment sessions")
		}
		return nil
	})
	mux.HandleFunc(taskExpireOTP, func(ctx context.Context, _ *asynq.Task) error {
		_, err := otpSvc.ExpireSweep(ctx, time.Now())
		return err
	})
	mux.HandleFunc(taskResyncVideos, func(ctx context.Context, _ *asynq.Task) error {
		n, err := videoSvc.Resync(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info().Int("count", n).Msg("resynced video placements")
		}
		return nil
	})

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Logger:      asynqLogger{logger},
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{logger},
	})
	mustSchedule(scheduler, logger, envOrDefault("SWEEP_SESSION_CRON", "@every 5m"), taskExpireSessions)
	mustSchedule(scheduler, logger, envOrDefault("SWEEP_OTP_CRON", "@every 10m"), taskExpireOTP)
	mustSchedule(scheduler, logger, envOrDefault("SWEEP_VIDEO_RESYNC_CRON", "@every 15m"), taskResyncVideos)

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	logger.Info().Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustSchedule(s *asynq.Scheduler, logger zerolog.Logger, spec, taskType string) {
	if _, err := s.Register(spec, asynq.NewTask(taskType, nil)); err != nil {
		logger.Fatal().Err(err).Str("task", taskType).Msg("register scheduled task")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "comeback-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

// asynqLogger adapts zerolog to asynq's logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msgf("%v", args) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msgf("%v", args) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msgf("%v", args) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msgf("%v", args) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msgf("%v", args) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
