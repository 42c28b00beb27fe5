package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comeback-ar/backend/internal/app"
	"github.com/comeback-ar/backend/internal/auth"
	"github.com/comeback-ar/backend/internal/common"
	"github.com/comeback-ar/backend/internal/config"
	"github.com/comeback-ar/backend/internal/freedompay"
	"github.com/comeback-ar/backend/internal/health"
	"github.com/comeback-ar/backend/internal/lock"
	"github.com/comeback-ar/backend/internal/obs"
	"github.com/comeback-ar/backend/internal/otp"
	"github.com/comeback-ar/backend/internal/payment"
	"github.com/comeback-ar/backend/internal/ratelimit"
	"github.com/comeback-ar/backend/internal/realtime"
	"github.com/comeback-ar/backend/internal/security"
	"github.com/comeback-ar/backend/internal/subscription"
	"github.com/comeback-ar/backend/internal/video"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "comeback")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "comeback-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "comeback-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	if err := app.RunMigrations("file://"+cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	var rtStore realtime.Store
	var firebase *realtime.Firebase
	if cfg.RealtimeDatabaseURL != "" {
		firebase = realtime.NewFirebase(realtime.FirebaseConfig{
			DatabaseURL: cfg.RealtimeDatabaseURL,
			AuthToken:   cfg.RealtimeAuthToken,
			Timeout:     cfg.RealtimeTimeout,
			MaxAttempts: cfg.RealtimeMaxAttempts,
			BreakerMin:  cfg.RealtimeBreakerMin,
			BreakerPct:  cfg.RealtimeBreakerRatio,
			BreakerOpen: cfg.RealtimeBreakerOpen,
		}, logger)
		rtStore = firebase
	} else {
		logger.Warn().Msg("realtime mirror disabled: FIREBASE_DATABASE_URL not set")
	}

	var uploader realtime.Uploader
	if cfg.StorageBucket != "" {
		uploader = &realtime.BucketUploader{Bucket: cfg.StorageBucket, AuthToken: cfg.RealtimeAuthToken}
	}

	signer := freedompay.Signer{Secret: cfg.GatewaySecret}
	paymentStore := payment.NewStore(pool)
	paymentSvc := &payment.Service{
		Store:          paymentStore,
		Signer:         signer,
		MerchantID:     cfg.MerchantID,
		GatewayBaseURL: cfg.GatewayBaseURL,
		PublicBaseURL:  cfg.PublicBaseURL,
		Currency:       cfg.Currency,
		Language:       cfg.Language,
		PaymentOrigin:  cfg.PaymentOrigin,
		SessionTTL:     cfg.SessionTTL,
	}
	paymentHandler := &payment.Handler{Service: paymentSvc, Log: logger}
	callbackHandler := &payment.CallbackHandler{Store: paymentStore, Signer: signer, Log: logger}

	videoSvc := &video.Service{Store: video.NewStore(pool), Realtime: rtStore, Log: logger}
	videoHandler := &video.Handler{Service: videoSvc, Uploader: uploader, Log: logger}

	subSvc := &subscription.Service{Store: subscription.NewStore(pool), Realtime: rtStore, Log: logger}
	subHandler := &subscription.Handler{Service: subSvc, Log: logger}

	otpSvc := &otp.Service{
		Store:    otp.NewStore(pool),
		Realtime: rtStore,
		Locker:   lock.Locker{R: redisClient},
		Log:      logger,
		Currency: cfg.Currency,
		TTL:      cfg.OTPTTL,
	}
	otpHandler := &otp.Handler{Service: otpSvc, Log: logger}

	authMW := auth.Middleware{Verifier: auth.Verifier{
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    cfg.JWTIssuer,
		ClockSkew: 30 * time.Second,
	}}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	apiLimiter, err := app.NewAPILimiter(redisClient, cfg.UnityAPIRateLimit, cfg.UnityAPIRateWindow)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise api limiter")
	}
	callbackLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "cb_rate:"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: time.Minute,
			Max:    envInt("CALLBACK_RATE_LIMIT", 300),
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("callback rate limiter") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// The processor calls redirect URLs with a trailing slash.
	r.Use(middleware.StripSlashes)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: envBool("SECURE_HEADERS", true), EnableHSTS: envBool("SECURE_HSTS", false)}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", true) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient, realtime: firebase},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/payment-gateway/freedompay", func(pg chi.Router) {
		// Client-facing Unity API.
		pg.Group(func(g chi.Router) {
			g.Use(apiLimiter)
			g.With(idem.Middleware).Post("/create-payment", paymentHandler.CreatePayment)
			g.Get("/check-status", paymentHandler.CheckStatus)
		})

		// Processor callbacks. The body-size cap keeps form parsing bounded.
		pg.Group(func(g chi.Router) {
			g.Use(callbackLimiter.Middleware)
			g.Use(security.BodyLimit{Max: 64 << 10}.Middleware)
			g.Post("/check", callbackHandler.Check)
			g.Post("/result", callbackHandler.Result)
			g.Get("/success", callbackHandler.Success)
			g.Post("/success", callbackHandler.Success)
			g.Get("/fail", callbackHandler.Fail)
			g.Post("/fail", callbackHandler.Fail)
		})
	})

	r.With(apiLimiter).Post("/api/otp/verify", otpHandler.Redeem)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(authMW.RequireAuth)

		admin.Route("/videos", func(v chi.Router) {
			v.Use(auth.RequireRole(auth.RoleAdmin))
			v.Get("/", videoHandler.List)
			v.Post("/", videoHandler.Create)
			v.Post("/upload", videoHandler.Upload)
			v.Route("/{id}", func(one chi.Router) {
				one.Get("/", videoHandler.Get)
				one.Put("/", videoHandler.Update)
				one.Delete("/", videoHandler.Delete)
			})
		})

		admin.Route("/subscription", func(s chi.Router) {
			s.Use(auth.RequireRole(auth.RoleAdmin))
			s.Get("/", subHandler.Get)
			s.Put("/", subHandler.Update)
		})

		admin.Route("/otp", func(o chi.Router) {
			o.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleCashier))
			o.Get("/", otpHandler.List)
			o.Post("/", otpHandler.Create)
		})

		admin.With(auth.RequireRole(auth.RoleAdmin)).
			Get("/payments/callbacks", paymentHandler.ListOrderCallbacks)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db       *pgxpool.Pool
	redis    *redis.Client
	realtime *realtime.Firebase
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingRealtime(ctx context.Context, timeout time.Duration) error {
	if c.realtime == nil {
		return errors.New("realtime not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.realtime.Ready(ctx)
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
