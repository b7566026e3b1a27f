package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"memewars/internal/auth"
	"memewars/internal/config"
	cronrunner "memewars/internal/cron"
	"memewars/internal/db"
	"memewars/internal/handler"
	"memewars/internal/logger"
	"memewars/internal/notify"
	"memewars/internal/oracle"
	"memewars/internal/receipt"
	gormrepository "memewars/internal/repository/gorm"
	"memewars/internal/service"
	"memewars/internal/yield"

	_ "memewars/docs"
)

func main() {
	mintFor := flag.String("mint-token", "", "print a bearer token for this user id and exit")
	mintRole := flag.String("role", auth.RoleUser, "role claim for -mint-token")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := os.Getenv("MW_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MW_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	signer := auth.JWT{Secret: []byte(cfg.Auth.Secret), TokenTTL: cfg.Auth.TokenTTL, Issuer: cfg.Auth.Issuer}
	if *mintFor != "" {
		token, exp, err := signer.Sign(auth.Claims{Role: *mintRole, RegisteredClaims: jwt.RegisteredClaims{Subject: *mintFor}})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("%s\n# expires %s\n", token, exp.Format(time.RFC3339))
		return
	}

	logger, err := logger.New(cfg.Log, cfg.App.Name)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(ctx); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	probes := map[string]handler.Probe{}
	feed, err := buildFeed(ctx, cfg.Oracle, logger, probes)
	if err != nil {
		logger.Fatal("oracle init failed", zap.Error(err))
	}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		feed = oracle.NewRedisCache(feed, rdb, cfg.Redis.TTL, logger)
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	reader := oracle.NewReader(feed, logger)
	if cfg.Oracle.MaxAge > 0 {
		reader.MaxAge = cfg.Oracle.MaxAge
	}
	if cfg.Oracle.MaxConfidenceBps > 0 {
		reader.MaxConfidenceBps = cfg.Oracle.MaxConfidenceBps
	}

	backend, err := yield.New(cfg.Yield, &http.Client{Timeout: cfg.Yield.Marinade.Timeout})
	if err != nil {
		logger.Fatal("yield backend init failed", zap.Error(err))
	}

	var notifier service.SettlementNotifier
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID)
		if err != nil {
			logger.Warn("telegram notifier disabled", zap.Error(err))
		} else {
			notifier = tg
		}
	}

	battles := &service.BattleService{
		Repo:        store,
		Oracle:      reader,
		Yield:       backend,
		Receipts:    receipt.NewLedger(store),
		Notifier:    notifier,
		Flags:       settingsSvc,
		Config:      cfg.Settlement,
		YieldConfig: cfg.Yield,
		Logger:      logger,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Auth.Disabled {
		logger.Warn("bearer auth disabled, callers are taken from " + auth.UserHeader)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.RequestLog(logger))
	engine.Use(auth.RequireBearer(signer, cfg.Auth.Disabled))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Probes: probes}
	healthHandler.Register(engine)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	battleHandler := &handler.BattleHandler{Service: battles}
	battleHandler.Register(engine)
	protocolHandler := &handler.ProtocolHandler{Service: battles}
	protocolHandler.Register(engine)
	oracleHandler := &handler.OracleHandler{Reader: reader}
	oracleHandler.Register(engine)
	settingsHandler := &handler.SystemSettingsHandler{Settings: settingsSvc, Battles: battles}
	settingsHandler.Register(engine)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if err := cronrunner.RegisterBattleJobs(cronRunner, cfg.Cron, battles, settingsSvc, logger); err != nil {
			logger.Fatal("cron register failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildFeed selects the raw price source. The stream provider runs in the
// background until ctx is done and registers a readiness probe.
func buildFeed(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger, probes map[string]handler.Probe) (oracle.Feed, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "hermes":
		return oracle.NewHermesClient(&http.Client{Timeout: cfg.Timeout}, cfg.HermesURL), nil
	case "hermes_stream":
		stream := oracle.NewHermesStream(oracle.StreamOptions{
			URL:     cfg.StreamURL,
			FeedIDs: cfg.Feeds,
			Logger:  logger,
		})
		go func() {
			if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("hermes stream stopped", zap.Error(err))
			}
		}()
		probes["oracle_stream"] = func(ctx context.Context) error {
			for _, id := range cfg.Feeds {
				if _, err := stream.Read(ctx, id); err != nil {
					return err
				}
			}
			return nil
		}
		return stream, nil
	case "static":
		feed := oracle.NewStaticFeed(true)
		for id, p := range cfg.Static {
			feed.Set(oracle.Observation{FeedID: id, Price: p.Price, Confidence: p.Confidence, Exponent: p.Exponent})
		}
		return feed, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,"+auth.UserHeader)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
