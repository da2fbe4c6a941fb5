package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"bookstore/internal/ratelimit"
	"bookstore/internal/security"
	"bookstore/internal/util"
	"bookstore/pkg/store"
	"bookstore/services/identity/internal/app"
	"bookstore/services/identity/internal/config"
	"bookstore/services/identity/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewGormStore(store.DBConfig{
		Driver:  cfg.DatabaseDriver,
		DSN:     cfg.DatabaseURL,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}

	var (
		revoker store.TokenRevoker
		alerter *security.AuditAlerter
	)
	if redisClient != nil {
		revoker = store.NewRedisTokenRevoker(redisClient)
		alerter = security.NewAuditAlerter(redisClient, "identity:alerts")
	} else {
		logger.Warn("redis not configured, token revocation is per-instance")
		revoker = store.NewMemoryTokenRevoker()
	}

	ttl, _ := config.ParseSessionTTL(cfg.SessionTTL)
	leeway, _ := config.ParseJWTLeeway(cfg.JWTLeeway)
	verifyKeys, _ := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)
	sessions, err := store.NewJWTSessionStoreFromPEM(cfg.JWTPrivateKeyPath, cfg.JWTKeyID, verifyKeys, ttl, revoker, store.JWTOptions{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	identity, err := app.New(app.Config{Users: db, Sessions: sessions})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	srvCfg := server.Config{App: identity, CORSOrigins: cfg.CORSOrigins, Alerter: alerter}
	if cfg.SignupRateLimitPerMinute > 0 {
		srvCfg.SignupLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "identity:ratelimit:signup", cfg.SignupRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init signup rate limiter: %v", err)
		}
	}
	if cfg.SigninRateLimitPerMinute > 0 {
		srvCfg.SigninLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "identity:ratelimit:signin", cfg.SigninRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init signin rate limiter: %v", err)
		}
	}
	srvCfg.TrustedProxies, err = util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxy cidrs: %v", err)
	}

	httpServer, err := server.New(srvCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("identity server listening", "addr", addr, "database", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
