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
	"bookstore/internal/usertoken"
	"bookstore/internal/util"
	"bookstore/pkg/storage"
	"bookstore/pkg/store"
	"bookstore/services/bookstore/internal/access"
	"bookstore/services/bookstore/internal/app"
	"bookstore/services/bookstore/internal/config"
	"bookstore/services/bookstore/internal/identityclient"
	"bookstore/services/bookstore/internal/publish"
	"bookstore/services/bookstore/internal/server"
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

	buckets := app.Buckets{
		Covers:       cfg.Buckets.Covers,
		PDFs:         cfg.Buckets.PDFs,
		AuthorImages: cfg.Buckets.AuthorImages,
	}
	var (
		objects storage.ObjectStore
		files   http.Handler
	)
	switch cfg.StorageDriver {
	case config.StorageLocal:
		local, err := storage.NewLocalStore(cfg.LocalStorageDir, cfg.PublicBaseURL)
		if err != nil {
			log.Fatalf("failed to init local storage: %v", err)
		}
		objects, files = local, local.Handler()
	default:
		names := []string{buckets.Covers, buckets.PDFs, buckets.AuthorImages}
		for i, fallback := range []string{storage.BucketCovers, storage.BucketPDFs, storage.BucketAuthorImages} {
			if names[i] == "" {
				names[i] = fallback
			}
		}
		objects, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.PublicBaseURL,
			Buckets:       names,
		})
		if err != nil {
			log.Fatalf("failed to init minio storage: %v", err)
		}
	}

	leeway, _ := cfg.JWTLeewayDuration()
	verifier, err := usertoken.NewVerifier(ctx, usertoken.Config{
		JWKSURL:    cfg.IdentityJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     leeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		if verifier == nil {
			log.Fatalf("failed to init jwks verifier: %v", err)
		}
		logger.Warn("jwks not reachable at startup, will retry on first request", "err", err)
	}
	identity, err := identityclient.New(identityclient.Config{BaseURL: cfg.IdentityURL, Verifier: verifier})
	if err != nil {
		log.Fatalf("failed to init identity client: %v", err)
	}

	acl, err := access.New(access.Config{AdminEmails: cfg.AdminEmails, Identity: identity, Store: db})
	if err != nil {
		log.Fatalf("failed to init access control: %v", err)
	}
	publisher, err := publish.New(db)
	if err != nil {
		log.Fatalf("failed to init publish workflow: %v", err)
	}
	catalog, err := app.New(app.Config{Store: db, Objects: objects, Access: acl, Buckets: buckets})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var (
		uploadLimiter *ratelimit.FixedWindowLimiter
		alerter       *security.AuditAlerter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
		alerter = security.NewAuditAlerter(redisClient, "bookstore:alerts")
		if cfg.UploadRateLimitPerMinute > 0 {
			uploadLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "bookstore:ratelimit:upload", cfg.UploadRateLimitPerMinute, time.Minute)
			if err != nil {
				log.Fatalf("failed to init upload rate limiter: %v", err)
			}
		}
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxy cidrs: %v", err)
	}

	httpServer, err := server.New(server.Config{
		Access:         acl,
		Publish:        publisher,
		App:            catalog,
		Files:          files,
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadLimiter:  uploadLimiter,
		TrustedProxies: trusted,
		CORSOrigins:    cfg.CORSOrigins,
		Alerter:        alerter,
	})
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
		slog.Info("bookstore server listening", "addr", addr, "storage", cfg.StorageDriver, "database", cfg.DatabaseDriver)
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
