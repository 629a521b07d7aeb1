package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facevote-api/internal/application/ballot"
	"github.com/facevote-api/internal/application/face"
	"github.com/facevote-api/internal/application/otp"
	"github.com/facevote-api/internal/application/session"
	"github.com/facevote-api/internal/application/target"
	"github.com/facevote-api/internal/application/votetoken"
	"github.com/facevote-api/internal/config"
	"github.com/facevote-api/internal/infrastructure/delivery"
	"github.com/facevote-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/facevote-api/internal/infrastructure/jwt"
	redisinfra "github.com/facevote-api/internal/infrastructure/redis"
	s3infra "github.com/facevote-api/internal/infrastructure/s3"
	"github.com/facevote-api/internal/infrastructure/smtp"
	"github.com/facevote-api/internal/infrastructure/sns"
	"github.com/facevote-api/internal/pkg/secret"
	transporthttp "github.com/facevote-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	setupLogger(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		fatal("dynamodb client", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	redisClient, err := redisinfra.NewClient(ctx, cfg)
	if err != nil {
		fatal("redis", err)
	}
	defer redisClient.Close()

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		fatal("jwt provider", err)
	}

	s3Client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		fatal("s3 client", err)
	}
	s3Store := s3infra.NewStore(s3Client, cfg.S3BucketName)

	// SNS SMS sender (optional: phone identities fail delivery without it).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(ctx, cfg); err == nil {
		smsSender = sender
	} else {
		slog.Warn("SNS sender not available", "err", err)
	}
	sender := delivery.NewRouter(smtp.NewMailer(cfg), smsSender)

	users := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	targets := dynamo.NewTargetRepo(dynamoClient, cfg.DynamoTables.Targets)
	ballots := dynamo.NewBallotRepo(dynamoClient, cfg.DynamoTables.Ballots)

	otpSvc := otp.NewService(otp.ServiceDeps{
		Cache:       redisinfra.NewCache(redisClient, "otp:"),
		Hasher:      secret.NewHasher(secret.DefaultParams),
		Sender:      sender,
		CodeLength:  cfg.OTPLength,
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
	})
	tokenSvc := votetoken.NewService(redisinfra.NewCache(redisClient, "vote:"), cfg.VoteTokenTTL)

	deps := &transporthttp.Deps{
		OTP:      otpSvc,
		Sessions: session.NewService(users, otpSvc, jwtProvider, cfg.AdminIdentities),
		Faces: face.NewService(face.ServiceDeps{
			Objects:      s3Store,
			Users:        users,
			OTP:          otpSvc,
			Cache:        redisinfra.NewCache(redisClient, "faceref:"),
			KeyPrefix:    cfg.FaceKeyPrefix,
			GrantTTL:     cfg.SignedURLGrantTTL,
			CacheTTL:     cfg.SignedRefCacheTTL,
			MaxBytes:     cfg.FaceMaxBytes,
			MaxDimension: cfg.FaceMaxDimension,
			MaxPixels:    cfg.FaceMaxPixels,
		}),
		VoteTokens:  tokenSvc,
		Ballots:     ballot.NewService(ballots, targets, tokenSvc),
		Targets:     target.NewService(targets),
		JWTProvider: jwtProvider,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("server error", err)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
		return
	}
	slog.Info("server stopped")
}

func setupLogger(env string) {
	var h slog.Handler
	if env == "production" {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h))
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
