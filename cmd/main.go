package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/imatveev/passvault/database"
	"github.com/imatveev/passvault/internal/api/rest/router"
	restServer "github.com/imatveev/passvault/internal/api/rest/server"
	"github.com/imatveev/passvault/internal/config"
	"github.com/imatveev/passvault/internal/crypto"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
	"github.com/imatveev/passvault/internal/repository/postgres"
	"github.com/imatveev/passvault/internal/server"
	"github.com/imatveev/passvault/internal/service"
	"github.com/imatveev/passvault/internal/session"
	storage "github.com/imatveev/passvault/internal/storage/minio"
	"github.com/imatveev/passvault/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	if err := database.Migrate(ctx, cfg.Database.DSN); err != nil {
		logger.Fatal("failed to apply migrations", "error", err)
	}

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	userRepo := postgres.NewUserRepository(db)
	entryRepo := postgres.NewEntryRepository(db)
	secretRepo := postgres.NewSecretRepository(db)
	attachmentRepo := postgres.NewAttachmentRepository(db)
	refreshTokenRepo := postgres.NewRefreshTokenRepository(db)
	tokenManager := token.NewJWT(cfg.JWT.Secret)

	minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal("failed to create minio client", "error", err)
	}
	blobStorage, err := storage.NewClient(ctx, minioClient, cfg.Storage.Bucket)
	if err != nil {
		logger.Fatal("failed to initialize storage client", "error", err)
	}

	kdfParams := crypto.KDFParams{Time: cfg.KDF.Time, MemKiB: cfg.KDF.MemKiB, Par: cfg.KDF.Par}
	deriver := crypto.NewDeriver(kdfParams, cfg.KDF.MaxConcurrent)

	sessions := session.NewManager(deriver, cfg.Vault.SessionTTL, logger)
	defer sessions.Close()

	tokenService := service.NewTokens(tokenManager, refreshTokenRepo, logger)
	authService := service.NewAuth(userRepo, tokenService, deriver, sessions, logger)
	secretsService := service.NewSecrets(deriver, logger)
	vaultService := service.NewVault(entryRepo, userRepo, attachmentRepo, blobStorage, secretRepo, secretsService, sessions, deriver, logger)
	twoFactorService := service.NewTwoFactor(userRepo, secretRepo, secretsService, deriver, logger)
	migrationService := service.NewMigration(secretRepo, secretsService, logger)

	r := router.New(authService, vaultService, twoFactorService, migrationService, tokenService, logger)
	httpServer := restServer.NewHTTPServer(r.Register(), fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer

	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		err := s.Start(sl)
		if err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}(httpServer)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", httpServer.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
