package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/imatveev/passvault/internal/api/rest/handler"
	"github.com/imatveev/passvault/internal/api/rest/middleware"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/service"
)

// Router assembles the REST API from handlers and middleware.
type Router struct {
	authService      *service.Auth
	vaultService     *service.Vault
	twoFactorService *service.TwoFactor
	migrationService *service.Migration
	tokenService     *service.Tokens
	logger           *logger.Logger
}

// New creates a new Router instance.
func New(
	authService *service.Auth,
	vaultService *service.Vault,
	twoFactorService *service.TwoFactor,
	migrationService *service.Migration,
	tokenService *service.Tokens,
	logger *logger.Logger,
) *Router {
	return &Router{
		authService:      authService,
		vaultService:     vaultService,
		twoFactorService: twoFactorService,
		migrationService: migrationService,
		tokenService:     tokenService,
		logger:           logger,
	}
}

// Register builds the route tree. Registration, login and token refresh
// are public; everything else requires a bearer token.
func (r *Router) Register() http.Handler {
	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.tokenService, r.logger)

	authHandler := handler.NewAuth(r.authService, r.tokenService, r.logger)
	vaultHandler := handler.NewVault(r.vaultService, r.logger)
	twoFactorHandler := handler.NewTwoFactor(r.twoFactorService, r.logger)
	migrationHandler := handler.NewMigration(r.migrationService, r.logger)

	mux := chi.NewRouter()
	mux.Use(logging.Handle)

	mux.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", authHandler.Register)
		api.Post("/auth/login", authHandler.Login)
		api.Post("/auth/refresh", authHandler.Refresh)

		api.Group(func(private chi.Router) {
			private.Use(authenticate.Handle)

			private.Post("/auth/logout", authHandler.Logout)

			private.Post("/vault/unlock", vaultHandler.Unlock)
			private.Post("/vault/lock", vaultHandler.Lock)
			private.Get("/vault/status", vaultHandler.Status)
			private.Post("/vault/password", vaultHandler.ChangePassword)

			private.Post("/entries", vaultHandler.CreateEntry)
			private.Get("/entries", vaultHandler.ListEntries)
			private.Get("/entries/{entryID}", vaultHandler.GetEntry)
			private.Patch("/entries/{entryID}", vaultHandler.UpdateEntry)
			private.Delete("/entries/{entryID}", vaultHandler.DeleteEntry)
			private.Post("/entries/{entryID}/attachments", vaultHandler.UploadAttachment)
			private.Get("/attachments/{attachmentID}", vaultHandler.DownloadAttachment)
			private.Delete("/attachments/{attachmentID}", vaultHandler.DeleteAttachment)

			private.Post("/twofactor/enable", twoFactorHandler.Enable)
			private.Post("/twofactor/disable", twoFactorHandler.Disable)
			private.Post("/twofactor/totp", twoFactorHandler.TOTPSecret)
			private.Post("/twofactor/backup-code", twoFactorHandler.ConsumeBackupCode)
			private.Post("/twofactor/phone", twoFactorHandler.SetPhone)
			private.Post("/twofactor/phone/reveal", twoFactorHandler.Phone)

			private.Post("/migration/migrate", migrationHandler.Migrate)
			private.Post("/migration/purge", migrationHandler.Purge)
			private.Post("/migration/batch", migrationHandler.Batch)
			private.Get("/migration/status", migrationHandler.Status)
		})
	})

	return mux
}
