package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/api/rest/request"
	"github.com/imatveev/passvault/internal/logger"
)

// TokenService resolves user ID from bearer tokens.
type TokenService interface {
	GetUserID(ctx context.Context, token string) (uuid.UUID, error)
}

// Authenticate validates bearer tokens and injects user ID into the
// request context.
type Authenticate struct {
	tokenService TokenService
	logger       *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(tokenService TokenService, logger *logger.Logger) *Authenticate {
	return &Authenticate{tokenService: tokenService, logger: logger}
}

// Handle parses the Authorization header, validates the token and passes
// the request on with the user ID in context.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r.Header.Get("Authorization"))
		if tokenString == "" {
			http.Error(w, "missing authorization token", http.StatusUnauthorized)
			return
		}

		userID, err := m.tokenService.GetUserID(r.Context(), tokenString)
		if err != nil || userID == uuid.Nil {
			m.logger.Info("request with invalid token", "path", r.URL.Path)
			http.Error(w, "invalid authorization token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(request.WithUserID(r.Context(), userID)))
	})
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
