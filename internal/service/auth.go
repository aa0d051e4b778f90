package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/crypto"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
	"github.com/imatveev/passvault/internal/session"
)

// Auth handles account registration and login. Logging in only proves
// the password and issues tokens; the vault stays locked until the
// client explicitly unlocks it.
type Auth struct {
	users    model.UserStore
	tokens   *Tokens
	deriver  *crypto.Deriver
	sessions *session.Manager
	logger   *logger.Logger
}

func NewAuth(
	users model.UserStore,
	tokens *Tokens,
	deriver *crypto.Deriver,
	sessions *session.Manager,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		users:    users,
		tokens:   tokens,
		deriver:  deriver,
		sessions: sessions,
		logger:   logger,
	}
}

// Register creates an account: an argon2id password hash for
// authentication, a fresh vault salt, and the key check ciphertext that
// later unlocks verify against.
func (a *Auth) Register(ctx context.Context, email, password string) (model.User, error) {
	existing, err := a.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		a.logger.Error("Auth service: failed to get user by email",
			"email", email,
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	if existing.ID != uuid.Nil {
		a.logger.Info("Auth service: email already registered", "email", email)
		return model.User{}, model.ErrEmailTaken
	}

	passwordHash, err := crypto.HashPassword(password, a.deriver.Params())
	if err != nil {
		return model.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	vaultSalt, err := crypto.GenerateSalt()
	if err != nil {
		return model.User{}, err
	}

	key, err := a.deriver.Derive(ctx, password, vaultSalt)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to derive vault key: %w", err)
	}
	defer key.Zero()

	keyCheck, keyCheckNonce, err := crypto.Encrypt([]byte(keyCheckValue), key)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to seal key check: %w", err)
	}

	now := time.Now()
	user := model.User{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  passwordHash,
		VaultSalt:     vaultSalt,
		KeyCheck:      keyCheck,
		KeyCheckNonce: keyCheckNonce,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := a.users.Create(ctx, user)
	if err != nil {
		a.logger.Error("Auth service: failed to create user",
			"email", email,
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	a.logger.Info("Auth service: user registered", "user_id", created.ID)
	return created, nil
}

// Login verifies the password and issues a token pair. An unknown email
// and a wrong password are indistinguishable to the caller.
func (a *Auth) Login(ctx context.Context, email, password string) (access string, refresh string, err error) {
	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		return "", "", model.ErrInvalidCredentials
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to get user by email: %w", err)
	}

	ok, err := crypto.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		a.logger.Info("Auth service: failed login attempt", "user_id", user.ID)
		return "", "", model.ErrInvalidCredentials
	}

	access, refresh, err = a.tokens.Issue(ctx, user.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to issue tokens: %w", err)
	}

	a.logger.Info("Auth service: user logged in", "user_id", user.ID)
	return access, refresh, nil
}

// Logout revokes the presented refresh token and locks the vault session
// so the derived key does not outlive the login.
func (a *Auth) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if err := a.tokens.RevokeByToken(ctx, refreshToken); err != nil &&
		!errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	a.sessions.Lock(userID)

	a.logger.Info("Auth service: user logged out", "user_id", userID)
	return nil
}
