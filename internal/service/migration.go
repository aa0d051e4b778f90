package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
)

// migrationConcurrency bounds parallel per-user migrations in a batch.
// Each migration runs at least two KDF derivations, so the real ceiling
// is the deriver's semaphore; this just keeps the batch polite.
const migrationConcurrency = 4

// Migration moves auxiliary secrets from the legacy plaintext
// representation to the encrypted one and purges the plaintext once an
// encrypted twin is verified present. It needs the user's password for
// every step: migration happens where the password is available, at login
// or through an operator-supplied credential set.
type Migration struct {
	store   model.SecretStore
	secrets *Secrets
	logger  *logger.Logger
}

func NewMigration(store model.SecretStore, secrets *Secrets, logger *logger.Logger) *Migration {
	return &Migration{store: store, secrets: secrets, logger: logger}
}

// MigrateUserSecret encrypts the legacy plaintext secret of one kind for
// one user. The write is only considered successful after the stored
// ciphertext is read back and decrypts to the original plaintext; silent
// corruption fails the migration and keeps the plaintext in place.
func (m *Migration) MigrateUserSecret(ctx context.Context, userID uuid.UUID, kind model.SecretKind, password string) (model.MigrationOutcome, error) {
	secret, err := m.store.Get(ctx, userID, kind)
	if errors.Is(err, model.ErrNotFound) {
		return model.MigrationOutcomeSkipped, nil
	}
	if err != nil {
		return model.MigrationOutcomeFailed, fmt.Errorf("failed to get secret: %w", err)
	}

	if !secret.HasPlaintext() {
		return model.MigrationOutcomeSkipped, nil
	}
	original := *secret.PlaintextLegacy

	box, err := m.secrets.MigrateToEncrypted(ctx, original, password)
	if err != nil {
		return model.MigrationOutcomeFailed, err
	}

	// Encrypting correctly is not enough: decrypt the box we are about
	// to persist and compare with the original.
	roundTrip, err := m.secrets.DecryptSecret(ctx, box, password)
	if err != nil {
		return model.MigrationOutcomeFailed, fmt.Errorf("migration verification failed: %w", err)
	}
	if roundTrip != original {
		return model.MigrationOutcomeFailed, fmt.Errorf("migration verification failed: round trip mismatch")
	}

	secret.Ciphertext = box.Ciphertext
	secret.Nonce = box.Nonce
	secret.Salt = box.Salt
	if err := m.store.Upsert(ctx, secret); err != nil {
		return model.MigrationOutcomeFailed, fmt.Errorf("failed to store encrypted secret: %w", err)
	}

	m.logger.Info("secret migrated", "user_id", userID, "kind", kind)
	return model.MigrationOutcomeMigrated, nil
}

// PurgePlaintext clears the legacy plaintext field. It refuses with
// model.ErrMigrationSafety unless the encrypted twin exists and
// independently decrypts to a non-empty value. The check runs here, on
// the server, every time; caller discipline is not trusted.
func (m *Migration) PurgePlaintext(ctx context.Context, userID uuid.UUID, kind model.SecretKind, password string) (model.MigrationOutcome, error) {
	secret, err := m.store.Get(ctx, userID, kind)
	if err != nil {
		return model.MigrationOutcomeFailed, fmt.Errorf("failed to get secret: %w", err)
	}

	if !secret.HasPlaintext() {
		return model.MigrationOutcomeSkipped, nil
	}

	if !secret.HasEncrypted() {
		m.logger.Error("security event: plaintext purge refused, no encrypted twin",
			"user_id", userID, "kind", kind)
		return model.MigrationOutcomeFailed, model.ErrMigrationSafety
	}

	plaintext, err := m.secrets.DecryptSecret(ctx, SecretBox{
		Ciphertext: secret.Ciphertext,
		Nonce:      secret.Nonce,
		Salt:       secret.Salt,
	}, password)
	if err != nil || plaintext == "" {
		m.logger.Error("security event: plaintext purge refused, encrypted twin failed verification",
			"user_id", userID, "kind", kind)
		return model.MigrationOutcomeFailed, model.ErrMigrationSafety
	}

	if err := m.store.ClearPlaintext(ctx, userID, kind); err != nil {
		return model.MigrationOutcomeFailed, fmt.Errorf("failed to clear plaintext: %w", err)
	}

	m.logger.Info("plaintext purged", "user_id", userID, "kind", kind)
	return model.MigrationOutcomePurged, nil
}

// RunBatch migrates and purges every user that still has a legacy
// plaintext secret of the given kind and a password in the supplied set.
// Per-user failures are recorded in the report and do not abort the
// batch; a failed user keeps both representations until retried.
// Cancellation is cooperative between users, never mid-user.
func (m *Migration) RunBatch(ctx context.Context, kind model.SecretKind, passwords map[uuid.UUID]string) (model.BatchReport, error) {
	userIDs, err := m.store.ListWithPlaintext(ctx, kind)
	if err != nil {
		return model.BatchReport{}, fmt.Errorf("failed to list users with plaintext: %w", err)
	}

	var (
		mu     sync.Mutex
		report model.BatchReport
	)
	record := func(res model.MigrationResult) {
		mu.Lock()
		report.Results = append(report.Results, res)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(migrationConcurrency)

	for _, userID := range userIDs {
		if err := gctx.Err(); err != nil {
			break
		}

		password, ok := passwords[userID]
		if !ok {
			record(model.MigrationResult{
				UserID: userID, Kind: kind,
				Outcome: model.MigrationOutcomeFailed,
				Err:     fmt.Errorf("no password available"),
			})
			continue
		}

		g.Go(func() error {
			outcome := m.migrateAndPurge(gctx, userID, kind, password)
			record(outcome)
			// Per-user failures never fail the group.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	m.logger.Info("migration batch finished",
		"kind", kind, "total", len(report.Results), "failed", len(report.Failed()))
	return report, nil
}

// Status reports migration progress per secret kind for operators.
func (m *Migration) Status(ctx context.Context) (model.MigrationStatus, error) {
	totp, err := m.store.CountByMigrationState(ctx, model.SecretKindTOTP)
	if err != nil {
		return model.MigrationStatus{}, fmt.Errorf("failed to count totp migration state: %w", err)
	}
	phone, err := m.store.CountByMigrationState(ctx, model.SecretKindPhone)
	if err != nil {
		return model.MigrationStatus{}, fmt.Errorf("failed to count phone migration state: %w", err)
	}
	return model.MigrationStatus{TOTP: totp, Phone: phone}, nil
}

func (m *Migration) migrateAndPurge(ctx context.Context, userID uuid.UUID, kind model.SecretKind, password string) model.MigrationResult {
	outcome, err := m.MigrateUserSecret(ctx, userID, kind, password)
	if err != nil {
		return model.MigrationResult{UserID: userID, Kind: kind, Outcome: model.MigrationOutcomeFailed, Err: err}
	}
	if outcome == model.MigrationOutcomeSkipped {
		return model.MigrationResult{UserID: userID, Kind: kind, Outcome: outcome}
	}

	purged, err := m.PurgePlaintext(ctx, userID, kind, password)
	if err != nil {
		return model.MigrationResult{UserID: userID, Kind: kind, Outcome: model.MigrationOutcomeFailed, Err: err}
	}
	return model.MigrationResult{UserID: userID, Kind: kind, Outcome: purged}
}
