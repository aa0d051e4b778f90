// Package session holds per-user vault unlock state: an in-memory derived
// master key with a TTL. Keys live here and nowhere else; every other
// component borrows them for the duration of one call.
//
// Expiry policy: the TTL is a fixed window started at unlock and is not
// renewed on activity. The access-time check in Key/IsUnlocked is the
// authoritative expiry mechanism; the background sweep only reclaims
// memory for users that are never touched again.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/crypto"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
)

// DefaultTTL is the default unlock window.
const DefaultTTL = 30 * time.Minute

const (
	shardCount    = 32
	sweepInterval = time.Minute
)

// Session is the observable state of one user's unlock, without the key.
type Session struct {
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}

type vaultSession struct {
	key       *crypto.MasterKey
	createdAt time.Time
	expiresAt time.Time
}

type shard struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*vaultSession
}

// Manager is the vault session store. Sessions are sharded by user ID so
// one user's unlock never blocks another's; within a user, unlock, key
// access and lock are mutually exclusive.
type Manager struct {
	deriver *crypto.Deriver
	ttl     time.Duration
	logger  *logger.Logger
	shards  [shardCount]shard

	userLocksMu sync.Mutex
	userLocks   map[uuid.UUID]*sync.RWMutex

	now func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a session manager and starts its background sweep.
// A non-positive ttl falls back to DefaultTTL. Call Close on shutdown.
func NewManager(deriver *crypto.Deriver, ttl time.Duration, logger *logger.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		deriver:   deriver,
		ttl:       ttl,
		logger:    logger,
		userLocks: make(map[uuid.UUID]*sync.RWMutex),
		now:       time.Now,
		done:      make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i].sessions = make(map[uuid.UUID]*vaultSession)
	}
	go m.sweep()
	return m
}

func (m *Manager) shardFor(userID uuid.UUID) *shard {
	return &m.shards[userID[0]%shardCount]
}

// Unlock derives the master key for userID and starts a new TTL window,
// replacing and zeroing any prior session (last writer wins). Derivation
// always succeeds for any password; a wrong password only surfaces on the
// first dependent decrypt.
func (m *Manager) Unlock(ctx context.Context, userID uuid.UUID, password string, salt []byte) (Session, error) {
	key, err := m.deriver.Derive(ctx, password, salt)
	if err != nil {
		return Session{}, fmt.Errorf("failed to derive master key: %w", err)
	}

	now := m.now()
	s := &vaultSession{
		key:       key,
		createdAt: now,
		expiresAt: now.Add(m.ttl),
	}

	sh := m.shardFor(userID)
	sh.mu.Lock()
	if prev, ok := sh.sessions[userID]; ok {
		prev.key.Zero()
	}
	sh.sessions[userID] = s
	sh.mu.Unlock()

	m.logger.Info("vault unlocked", "user_id", userID, "expires_at", s.expiresAt)

	return Session{UserID: userID, CreatedAt: s.createdAt, ExpiresAt: s.expiresAt}, nil
}

// Key returns a caller-owned copy of the active master key for userID.
// The copy is taken under the shard mutex, so a concurrent Lock, sweep or
// replacing Unlock zeroing the session's key cannot tear bytes out from
// under a caller mid-encrypt. The caller must Zero the copy on every exit
// path. Returns model.ErrSessionExpired (tearing the session down) past
// the TTL and model.ErrVaultLocked when no session exists. The expiry
// check runs on every access rather than relying on the sweep, so a
// request can never observe a half-expired session.
func (m *Manager) Key(userID uuid.UUID) (*crypto.MasterKey, error) {
	sh := m.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if !ok {
		return nil, model.ErrVaultLocked
	}
	if m.now().After(s.expiresAt) {
		s.key.Zero()
		delete(sh.sessions, userID)
		m.logger.Info("vault session expired", "user_id", userID)
		return nil, model.ErrSessionExpired
	}
	return s.key.Clone(), nil
}

// Lock tears down the user's session and zeroes its key. Reports whether
// a session existed.
func (m *Manager) Lock(userID uuid.UUID) bool {
	sh := m.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if !ok {
		return false
	}
	s.key.Zero()
	delete(sh.sessions, userID)
	m.logger.Info("vault locked", "user_id", userID)
	return true
}

// IsUnlocked reports whether the user has a live session. Shares the
// lazy-expiry side effect with Key.
func (m *Manager) IsUnlocked(userID uuid.UUID) bool {
	key, err := m.Key(userID)
	key.Zero()
	return err == nil
}

// Status returns the observable session state, if any.
func (m *Manager) Status(userID uuid.UUID) (Session, bool) {
	sh := m.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if !ok || m.now().After(s.expiresAt) {
		return Session{}, false
	}
	return Session{UserID: userID, CreatedAt: s.createdAt, ExpiresAt: s.expiresAt}, true
}

// UserLock returns the per-user rekey gate. A full rekey holds the write
// side for the whole batch; routine entry writes hold the read side, so
// an update encrypting under the old key can never interleave with a
// rekey pass. The gate survives session teardown.
func (m *Manager) UserLock(userID uuid.UUID) *sync.RWMutex {
	m.userLocksMu.Lock()
	defer m.userLocksMu.Unlock()

	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.RWMutex{}
		m.userLocks[userID] = l
	}
	return l
}

// Close stops the background sweep and zeroes every live key.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		for i := range m.shards {
			sh := &m.shards[i]
			sh.mu.Lock()
			for id, s := range sh.sessions {
				s.key.Zero()
				delete(sh.sessions, id)
			}
			sh.mu.Unlock()
		}
	})
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := m.now()
			for i := range m.shards {
				sh := &m.shards[i]
				sh.mu.Lock()
				for id, s := range sh.sessions {
					if now.After(s.expiresAt) {
						s.key.Zero()
						delete(sh.sessions, id)
					}
				}
				sh.mu.Unlock()
			}
		}
	}
}
