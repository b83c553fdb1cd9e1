// Package lock implements the advisory, database persisted lock that
// serializes import, reindex and export of a dataset across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrDatasetLocked = errors.New("dataset is being edited elsewhere")
	ErrNotFound      = errors.New("dataset not found")
)

type Manager struct {
	store       Store
	logger      *zap.Logger
	now         func() time.Time
	conditional bool

	mu        sync.Mutex
	lastToken time.Time
}

type Option func(*Manager)

// WithClock replaces the token source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithoutConditionalUpdate forces the read-write-read protocol even when the
// store supports atomic acquisition.
func WithoutConditionalUpdate() Option {
	return func(m *Manager) { m.conditional = false }
}

func NewManager(store Store, logger *zap.Logger, opts ...Option) *Manager {
	_, conditional := store.(ConditionalStore)
	m := &Manager{
		store:       store,
		logger:      logger,
		now:         time.Now,
		conditional: conditional,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lock acquires the dataset lock or fails with ErrDatasetLocked.
func (m *Manager) Lock(ctx context.Context, id uuid.UUID) error {
	token := m.nextToken()
	holder := uuid.New()

	var err error
	if m.conditional {
		err = m.acquireConditional(ctx, id, token, holder)
	} else {
		err = m.acquireDoubleRead(ctx, id, token, holder)
	}

	switch {
	case err == nil:
		metrics.LockAttempts.WithLabelValues(metrics.LockAcquired).Inc()
		m.logger.Debug("dataset locked", zap.String("dataset_id", id.String()), zap.Time("token", token))
	case errors.Is(err, ErrDatasetLocked):
		m.logger.Info("dataset lock refused", zap.String("dataset_id", id.String()))
	default:
		metrics.LockAttempts.WithLabelValues(metrics.LockError).Inc()
	}
	return err
}

func (m *Manager) acquireConditional(ctx context.Context, id uuid.UUID, token time.Time, holder uuid.UUID) error {
	ok, err := m.store.(ConditionalStore).AcquireLock(ctx, id, token, holder)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		metrics.LockAttempts.WithLabelValues(metrics.LockBusy).Inc()
		return ErrDatasetLocked
	}
	return nil
}

func (m *Manager) acquireDoubleRead(ctx context.Context, id uuid.UUID, token time.Time, holder uuid.UUID) error {
	state, err := m.store.ReadLock(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read lock state: %w", err)
	}
	if state.Locked {
		metrics.LockAttempts.WithLabelValues(metrics.LockBusy).Inc()
		return ErrDatasetLocked
	}

	if err := m.store.WriteLock(ctx, id, State{Locked: true, Token: &token, Holder: &holder}); err != nil {
		return fmt.Errorf("failed to write lock state: %w", err)
	}

	state, err = m.store.ReadLock(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read lock state: %w", err)
	}
	// Another acquirer wrote after us.
	if !state.Locked || state.Token == nil || !state.Token.Equal(token) || state.Holder == nil || *state.Holder != holder {
		metrics.LockAttempts.WithLabelValues(metrics.LockRaced).Inc()
		return ErrDatasetLocked
	}
	return nil
}

// Unlock releases the lock. Unlocking an unlocked dataset is not an error.
func (m *Manager) Unlock(ctx context.Context, id uuid.UUID) error {
	if err := m.store.WriteLock(ctx, id, State{}); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	m.logger.Debug("dataset unlocked", zap.String("dataset_id", id.String()))
	return nil
}

// nextToken returns a UTC, microsecond resolution timestamp strictly after
// every token this manager has handed out before.
func (m *Manager) nextToken() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.now().UTC().Truncate(time.Microsecond)
	if !t.After(m.lastToken) {
		t = m.lastToken.Add(time.Microsecond)
	}
	m.lastToken = t
	return t
}
