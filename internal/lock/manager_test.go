package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]State
}

func newMemStore(ids ...uuid.UUID) *memStore {
	s := &memStore{states: map[uuid.UUID]State{}}
	for _, id := range ids {
		s.states[id] = State{}
	}
	return s
}

func (s *memStore) ReadLock(_ context.Context, id uuid.UUID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return State{}, ErrNotFound
	}
	return st, nil
}

func (s *memStore) WriteLock(_ context.Context, id uuid.UUID, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; !ok {
		return ErrNotFound
	}
	s.states[id] = state
	return nil
}

type barrier struct{ wg sync.WaitGroup }

func newBarrier(n int) *barrier {
	b := &barrier{}
	b.wg.Add(n)
	return b
}

func (b *barrier) arrive() {
	b.wg.Done()
	b.wg.Wait()
}

// interleavingStore holds two acquirers at each step of the protocol so that
// both read before either writes and both write before either re-reads.
type interleavingStore struct {
	*memStore
	mu         sync.Mutex
	reads      int
	afterRead  *barrier
	afterWrite *barrier
}

func (s *interleavingStore) ReadLock(ctx context.Context, id uuid.UUID) (State, error) {
	s.mu.Lock()
	s.reads++
	first := s.reads <= 2
	s.mu.Unlock()

	st, err := s.memStore.ReadLock(ctx, id)
	if first {
		s.afterRead.arrive()
	}
	return st, err
}

func (s *interleavingStore) WriteLock(ctx context.Context, id uuid.UUID, state State) error {
	err := s.memStore.WriteLock(ctx, id, state)
	s.afterWrite.arrive()
	return err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestManager_LockTwice(t *testing.T) {
	id := uuid.New()
	m := NewManager(newMemStore(id), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Lock(ctx, id))
	assert.ErrorIs(t, m.Lock(ctx, id), ErrDatasetLocked)

	require.NoError(t, m.Unlock(ctx, id))
	assert.NoError(t, m.Lock(ctx, id))
}

func TestManager_UnlockIsIdempotent(t *testing.T) {
	id := uuid.New()
	store := newMemStore(id)
	m := NewManager(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Unlock(ctx, id))
	require.NoError(t, m.Unlock(ctx, id))

	st, err := store.ReadLock(ctx, id)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Nil(t, st.Token)
}

func TestManager_MissingDataset(t *testing.T) {
	m := NewManager(newMemStore(), zap.NewNop())
	err := m.Lock(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_TokensStrictlyIncrease(t *testing.T) {
	id := uuid.New()
	store := newMemStore(id)
	now := time.Date(2024, 3, 1, 12, 0, 0, 999, time.UTC)
	m := NewManager(store, zap.NewNop(), WithClock(fixedClock(now)))
	ctx := context.Background()

	var tokens []time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Lock(ctx, id))
		st, err := store.ReadLock(ctx, id)
		require.NoError(t, err)
		tokens = append(tokens, *st.Token)
		require.NoError(t, m.Unlock(ctx, id))
	}

	assert.Equal(t, now.Truncate(time.Microsecond), tokens[0])
	assert.True(t, tokens[1].After(tokens[0]))
	assert.True(t, tokens[2].After(tokens[1]))
}

func TestManager_InterleavedAcquirersHaveOneWinner(t *testing.T) {
	id := uuid.New()
	store := &interleavingStore{
		memStore:   newMemStore(id),
		afterRead:  newBarrier(2),
		afterWrite: newBarrier(2),
	}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	// Separate managers stand in for separate processes.
	acquirers := []*Manager{
		NewManager(store, zap.NewNop(), WithClock(fixedClock(base))),
		NewManager(store, zap.NewNop(), WithClock(fixedClock(base.Add(time.Millisecond)))),
	}

	errs := make([]error, len(acquirers))
	var wg sync.WaitGroup
	for i, m := range acquirers {
		wg.Add(1)
		go func(i int, m *Manager) {
			defer wg.Done()
			errs[i] = m.Lock(context.Background(), id)
		}(i, m)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, ErrDatasetLocked)
	}
	assert.Equal(t, 1, winners)

	st, err := store.memStore.ReadLock(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, st.Locked)
}

func TestManager_InterleavedAcquirersWithSameClock(t *testing.T) {
	id := uuid.New()
	store := &interleavingStore{
		memStore:   newMemStore(id),
		afterRead:  newBarrier(2),
		afterWrite: newBarrier(2),
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acquirers := []*Manager{
		NewManager(store, zap.NewNop(), WithClock(fixedClock(now))),
		NewManager(store, zap.NewNop(), WithClock(fixedClock(now))),
	}

	errs := make([]error, len(acquirers))
	var wg sync.WaitGroup
	for i, m := range acquirers {
		wg.Add(1)
		go func(i int, m *Manager) {
			defer wg.Done()
			errs[i] = m.Lock(context.Background(), id)
		}(i, m)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestManager_GormConditional(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "Ada", "Lovelace")
	ds := testutil.CreateDataset(t, db, user, "crime")
	store := NewGormStore(db)
	m := NewManager(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Lock(ctx, ds.ID))
	assert.ErrorIs(t, m.Lock(ctx, ds.ID), ErrDatasetLocked)

	st, err := store.ReadLock(ctx, ds.ID)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	require.NotNil(t, st.Token)
	require.NotNil(t, st.Holder)

	require.NoError(t, m.Unlock(ctx, ds.ID))
	st, err = store.ReadLock(ctx, ds.ID)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Nil(t, st.Token)
	assert.Nil(t, st.Holder)

	assert.ErrorIs(t, m.Lock(ctx, uuid.New()), ErrNotFound)
}

func TestManager_GormDoubleRead(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "Ada", "Lovelace")
	ds := testutil.CreateDataset(t, db, user, "crime")
	m := NewManager(NewGormStore(db), zap.NewNop(), WithoutConditionalUpdate())
	ctx := context.Background()

	require.NoError(t, m.Lock(ctx, ds.ID))
	assert.ErrorIs(t, m.Lock(ctx, ds.ID), ErrDatasetLocked)
	require.NoError(t, m.Unlock(ctx, ds.ID))
	assert.NoError(t, m.Lock(ctx, ds.ID))
}

func TestManager_GormConcurrentAcquirers(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "Ada", "Lovelace")
	ds := testutil.CreateDataset(t, db, user, "crime")
	store := NewGormStore(db)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = NewManager(store, zap.NewNop()).Lock(context.Background(), ds.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrDatasetLocked)
		}
	}
	assert.Equal(t, 1, winners)
}
