package selector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindActiveTemplates(ctx context.Context, orgID, trigger, formID string) ([]models.MailTemplate, error) {
	args := m.Called(ctx, orgID, trigger, formID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MailTemplate), args.Error(1)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func twoTemplates() []models.MailTemplate {
	return []models.MailTemplate{
		{ID: "t1", OrgID: "org-1", FormID: "F1", TriggerEvent: "approved", Active: true, Subject: "first"},
		{ID: "t2", OrgID: "org-1", FormID: "F1", TriggerEvent: "approved", Active: true, Subject: "second"},
	}
}

// ==========================
// Selection
// ==========================

func TestSelect_MissingScopeNeverQueries(t *testing.T) {
	store := &MockStore{}
	s := New(store, logger.NewTestLogger(t))

	_, err := s.Select(context.Background(), "org-1", "approved", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Select(context.Background(), "", "approved", "F1")
	assert.ErrorIs(t, err, ErrNotFound)

	store.AssertNotCalled(t, "FindActiveTemplates", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSelect_FirstOfMultipleIsStable(t *testing.T) {
	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return(twoTemplates(), nil)
	s := New(store, logger.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		tmpl, err := s.Select(context.Background(), "org-1", "approved", "F1")
		require.NoError(t, err)
		assert.Equal(t, "t1", tmpl.ID)
	}
	store.AssertNumberOfCalls(t, "FindActiveTemplates", 3)
}

func TestSelect_NoRows(t *testing.T) {
	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", "flagged", "F1").Return([]models.MailTemplate{}, nil)
	s := New(store, logger.NewTestLogger(t))

	tmpl, err := s.Select(context.Background(), "org-1", "flagged", "F1")
	assert.Nil(t, tmpl)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelect_StoreError(t *testing.T) {
	store := &MockStore{}
	boom := errors.New("db down")
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return(nil, boom)
	s := New(store, logger.NewTestLogger(t), NewMemoryCache(time.Minute))

	_, err := s.Select(context.Background(), "org-1", "approved", "F1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestSelect_ReturnsCopy(t *testing.T) {
	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return(twoTemplates(), nil).Once()
	s := New(store, logger.NewTestLogger(t), NewMemoryCache(time.Minute))

	first, err := s.Select(context.Background(), "org-1", "approved", "F1")
	require.NoError(t, err)
	first.Subject = "mutated"

	second, err := s.Select(context.Background(), "org-1", "approved", "F1")
	require.NoError(t, err)
	assert.Equal(t, "first", second.Subject)
}

func TestSelect_ConcurrentLoadsCollapse(t *testing.T) {
	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").
		After(50*time.Millisecond).
		Return(twoTemplates(), nil)
	s := New(store, logger.NewTestLogger(t), NewMemoryCache(time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tmpl, err := s.Select(context.Background(), "org-1", "approved", "F1")
			assert.NoError(t, err)
			assert.Equal(t, "t1", tmpl.ID)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, len(store.Calls), 5)
	assert.GreaterOrEqual(t, len(store.Calls), 1)
}

// ==========================
// Cache tiers
// ==========================

func TestSelect_RedisTierCachesHitsOnly(t *testing.T) {
	mr, client := setupRedis(t)
	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return(twoTemplates(), nil).Once()
	store.On("FindActiveTemplates", mock.Anything, "org-1", "flagged", "F1").Return([]models.MailTemplate{}, nil).Twice()

	s := New(store, logger.NewTestLogger(t), NewRedisCache(client, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		tmpl, err := s.Select(ctx, "org-1", "approved", "F1")
		require.NoError(t, err)
		assert.Equal(t, "t1", tmpl.ID)

		_, err = s.Select(ctx, "org-1", "flagged", "F1")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	store.AssertExpectations(t)

	assert.False(t, mr.Exists(CacheKey("org-1", "flagged", "F1")))
	assert.True(t, mr.Exists(CacheKey("org-1", "approved", "F1")))
	ttl := mr.TTL(CacheKey("org-1", "approved", "F1"))
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(CacheKey("org-1", "approved", "F1")))
}

func TestSelect_RedisHitBackfillsMemory(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	redisTier := NewRedisCache(client, time.Minute)
	tmpl := twoTemplates()[1]
	require.NoError(t, redisTier.Set(ctx, CacheKey("org-1", "approved", "F1"), Entry{Template: &tmpl}))

	memory := NewMemoryCache(time.Minute)
	s := New(&MockStore{}, logger.NewTestLogger(t), memory, redisTier)

	got, err := s.Select(ctx, "org-1", "approved", "F1")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.ID)

	entry, ok, err := memory.Get(ctx, CacheKey("org-1", "approved", "F1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t2", entry.Template.ID)
}

func TestSelect_RedisErrorFallsBackToStore(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	key := CacheKey("org-1", "approved", "F1")
	redisMock.ExpectGet(key).SetErr(errors.New("redis unavailable"))

	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return(twoTemplates(), nil)

	s := New(store, logger.NewTestLogger(t), NewRedisCache(client, time.Minute))

	tmpl, err := s.Select(context.Background(), "org-1", "approved", "F1")
	require.NoError(t, err)
	assert.Equal(t, "t1", tmpl.ID)
	store.AssertExpectations(t)
}

func TestRedisCache_GetMiss(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	redisMock.ExpectGet("mail_template:o:t:f").RedisNil()

	_, ok, err := NewRedisCache(client, time.Minute).Get(context.Background(), "mail_template:o:t:f")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	mr, client := setupRedis(t)
	require.NoError(t, mr.Set("mail_template:o:t:f", "not-json"))

	_, ok, err := NewRedisCache(client, time.Minute).Get(context.Background(), "mail_template:o:t:f")
	assert.Error(t, err)
	assert.False(t, ok)
}

// ==========================
// Invalidation
// ==========================

func TestSelect_DeactivatedTemplateAfterInvalidate(t *testing.T) {
	mr, client := setupRedis(t)
	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return(twoTemplates(), nil).Once()
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return([]models.MailTemplate{}, nil).Once()

	s := New(store, logger.NewTestLogger(t), NewMemoryCache(time.Minute), NewRedisCache(client, time.Minute))
	ctx := context.Background()

	tmpl, err := s.Select(ctx, "org-1", "approved", "F1")
	require.NoError(t, err)
	assert.Equal(t, "t1", tmpl.ID)

	s.Invalidate(ctx, "org-1", "approved", "F1")
	assert.False(t, mr.Exists(CacheKey("org-1", "approved", "F1")))

	_, err = s.Select(ctx, "org-1", "approved", "F1")
	assert.ErrorIs(t, err, ErrNotFound)
	store.AssertExpectations(t)
}

func TestSelect_TemplateAddedAfterMissIsFound(t *testing.T) {
	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return([]models.MailTemplate{}, nil).Once()
	store.On("FindActiveTemplates", mock.Anything, "org-1", "approved", "F1").Return(twoTemplates(), nil).Once()

	s := New(store, logger.NewTestLogger(t), NewMemoryCache(time.Minute))
	ctx := context.Background()

	_, err := s.Select(ctx, "org-1", "approved", "F1")
	assert.ErrorIs(t, err, ErrNotFound)

	tmpl, err := s.Select(ctx, "org-1", "approved", "F1")
	require.NoError(t, err)
	assert.Equal(t, "t1", tmpl.ID)
	store.AssertExpectations(t)
}

func TestSelect_PurgeEmptiesEveryTier(t *testing.T) {
	mr, client := setupRedis(t)
	require.NoError(t, mr.Set("unrelated", "kept"))

	store := &MockStore{}
	store.On("FindActiveTemplates", mock.Anything, "org-1", mock.Anything, "F1").Return(twoTemplates(), nil)

	memory := NewMemoryCache(time.Minute)
	s := New(store, logger.NewTestLogger(t), memory, NewRedisCache(client, time.Minute))
	ctx := context.Background()

	for _, trigger := range []string{"approved", "rejected"} {
		_, err := s.Select(ctx, "org-1", trigger, "F1")
		require.NoError(t, err)
	}
	require.True(t, mr.Exists(CacheKey("org-1", "rejected", "F1")))

	s.Purge(ctx)

	for _, trigger := range []string{"approved", "rejected"} {
		assert.False(t, mr.Exists(CacheKey("org-1", trigger, "F1")))
		_, ok, err := memory.Get(ctx, CacheKey("org-1", trigger, "F1"))
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.True(t, mr.Exists("unrelated"))
}

// gatedStore holds the first load until release is closed.
type gatedStore struct {
	once      sync.Once
	started   chan struct{}
	release   chan struct{}
	cancelled atomic.Bool
	calls     atomic.Int32
}

func (g *gatedStore) FindActiveTemplates(ctx context.Context, orgID, trigger, formID string) ([]models.MailTemplate, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	<-g.release
	if ctx.Err() != nil {
		g.cancelled.Store(true)
		return nil, ctx.Err()
	}
	return twoTemplates(), nil
}

func TestSelect_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	store := &gatedStore{started: make(chan struct{}), release: make(chan struct{})}
	s := New(store, logger.NewTestLogger(t))

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Select(first, "org-1", "approved", "F1")
		firstErr <- err
	}()
	<-store.started

	second := make(chan *models.MailTemplate, 1)
	go func() {
		tmpl, err := s.Select(context.Background(), "org-1", "approved", "F1")
		assert.NoError(t, err)
		second <- tmpl
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(store.release)
	tmpl := <-second
	require.NotNil(t, tmpl)
	assert.Equal(t, "t1", tmpl.ID)
	assert.False(t, store.cancelled.Load())
}

// slowStore returns its answer only after the test has moved on.
type slowStore struct {
	started chan struct{}
	release chan struct{}
}

func (s *slowStore) FindActiveTemplates(ctx context.Context, orgID, trigger, formID string) ([]models.MailTemplate, error) {
	close(s.started)
	<-s.release
	return twoTemplates(), nil
}

func TestSelect_LoadOlderThanInvalidateIsNotCached(t *testing.T) {
	store := &slowStore{started: make(chan struct{}), release: make(chan struct{})}
	memory := NewMemoryCache(time.Minute)
	s := New(store, logger.NewTestLogger(t), memory)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		tmpl, err := s.Select(ctx, "org-1", "approved", "F1")
		assert.NoError(t, err)
		assert.Equal(t, "t1", tmpl.ID)
	}()
	<-store.started

	s.Invalidate(ctx, "org-1", "approved", "F1")
	close(store.release)
	<-done

	_, ok, err := memory.Get(ctx, CacheKey("org-1", "approved", "F1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheKey_PartsCannotCollide(t *testing.T) {
	assert.NotEqual(t, CacheKey("a:b", "c", "f"), CacheKey("a", "b:c", "f"))
	assert.NotEqual(t, CacheKey("o", "t", "f:"), CacheKey("o", "t:", "f"))
	assert.Equal(t, "mail_template:org-1:approved:F1", CacheKey("org-1", "approved", "F1"))
}
