package session

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
	"github.com/dmitrijs2005/cytoguard/internal/common"
	"github.com/dmitrijs2005/cytoguard/internal/securestore"
	"github.com/dmitrijs2005/cytoguard/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingMetrics struct {
	mu     sync.Mutex
	opened int
	closed map[string]int
}

func (m *countingMetrics) SessionOpened() {
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
}

func (m *countingMetrics) SessionClosed(reason string) {
	m.mu.Lock()
	if m.closed == nil {
		m.closed = map[string]int{}
	}
	m.closed[reason]++
	m.mu.Unlock()
}

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, opts ...Option) (*Registry, *audit.Log, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	log := audit.NewLog()
	base := t.TempDir()
	opts = append([]Option{
		WithClock(clock.Now),
		WithStoreFactory(func(ctx context.Context, c securestore.Cipher, rec audit.Recorder) (*securestore.Store, error) {
			return securestore.Open(ctx, c, rec, securestore.WithBaseDir(base))
		}),
	}, opts...)
	r := New(log, opts...)
	t.Cleanup(func() { r.Close(context.Background()) })
	return r, log, clock
}

func TestCreate(t *testing.T) {
	m := &countingMetrics{}
	r, log, _ := newRegistry(t, WithMetrics(m))
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	rec, ok := r.Get(ctx, token)
	require.True(t, ok)
	assert.Equal(t, common.AnonymousUser, rec.UserID)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.Equal(t, t0, rec.LastAccess())
	assert.Nil(t, rec.Store(), "store is opened lazily")

	created := log.Filter(audit.ActionSessionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, token[:16], created[0].Details["session"])
	assert.Equal(t, common.AnonymousUser, created[0].Details["user_id"])
	assert.Equal(t, rec.Crypto().ID(), created[0].SessionID)
	assert.Equal(t, 1, m.opened)
}

func TestCreate_DistinctTokensAndKeys(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	a, err := r.Create(ctx, "alice")
	require.NoError(t, err)
	b, err := r.Create(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	ra, _ := r.Get(ctx, a)
	rb, _ := r.Get(ctx, b)
	assert.Equal(t, "alice", ra.UserID)
	assert.NotEqual(t, ra.Crypto().ID(), rb.Crypto().ID())

	ct, err := ra.Crypto().Encrypt([]byte("slide"))
	require.NoError(t, err)
	_, err = rb.Crypto().Decrypt(ct)
	assert.ErrorIs(t, err, common.ErrCrypto)
}

func TestGet_Unknown(t *testing.T) {
	r, _, _ := newRegistry(t)
	rec, ok := r.Get(context.Background(), "nope")
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestGet_SlidingExpiry(t *testing.T) {
	r, log, clock := newRegistry(t)
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)

	rec, ok := r.Get(ctx, token)
	require.True(t, ok)
	store, err := rec.EnsureStore(ctx)
	require.NoError(t, err)
	_, err = store.Save(ctx, validation.Upload{Filename: "scan.png", Data: append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 100)...)}, true)
	require.NoError(t, err)

	clock.Advance(time.Hour + 59*time.Minute)
	rec, ok = r.Get(ctx, token)
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour+59*time.Minute), rec.LastAccess())

	clock.Advance(time.Hour + 59*time.Minute)
	_, ok = r.Get(ctx, token)
	require.True(t, ok, "within 2h of the last access")

	clock.Advance(2*time.Hour + time.Minute)
	rec, ok = r.Get(ctx, token)
	assert.False(t, ok)
	assert.Nil(t, rec)

	_, err = os.Stat(store.Dir())
	assert.True(t, errors.Is(err, os.ErrNotExist), "owned store cleaned up")
	assert.True(t, store.Closed())
	assert.Zero(t, r.Len())
	assert.Len(t, log.Filter(audit.ActionSessionExpired), 1)
	assert.Len(t, log.Filter(audit.ActionSessionCleaned), 1)
}

func TestGet_ExactTimeoutStillActive(t *testing.T) {
	r, _, clock := newRegistry(t)
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)

	clock.Advance(DefaultTimeout)
	_, ok := r.Get(ctx, token)
	assert.True(t, ok)
}

func TestCleanup(t *testing.T) {
	m := &countingMetrics{}
	r, log, _ := newRegistry(t, WithMetrics(m))
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)
	rec, _ := r.Get(ctx, token)
	store, err := rec.EnsureStore(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Cleanup(ctx, token))
	_, ok := r.Get(ctx, token)
	assert.False(t, ok)

	_, err = os.Stat(store.Dir())
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = rec.Crypto().Encrypt([]byte("x"))
	assert.ErrorIs(t, err, common.ErrCrypto, "key wiped")

	_, err = rec.EnsureStore(ctx)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)

	// idempotent
	require.NoError(t, r.Cleanup(ctx, token))
	assert.Len(t, log.Filter(audit.ActionSessionCleaned), 1)
	assert.Empty(t, log.Filter(audit.ActionSessionExpired), "explicit end skips expiry")
	assert.Equal(t, 1, m.closed["ended"])
}

func TestCleanup_WithoutStore(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)
	assert.NoError(t, r.Cleanup(ctx, token))
	assert.Zero(t, r.Len())
}

func TestSweepExpired(t *testing.T) {
	r, _, clock := newRegistry(t)
	ctx := context.Background()

	stale, err := r.Create(ctx, "")
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)
	fresh, err := r.Create(ctx, "")
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, r.SweepExpired(ctx))

	_, ok := r.Get(ctx, stale)
	assert.False(t, ok)
	_, ok = r.Get(ctx, fresh)
	assert.True(t, ok)

	assert.Zero(t, r.SweepExpired(ctx))
}

func TestRun_SweepsUntilCancelled(t *testing.T) {
	r, _, clock := newRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := r.Create(ctx, "")
	require.NoError(t, err)
	clock.Advance(3 * time.Hour)

	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClose(t *testing.T) {
	m := &countingMetrics{}
	r, _, _ := newRegistry(t, WithMetrics(m))
	ctx := context.Background()

	var stores []*securestore.Store
	for i := 0; i < 3; i++ {
		token, err := r.Create(ctx, "")
		require.NoError(t, err)
		rec, _ := r.Get(ctx, token)
		s, err := rec.EnsureStore(ctx)
		require.NoError(t, err)
		stores = append(stores, s)
	}

	assert.Equal(t, 3, r.Close(ctx))
	assert.Zero(t, r.Len())
	for _, s := range stores {
		assert.True(t, s.Closed())
	}
	assert.Equal(t, 3, m.closed["shutdown"])
}

func TestEnsureStore_OpensOnce(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)
	rec, _ := r.Get(ctx, token)

	a, err := rec.EnsureStore(ctx)
	require.NoError(t, err)
	b, err := rec.EnsureStore(ctx)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestEnsureStore_FactoryError(t *testing.T) {
	boom := errors.New("disk gone")
	r, _, _ := newRegistry(t, WithStoreFactory(func(context.Context, securestore.Cipher, audit.Recorder) (*securestore.Store, error) {
		return nil, boom
	}))
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)
	rec, _ := r.Get(ctx, token)

	_, err = rec.EnsureStore(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestHistory(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)
	rec, _ := r.Get(ctx, token)

	assert.Equal(t, 0, rec.AppendHistory(HistoryEntry{ImageName: "a.png", Diagnosis: "Normal", Confidence: 91}))
	assert.Equal(t, 1, rec.AppendHistory(HistoryEntry{ImageName: "b.png", Diagnosis: "Cancerous", Confidence: 77}))

	h := rec.History()
	require.Len(t, h, 2)
	assert.Equal(t, "a.png", h[0].ImageName)

	h[0].ImageName = "mutated"
	assert.Equal(t, "a.png", rec.History()[0].ImageName)

	rec.ClearHistory()
	assert.Empty(t, rec.History())
}

func TestConcurrentAccess(t *testing.T) {
	r, _, clock := newRegistry(t)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 4; i++ {
		tok, err := r.Create(ctx, "")
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if rec, ok := r.Get(ctx, tokens[(i+j)%len(tokens)]); ok {
					rec.AppendHistory(HistoryEntry{Diagnosis: "Normal"})
				}
				if j%10 == 0 {
					r.SweepExpired(ctx)
					clock.Advance(time.Second)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, len(tokens), r.Len())
}

func TestUploadNames(t *testing.T) {
	r, _, _ := newRegistry(t)
	ctx := context.Background()

	token, err := r.Create(ctx, "")
	require.NoError(t, err)
	rec, _ := r.Get(ctx, token)

	rec.NoteUpload("/tmp/x/abc.png.enc", "scan.png")

	name, ok := rec.TakeUpload("/tmp/x/abc.png.enc")
	assert.True(t, ok)
	assert.Equal(t, "scan.png", name)

	_, ok = rec.TakeUpload("/tmp/x/abc.png.enc")
	assert.False(t, ok)
}

// gatedSink blocks every Append while armed until release is closed.
type gatedSink struct {
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedSink() *gatedSink {
	return &gatedSink{armed: make(chan struct{}), entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedSink) Append(context.Context, audit.Entry) error {
	select {
	case <-s.armed:
	default:
		return nil
	}
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func TestCleanup_DoesNotBlockOtherSessions(t *testing.T) {
	sink := newGatedSink()
	base := t.TempDir()
	r := New(audit.NewLog(audit.WithSink(sink)), WithStoreFactory(func(ctx context.Context, c securestore.Cipher, rec audit.Recorder) (*securestore.Store, error) {
		return securestore.Open(ctx, c, rec, securestore.WithBaseDir(base))
	}))
	ctx := context.Background()

	a, err := r.Create(ctx, "a")
	require.NoError(t, err)
	b, err := r.Create(ctx, "b")
	require.NoError(t, err)

	recA, ok := r.Get(ctx, a)
	require.True(t, ok)
	store, err := recA.EnsureStore(ctx)
	require.NoError(t, err)
	_, err = store.Save(ctx, validation.Upload{Filename: "scan.png", Data: append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 100)...)}, true)
	require.NoError(t, err)

	close(sink.armed)
	cleaned := make(chan error, 1)
	go func() { cleaned <- r.Cleanup(ctx, a) }()

	select {
	case <-sink.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup never reached the audit sink")
	}

	got := make(chan bool, 1)
	go func() {
		_, ok := r.Get(ctx, b)
		got <- ok
	}()
	select {
	case ok := <-got:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Get for another session blocked behind a cleanup")
	}

	_, ok = r.Get(ctx, a)
	assert.False(t, ok, "session leaves the registry before teardown finishes")

	close(sink.release)
	require.NoError(t, <-cleaned)
	assert.Equal(t, 1, r.Len())
	r.Close(ctx)
}
