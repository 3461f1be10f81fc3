// Package session maps opaque capability tokens to per-session state.
//
// A session is Active until it has been idle for longer than the timeout,
// after which the next lookup or sweep reclaims it: its store is cleaned,
// its key is wiped and the token stops resolving. Ending a session
// explicitly reclaims it at once. Every lookup that succeeds resets the idle
// clock.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
	"github.com/dmitrijs2005/cytoguard/internal/common"
	"github.com/dmitrijs2005/cytoguard/internal/cryptox"
	"github.com/dmitrijs2005/cytoguard/internal/logging"
	"github.com/dmitrijs2005/cytoguard/internal/securestore"
)

const (
	DefaultTimeout = 2 * time.Hour

	tokenBytes   = 32
	tokenLogLen  = 16
	reasonEnded  = "ended"
	reasonExpiry = "expired"
	reasonClose  = "shutdown"
)

// StoreFactory opens the store backing a session.
type StoreFactory func(ctx context.Context, c securestore.Cipher, rec audit.Recorder) (*securestore.Store, error)

// Metrics receives session lifecycle events.
type Metrics interface {
	SessionOpened()
	SessionClosed(reason string)
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()       {}
func (nopMetrics) SessionClosed(string) {}

// Registry is the token → Record map. All map access and every reclaim happen
// under one mutex, so a sweep can never reclaim a record that a concurrent
// lookup has just renewed.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Record

	log        *audit.Log
	timeout    time.Duration
	now        func() time.Time
	newStore   StoreFactory
	cryptoOpts []cryptox.Option
	logger     logging.Logger
	metrics    Metrics
}

type Option func(*Registry)

// WithTimeout sets the idle timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithStoreFactory(f StoreFactory) Option {
	return func(r *Registry) { r.newStore = f }
}

// WithCryptoOptions is applied to every session's cryptox.Session.
func WithCryptoOptions(opts ...cryptox.Option) Option {
	return func(r *Registry) { r.cryptoOpts = append(r.cryptoOpts, opts...) }
}

func WithLogger(l logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty registry writing to log.
func New(log *audit.Log, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Record),
		log:      log,
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   logging.NopLogger{},
		metrics:  nopMetrics{},
	}
	r.newStore = func(ctx context.Context, c securestore.Cipher, rec audit.Recorder) (*securestore.Store, error) {
		return securestore.Open(ctx, c, rec, securestore.WithLogger(r.logger))
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("module", "session")
	return r
}

// Timeout returns the idle timeout.
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}

// Create starts a session for userID (anonymous when empty) and returns its
// token.
func (r *Registry) Create(ctx context.Context, userID string) (string, error) {
	token, err := common.MakeRandURLToken(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	c, err := cryptox.NewSession(r.cryptoOpts...)
	if err != nil {
		return "", err
	}

	if userID == "" {
		userID = common.AnonymousUser
	}

	now := r.now()
	rec := &Record{
		Token:      token,
		UserID:     userID,
		CreatedAt:  now,
		lastAccess: now,
		crypto:     c,
		newStore:   r.newStore,
		rec:        r.log.ForSession(c.ID()),
	}

	r.mu.Lock()
	r.sessions[token] = rec
	r.mu.Unlock()

	rec.rec.Record(ctx, audit.ActionSessionCreated, map[string]any{
		"session": common.Truncate(token, tokenLogLen),
		"user_id": userID,
	})
	r.metrics.SessionOpened()
	r.logger.Info(ctx, "session created", "session_id", c.ID(), "user_id", userID)

	return token, nil
}

// Get resolves token. An unknown token, or one idle for longer than the
// timeout, yields false; the latter is reclaimed on the spot. A successful
// lookup resets the idle clock.
func (r *Registry) Get(ctx context.Context, token string) (*Record, bool) {
	r.mu.Lock()

	rec, ok := r.sessions[token]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}

	now := r.now()
	if rec.idle(now) > r.timeout {
		delete(r.sessions, token)
		r.mu.Unlock()
		r.reclaim(ctx, rec, reasonExpiry)
		return nil, false
	}

	rec.touch(now)
	r.mu.Unlock()
	return rec, true
}

// Cleanup ends the session behind token. Unknown tokens are ignored. The
// returned error reports an incomplete store cleanup; the session is gone
// either way.
func (r *Registry) Cleanup(ctx context.Context, token string) error {
	r.mu.Lock()
	rec, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.reclaim(ctx, rec, reasonEnded)
}

// SweepExpired reclaims every idle session and returns how many it removed.
// Expired records leave the map under the lock, so a concurrent Get cannot
// renew one that is being torn down; teardown itself runs unlocked.
func (r *Registry) SweepExpired(ctx context.Context) int {
	r.mu.Lock()
	now := r.now()
	var expired []*Record
	for token, rec := range r.sessions {
		if rec.idle(now) > r.timeout {
			delete(r.sessions, token)
			expired = append(expired, rec)
		}
	}
	r.mu.Unlock()

	for _, rec := range expired {
		r.reclaim(ctx, rec, reasonExpiry)
	}

	n := len(expired)
	if n > 0 {
		r.logger.Info(ctx, "expired sessions reclaimed", "count", n)
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepExpired(ctx)
		}
	}
}

// Close reclaims every session. It is meant for process shutdown.
func (r *Registry) Close(ctx context.Context) int {
	r.mu.Lock()
	all := make([]*Record, 0, len(r.sessions))
	for token, rec := range r.sessions {
		delete(r.sessions, token)
		all = append(all, rec)
	}
	r.mu.Unlock()

	for _, rec := range all {
		r.reclaim(ctx, rec, reasonClose)
	}
	return len(all)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// reclaim tears down a record already removed from the map. It must be
// called without r.mu held.
func (r *Registry) reclaim(ctx context.Context, rec *Record, reason string) error {
	if reason == reasonExpiry {
		rec.rec.Record(ctx, audit.ActionSessionExpired, map[string]any{
			"session":     common.Truncate(rec.Token, tokenLogLen),
			"last_access": rec.LastAccess().UTC().Format(time.RFC3339),
		})
	}

	err := rec.teardown(ctx)
	if err != nil {
		r.logger.Warn(ctx, "session cleanup incomplete", "session_id", rec.crypto.ID(), "error", err)
	}

	rec.rec.Record(ctx, audit.ActionSessionCleaned, map[string]any{
		"session": common.Truncate(rec.Token, tokenLogLen),
		"reason":  reason,
	})
	r.metrics.SessionClosed(reason)

	return err
}
