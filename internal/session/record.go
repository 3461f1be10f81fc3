package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
	"github.com/dmitrijs2005/cytoguard/internal/common"
	"github.com/dmitrijs2005/cytoguard/internal/cryptox"
	"github.com/dmitrijs2005/cytoguard/internal/securestore"
)

// HistoryEntry is one completed analysis, as shown in the history panel.
type HistoryEntry struct {
	Timestamp  time.Time
	ImageName  string
	Diagnosis  string
	Confidence float64
}

// Record is the state of one session. Its exported fields never change after
// creation; everything else is guarded by the record's own mutex.
type Record struct {
	Token     string
	UserID    string
	CreatedAt time.Time

	mu         sync.Mutex
	lastAccess time.Time
	crypto     *cryptox.Session
	store      *securestore.Store
	newStore   StoreFactory
	rec        audit.Recorder
	history    []HistoryEntry
	uploads    map[string]string
	closed     bool
}

// LastAccess returns the time of the last successful lookup.
func (r *Record) LastAccess() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAccess
}

// Crypto returns the session's key material.
func (r *Record) Crypto() *cryptox.Session {
	return r.crypto
}

// Recorder returns an audit recorder tagged with the session's identifier.
func (r *Record) Recorder() audit.Recorder {
	return r.rec
}

// EnsureStore returns the session's store, opening it on first use.
func (r *Record) EnsureStore(ctx context.Context) (*securestore.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, common.ErrSessionNotFound
	}
	if r.store != nil {
		return r.store, nil
	}

	s, err := r.newStore(ctx, r.crypto, r.rec)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	r.store = s
	return s, nil
}

// Store returns the session's store or nil if none has been opened.
func (r *Record) Store() *securestore.Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store
}

// NoteUpload remembers the client's name for a stored file.
func (r *Record) NoteUpload(path, filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploads == nil {
		r.uploads = make(map[string]string)
	}
	r.uploads[path] = filename
}

// TakeUpload returns and forgets the name noted for path.
func (r *Record) TakeUpload(path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.uploads[path]
	delete(r.uploads, path)
	return name, ok
}

func (r *Record) AppendHistory(e HistoryEntry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, e)
	return len(r.history) - 1
}

// History returns a copy of the session's analyses, oldest first.
func (r *Record) History() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HistoryEntry, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Record) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

func (r *Record) touch(now time.Time) {
	r.mu.Lock()
	r.lastAccess = now
	r.mu.Unlock()
}

func (r *Record) idle(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Sub(r.lastAccess)
}

// teardown cleans the store and wipes the key. The record is unusable afterwards.
func (r *Record) teardown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.history = nil
	r.uploads = nil

	var err error
	if r.store != nil {
		err = r.store.Cleanup(ctx)
	}
	r.crypto.Destroy()
	return err
}
