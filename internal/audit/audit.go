// Package audit keeps the append-only record of security-relevant events:
// uploads accepted or rejected, files saved, loaded and cleaned, sessions
// created and reclaimed.
//
// The in-memory Log is the source of truth for post-hoc inspection. An
// optional Sink receives a copy of every entry for durable storage; sink
// failures are logged and never block the caller.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/logging"
	"github.com/google/uuid"
)

// Event names written by the core.
const (
	ActionTempDirCreated        = "temp_dir_created"
	ActionTempDirCleaned        = "temp_dir_cleaned"
	ActionFileValidated         = "file_validated"
	ActionFileRejectedExtension = "file_rejected_extension"
	ActionFileRejectedSize      = "file_rejected_size"
	ActionFileRejectedMime      = "file_rejected_mime"
	ActionFileRejectedSignature = "file_rejected_signature"
	ActionFileRejectedEmpty     = "file_rejected_empty"
	ActionFileSaved             = "file_saved"
	ActionFileLoaded            = "file_loaded"
	ActionFileDeleted           = "file_deleted"
	ActionIntegrityViolation    = "integrity_violation"
	ActionSessionCreated        = "session_created"
	ActionSessionCleaned        = "session_cleaned"
	ActionSessionExpired        = "session_expired"
	ActionAnalysisCompleted     = "analysis_completed"
	ActionAnalysisFailed        = "analysis_failed"
	ActionReportGenerated       = "report_generated"
)

// Entry is one audit record.
type Entry struct {
	ID        string
	Timestamp time.Time
	Action    string
	SessionID string
	Details   map[string]any
}

// Sink persists entries outside the process.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Recorder is anything that accepts audit events. Components depend on this
// rather than on *Log so they can be given a session-tagged view.
type Recorder interface {
	Record(ctx context.Context, action string, details map[string]any)
}

// Log is the process-wide append-only audit log. It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	logger  logging.Logger
	sink    Sink
	now     func() time.Time
}

// Option configures a Log.
type Option func(*Log)

func WithSink(s Sink) Option {
	return func(l *Log) { l.sink = s }
}

func WithLogger(logger logging.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func NewLog(opts ...Option) *Log {
	l := &Log{logger: logging.NopLogger{}, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("module", "audit")
	return l
}

// Append adds an entry tagged with sessionID.
func (l *Log) Append(ctx context.Context, sessionID, action string, details map[string]any) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC(),
		Action:    action,
		SessionID: sessionID,
		Details:   cloneDetails(details),
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	l.logger.Info(ctx, "Security log: "+action, "session_id", sessionID, "entry_id", e.ID)

	if l.sink != nil {
		if err := l.sink.Append(ctx, e); err != nil {
			l.logger.Warn(ctx, "audit sink append failed", "action", action, "error", err)
		}
	}
	return e
}

// ForSession returns a Recorder whose entries carry sessionID.
func (l *Log) ForSession(sessionID string) Recorder {
	return &sessionRecorder{log: l, sessionID: sessionID}
}

// Entries returns a snapshot of all entries in append order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Filter returns the entries with the given action.
func (l *Log) Filter(action string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

type sessionRecorder struct {
	log       *Log
	sessionID string
}

func (r *sessionRecorder) Record(ctx context.Context, action string, details map[string]any) {
	r.log.Append(ctx, r.sessionID, action, details)
}

func cloneDetails(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
