// Package triage runs the upload → analyze → report workflow on top of the
// session registry. It is the only consumer of the core that talks to the
// model and the report renderer.
package triage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
	"github.com/dmitrijs2005/cytoguard/internal/common"
	"github.com/dmitrijs2005/cytoguard/internal/inference"
	"github.com/dmitrijs2005/cytoguard/internal/logging"
	"github.com/dmitrijs2005/cytoguard/internal/report"
	"github.com/dmitrijs2005/cytoguard/internal/securestore"
	"github.com/dmitrijs2005/cytoguard/internal/session"
	"github.com/dmitrijs2005/cytoguard/internal/validation"
)

// OutcomeAccepted labels uploads that passed validation.
const OutcomeAccepted = "accepted"

// LatestReport selects the most recent history entry in Report.
const LatestReport = -1

// Metrics receives workflow events.
type Metrics interface {
	UploadValidated(outcome string, size int)
	IntegrityViolation()
	SecureDeleteFailed()
	AnalysisCompleted(label string, d time.Duration)
	AnalysisFailed()
	ReportGenerated(archived bool)
}

type nopMetrics struct{}

func (nopMetrics) UploadValidated(string, int)             {}
func (nopMetrics) IntegrityViolation()                     {}
func (nopMetrics) SecureDeleteFailed()                     {}
func (nopMetrics) AnalysisCompleted(string, time.Duration) {}
func (nopMetrics) AnalysisFailed()                         {}
func (nopMetrics) ReportGenerated(bool)                    {}

// Analysis is the result of one Analyze call.
type Analysis struct {
	inference.Diagnosis
	ImageName    string
	HistoryIndex int
}

// Report is a rendered report and, when archived, where it was stored.
type Report struct {
	PDF        []byte
	ArchiveKey string
	URL        string
}

type Service struct {
	registry  *session.Registry
	validator *validation.Validator
	predictor inference.Predictor
	archiver  report.Archiver
	logger    logging.Logger
	metrics   Metrics
	now       func() time.Time
}

type Option func(*Service)

// WithArchiver stores every generated report.
func WithArchiver(a report.Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(r *session.Registry, v *validation.Validator, p inference.Predictor, opts ...Option) *Service {
	s := &Service{
		registry:  r,
		validator: v,
		predictor: p,
		logger:    logging.NopLogger{},
		metrics:   nopMetrics{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("module", "triage")
	return s
}

// StartSession creates a session and returns its token.
func (s *Service) StartSession(ctx context.Context, userID string) (string, error) {
	return s.registry.Create(ctx, userID)
}

// EndSession reclaims the session at once. Ending an unknown session is not
// an error.
func (s *Service) EndSession(ctx context.Context, token string) error {
	if err := s.registry.Cleanup(ctx, token); err != nil {
		s.logger.Warn(ctx, "session cleanup incomplete", "error", err)
	}
	return nil
}

func (s *Service) session(ctx context.Context, token string) (*session.Record, error) {
	rec, ok := s.registry.Get(ctx, token)
	if !ok {
		return nil, common.ErrSessionNotFound
	}
	return rec, nil
}

// Upload validates u and stores it encrypted in the session's store. A
// rejected upload yields a *validation.Rejection and nothing is written.
func (s *Service) Upload(ctx context.Context, token string, u validation.Upload) (*securestore.StoredFile, error) {
	rec, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.validator.For(rec.Recorder()).Validate(ctx, u); err != nil {
		var rej *validation.Rejection
		if errors.As(err, &rej) {
			s.metrics.UploadValidated(rejectionOutcome(rej), len(u.Data))
		}
		return nil, err
	}
	s.metrics.UploadValidated(OutcomeAccepted, len(u.Data))

	store, err := rec.EnsureStore(ctx)
	if err != nil {
		return nil, err
	}

	f, err := store.Save(ctx, u, true)
	if err != nil {
		return nil, err
	}
	rec.NoteUpload(filepath.Base(f.Path), u.Filename)

	return f, nil
}

// Analyze loads the stored file at path, given in full or as a bare name,
// hands it to the model and records the diagnosis in the session history.
// The stored file is securely deleted whatever the outcome.
func (s *Service) Analyze(ctx context.Context, token, path string) (*Analysis, error) {
	rec, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}

	store := rec.Store()
	if store == nil {
		return nil, fmt.Errorf("%w: nothing uploaded", common.ErrStore)
	}

	name, _ := rec.TakeUpload(filepath.Base(path))
	defer s.discard(ctx, store, path)

	image, err := store.Load(ctx, path, true)
	if err != nil {
		if errors.Is(err, common.ErrIntegrity) {
			s.metrics.IntegrityViolation()
		}
		return nil, err
	}
	defer common.WipeByteArray(image)

	started := s.now()
	probs, err := s.predictor.Predict(ctx, image)
	if err != nil {
		s.metrics.AnalysisFailed()
		rec.Recorder().Record(ctx, audit.ActionAnalysisFailed, map[string]any{
			"filename": name,
			"error":    err.Error(),
		})
		s.logger.Error(ctx, "prediction failed", "error", err)
		if !errors.Is(err, common.ErrInference) {
			err = fmt.Errorf("%w: %v", common.ErrInference, err)
		}
		return nil, err
	}

	d := inference.Diagnose(probs, s.predictor.Labels(), s.now())
	s.metrics.AnalysisCompleted(d.Label, d.Timestamp.Sub(started))

	idx := rec.AppendHistory(session.HistoryEntry{
		Timestamp:  d.Timestamp,
		ImageName:  name,
		Diagnosis:  d.Label,
		Confidence: d.Confidence,
	})

	rec.Recorder().Record(ctx, audit.ActionAnalysisCompleted, map[string]any{
		"filename":   name,
		"diagnosis":  d.Label,
		"confidence": d.Confidence,
	})

	return &Analysis{Diagnosis: d, ImageName: name, HistoryIndex: idx}, nil
}

func (s *Service) discard(ctx context.Context, store *securestore.Store, path string) {
	if err := store.SecureDelete(ctx, path); err != nil {
		s.metrics.SecureDeleteFailed()
		s.logger.Warn(ctx, "stored file not securely deleted", "error", err)
	}
}

// Report renders the history entry at index, or the latest one for
// LatestReport. Archiving is best effort: the PDF is returned even when the
// upload fails.
func (s *Service) Report(ctx context.Context, token string, index int) (*Report, error) {
	rec, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}

	history := rec.History()
	if index == LatestReport {
		index = len(history) - 1
	}
	if index < 0 || index >= len(history) {
		return nil, fmt.Errorf("%w: history entry %d", common.ErrorNotFound, index)
	}
	h := history[index]

	pdf, err := report.Generate(report.Input{
		Label:      h.Diagnosis,
		Confidence: h.Confidence,
		Timestamp:  h.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	out := &Report{PDF: pdf}
	if s.archiver != nil {
		key, url, err := s.archiver.Archive(ctx, pdf)
		if err != nil {
			s.logger.Warn(ctx, "report not archived", "error", err)
		}
		out.ArchiveKey, out.URL = key, url
	}
	s.metrics.ReportGenerated(out.ArchiveKey != "")

	rec.Recorder().Record(ctx, audit.ActionReportGenerated, map[string]any{
		"diagnosis": h.Diagnosis,
		"archived":  out.ArchiveKey != "",
	})

	return out, nil
}

func (s *Service) History(ctx context.Context, token string) ([]session.HistoryEntry, error) {
	rec, err := s.session(ctx, token)
	if err != nil {
		return nil, err
	}
	return rec.History(), nil
}

func (s *Service) ClearHistory(ctx context.Context, token string) error {
	rec, err := s.session(ctx, token)
	if err != nil {
		return err
	}
	rec.ClearHistory()
	return nil
}

func rejectionOutcome(r *validation.Rejection) string {
	switch {
	case errors.Is(r, validation.ErrUnsupportedExtension):
		return "extension"
	case errors.Is(r, validation.ErrFileTooLarge):
		return "size"
	case errors.Is(r, validation.ErrUnsupportedMimeType):
		return "mime"
	case errors.Is(r, validation.ErrSignatureMismatch):
		return "signature"
	default:
		return "empty"
	}
}
