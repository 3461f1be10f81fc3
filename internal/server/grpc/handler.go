package grpc

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/common"
	"github.com/dmitrijs2005/cytoguard/internal/session"
	"github.com/dmitrijs2005/cytoguard/internal/triage"
	"github.com/dmitrijs2005/cytoguard/internal/validation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) CreateSession(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {

	token, err := s.triage.StartSession(ctx, firstMetadata(ctx, common.UserIDHeaderName))
	if err != nil {
		s.logger.Error(ctx, "session not created", "error", err)
		return nil, toStatus(err)
	}

	return wrapperspb.String(token), nil
}

func (s *GRPCServer) Upload(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {

	token, ok := tokenFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	u := validation.Upload{
		Data:     req.GetValue(),
		Filename: firstMetadata(ctx, common.FilenameHeaderName),
		MIME:     firstMetadata(ctx, common.MimeHeaderName),
	}

	f, err := s.triage.Upload(ctx, token, u)
	if err != nil {
		s.logger.Info(ctx, "upload refused", "filename", u.Filename, "error", err)
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]any{
		"file":      filepath.Base(f.Path),
		"hash":      f.ContentHash,
		"encrypted": f.Encrypted,
	})
}

func (s *GRPCServer) Analyze(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {

	token, ok := tokenFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	res, err := s.triage.Analyze(ctx, token, req.GetValue())
	if err != nil {
		s.logger.Error(ctx, "analysis failed", "error", err)
		return nil, toStatus(err)
	}

	probs := make([]any, len(res.Probabilities))
	for i, p := range res.Probabilities {
		probs[i] = p
	}

	return structpb.NewStruct(map[string]any{
		"label":         res.Label,
		"confidence":    res.Confidence,
		"probabilities": probs,
		"timestamp":     res.Timestamp.UTC().Format(time.RFC3339),
		"image_name":    res.ImageName,
		"history_index": res.HistoryIndex,
	})
}

func (s *GRPCServer) History(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {

	token, ok := tokenFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	history, err := s.triage.History(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]any, len(history))
	for i, h := range history {
		items[i] = historyItem(h)
	}

	return structpb.NewList(items)
}

func (s *GRPCServer) ClearHistory(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {

	token, ok := tokenFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	if err := s.triage.ClearHistory(ctx, token); err != nil {
		return nil, toStatus(err)
	}

	return &emptypb.Empty{}, nil
}

// Report returns the PDF for a history entry; a negative index means the
// latest. When the report was archived its key and link travel as headers.
func (s *GRPCServer) Report(ctx context.Context, req *wrapperspb.Int32Value) (*wrapperspb.BytesValue, error) {

	token, ok := tokenFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	index := int(req.GetValue())
	if index < 0 {
		index = triage.LatestReport
	}

	r, err := s.triage.Report(ctx, token, index)
	if err != nil {
		return nil, toStatus(err)
	}

	if r.ArchiveKey != "" {
		md := metadata.Pairs(common.ReportKeyHeaderName, r.ArchiveKey, common.ReportURLHeaderName, r.URL)
		if err := grpc.SetHeader(ctx, md); err != nil {
			s.logger.Warn(ctx, "report headers not sent", "error", err)
		}
	}

	return wrapperspb.Bytes(r.PDF), nil
}

func (s *GRPCServer) EndSession(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {

	token, ok := tokenFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	if err := s.triage.EndSession(ctx, token); err != nil {
		return nil, toStatus(err)
	}

	return &emptypb.Empty{}, nil
}

func historyItem(h session.HistoryEntry) map[string]any {
	return map[string]any{
		"timestamp":  h.Timestamp.UTC().Format(time.RFC3339),
		"image_name": h.ImageName,
		"diagnosis":  h.Diagnosis,
		"confidence": h.Confidence,
	}
}
