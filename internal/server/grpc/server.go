package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/cytoguard/internal/logging"
	"github.com/dmitrijs2005/cytoguard/internal/session"
	"github.com/dmitrijs2005/cytoguard/internal/triage"
	"google.golang.org/grpc"
)

// envelope leaves room for metadata and framing around an upload.
const envelope = 64 << 10

// SessionResolver looks up live sessions.
type SessionResolver interface {
	Get(ctx context.Context, token string) (*session.Record, bool)
}

type GRPCServer struct {
	address     string
	triage      *triage.Service
	sessions    SessionResolver
	logger      logging.Logger
	maxRecvSize int
}

func NewGRPCServer(a string, l logging.Logger, svc *triage.Service, sessions SessionResolver, maxUpload int64) *GRPCServer {
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		triage:      svc,
		sessions:    sessions,
		maxRecvSize: int(maxUpload) + envelope,
	}
}

// Run serves until ctx is done, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.sessionInterceptor),
		grpc.MaxRecvMsgSize(s.maxRecvSize),
	)

	srv.RegisterService(&TriageServiceDesc, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
