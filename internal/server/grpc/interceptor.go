package grpc

import (
	"context"

	"github.com/dmitrijs2005/cytoguard/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const tokenKey ctxKey = "session_token"

// sessionInterceptor requires a live session for every method except
// CreateSession and passes its token on in the context.
func (s *GRPCServer) sessionInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if info.FullMethod == MethodCreateSession {
		return handler(ctx, req)
	}

	token := firstMetadata(ctx, common.SessionTokenHeaderName)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	if _, ok := s.sessions.Get(ctx, token); !ok {
		return nil, status.Error(codes.Unauthenticated, "session expired or unknown")
	}

	ctx = context.WithValue(ctx, tokenKey, token)

	return handler(ctx, req)
}

func tokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
