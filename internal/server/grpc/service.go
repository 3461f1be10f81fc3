package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cytoguard.v1.Triage"

// Full method names.
const (
	MethodCreateSession = "/" + ServiceName + "/CreateSession"
	MethodUpload        = "/" + ServiceName + "/Upload"
	MethodAnalyze       = "/" + ServiceName + "/Analyze"
	MethodHistory       = "/" + ServiceName + "/History"
	MethodClearHistory  = "/" + ServiceName + "/ClearHistory"
	MethodReport        = "/" + ServiceName + "/Report"
	MethodEndSession    = "/" + ServiceName + "/EndSession"
)

// TriageServer is the server API. Messages are protobuf well-known types so
// no generated code is needed on either side.
type TriageServer interface {
	CreateSession(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Upload(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	Analyze(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	History(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ClearHistory(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Report(context.Context, *wrapperspb.Int32Value) (*wrapperspb.BytesValue, error)
	EndSession(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// unary builds the method descriptor for one RPC.
func unary[Req any](name string, call func(TriageServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TriageServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TriageServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// TriageServiceDesc describes cytoguard.v1.Triage for grpc.Server.RegisterService.
var TriageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TriageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateSession", func(s TriageServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.CreateSession(ctx, in)
		}),
		unary("Upload", func(s TriageServer, ctx context.Context, in *wrapperspb.BytesValue) (any, error) {
			return s.Upload(ctx, in)
		}),
		unary("Analyze", func(s TriageServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.Analyze(ctx, in)
		}),
		unary("History", func(s TriageServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.History(ctx, in)
		}),
		unary("ClearHistory", func(s TriageServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.ClearHistory(ctx, in)
		}),
		unary("Report", func(s TriageServer, ctx context.Context, in *wrapperspb.Int32Value) (any, error) {
			return s.Report(ctx, in)
		}),
		unary("EndSession", func(s TriageServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.EndSession(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cytoguard/v1/triage",
}
