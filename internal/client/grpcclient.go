package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/common"
	gs "github.com/dmitrijs2005/cytoguard/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ErrNoSession is returned by calls that need a session when none is set.
var ErrNoSession = errors.New("no session: start one first")

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	token       string
}

type Option func(*options)

type options struct {
	maxMsg   int
	dialOpts []grpc.DialOption
}

// WithMaxMessageSize bounds sent and received messages.
func WithMaxMessageSize(n int) Option {
	return func(o *options) { o.maxMsg = n }
}

// WithDialOptions appends raw dial options (tests use a bufconn dialer).
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

func NewGRPCClient(endpointURL string, opts ...Option) (*GRPCClient, error) {
	o := &options{maxMsg: 11 << 20}
	for _, opt := range opts {
		opt(o)
	}

	c := &GRPCClient{endpointURL: endpointURL}

	dial := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.sessionTokenInterceptor),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(o.maxMsg),
			grpc.MaxCallRecvMsgSize(o.maxMsg),
		),
	}
	dial = append(dial, o.dialOpts...)

	conn, err := grpc.NewClient(endpointURL, dial...)
	if err != nil {
		return nil, fmt.Errorf("grpc client: %w", err)
	}
	c.conn = conn
	return c, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Token is the current session token, empty before CreateSession.
func (c *GRPCClient) Token() string {
	return c.token
}

// SetToken resumes a session created by an earlier invocation.
func (c *GRPCClient) SetToken(token string) {
	c.token = token
}

func withSessionToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.SessionTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) sessionTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if method != gs.MethodCreateSession && c.token != "" {
		ctx = withSessionToken(ctx, c.token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *GRPCClient) requireSession() error {
	if c.token == "" {
		return ErrNoSession
	}
	return nil
}

// CreateSession opens a server session and remembers its token.
func (c *GRPCClient) CreateSession(ctx context.Context, userID string) (string, error) {
	if userID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, common.UserIDHeaderName, userID)
	}

	out := &wrapperspb.StringValue{}
	if err := c.conn.Invoke(ctx, gs.MethodCreateSession, &emptypb.Empty{}, out); err != nil {
		return "", err
	}

	c.token = out.GetValue()
	return c.token, nil
}

func (c *GRPCClient) Upload(ctx context.Context, filename, mime string, data []byte) (*StoredFile, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	ctx = metadata.AppendToOutgoingContext(ctx,
		common.FilenameHeaderName, filename,
		common.MimeHeaderName, mime,
	)

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, gs.MethodUpload, wrapperspb.Bytes(data), out); err != nil {
		return nil, err
	}

	f := out.GetFields()
	return &StoredFile{
		Name:      f["file"].GetStringValue(),
		Hash:      f["hash"].GetStringValue(),
		Encrypted: f["encrypted"].GetBoolValue(),
	}, nil
}

// Analyze runs the model on a stored file. The server deletes the file
// afterwards whatever the outcome.
func (c *GRPCClient) Analyze(ctx context.Context, name string) (*Diagnosis, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, gs.MethodAnalyze, wrapperspb.String(name), out); err != nil {
		return nil, err
	}

	f := out.GetFields()
	d := &Diagnosis{
		Label:        f["label"].GetStringValue(),
		Confidence:   f["confidence"].GetNumberValue(),
		ImageName:    f["image_name"].GetStringValue(),
		HistoryIndex: int(f["history_index"].GetNumberValue()),
		Timestamp:    parseTime(f["timestamp"].GetStringValue()),
	}
	for _, v := range f["probabilities"].GetListValue().GetValues() {
		d.Probabilities = append(d.Probabilities, v.GetNumberValue())
	}
	return d, nil
}

func (c *GRPCClient) History(ctx context.Context) ([]HistoryItem, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	out := &structpb.ListValue{}
	if err := c.conn.Invoke(ctx, gs.MethodHistory, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		f := v.GetStructValue().GetFields()
		items = append(items, HistoryItem{
			Timestamp:  parseTime(f["timestamp"].GetStringValue()),
			ImageName:  f["image_name"].GetStringValue(),
			Diagnosis:  f["diagnosis"].GetStringValue(),
			Confidence: f["confidence"].GetNumberValue(),
		})
	}
	return items, nil
}

func (c *GRPCClient) ClearHistory(ctx context.Context) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	return c.conn.Invoke(ctx, gs.MethodClearHistory, &emptypb.Empty{}, &emptypb.Empty{})
}

// Report fetches the PDF for a history entry; a negative index means the
// latest analysis.
func (c *GRPCClient) Report(ctx context.Context, index int) (*Report, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	var header metadata.MD
	out := &wrapperspb.BytesValue{}
	if err := c.conn.Invoke(ctx, gs.MethodReport, wrapperspb.Int32(int32(index)), out, grpc.Header(&header)); err != nil {
		return nil, err
	}

	r := &Report{PDF: out.GetValue()}
	if v := header.Get(common.ReportKeyHeaderName); len(v) > 0 {
		r.Key = v[0]
	}
	if v := header.Get(common.ReportURLHeaderName); len(v) > 0 {
		r.URL = v[0]
	}
	return r, nil
}

// EndSession asks the server to reclaim the session and forgets the token.
func (c *GRPCClient) EndSession(ctx context.Context) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	if err := c.conn.Invoke(ctx, gs.MethodEndSession, &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
		return err
	}
	c.token = ""
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
