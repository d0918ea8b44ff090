package hostbridge

import (
	"context"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/orchestrator"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is the host side of the bridge.
type Client struct {
	conn  grpc.ClientConnInterface
	close func() error
	token string
}

// Dial connects to a bridge listening on a local address.
func Dial(addr, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, close: conn.Close, token: token}, nil
}

// NewClient wraps an existing connection. Close does not close it.
func NewClient(conn grpc.ClientConnInterface, token string) *Client {
	return &Client{conn: conn, close: func() error { return nil }, token: token}
}

func (c *Client) Close() error { return c.close() }

func (c *Client) withToken(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, tokenKey, c.token)
}

func (c *Client) Submit(ctx context.Context, sub orchestrator.Submission) (string, error) {
	in, err := submissionToStruct(sub)
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(c.withToken(ctx), methodSubmit, in, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// WaitIdle blocks until every outstanding request resolved.
func (c *Client) WaitIdle(ctx context.Context) error {
	return c.conn.Invoke(c.withToken(ctx), methodWaitIdle, &emptypb.Empty{}, new(emptypb.Empty))
}

// OutcomeStream yields outcomes until the context ends.
type OutcomeStream struct {
	stream grpc.ClientStream
}

func (s *OutcomeStream) Recv() (models.Outcome, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return models.Outcome{}, err
	}
	return structToOutcome(msg), nil
}

// Outcomes opens the outcome stream. It returns once the server has
// subscribed, so every outcome published afterwards is delivered.
func (c *Client) Outcomes(ctx context.Context) (*OutcomeStream, error) {
	stream, err := c.conn.NewStream(c.withToken(ctx), &serviceDesc.Streams[0], methodOutcomes)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	if _, err := stream.Header(); err != nil {
		return nil, err
	}
	return &OutcomeStream{stream: stream}, nil
}
