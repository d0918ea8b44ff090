package hostbridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
	"github.com/dmitrijs2005/gophshare/internal/client/orchestrator"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// tokenKey is the metadata key carrying the bridge token.
const tokenKey = "bridge_token"

// Coordinator is the orchestrator surface the bridge needs.
type Coordinator interface {
	Submit(ctx context.Context, sub orchestrator.Submission) (string, error)
	Subscribe() (<-chan models.Outcome, func())
}

// Gate is the completion dispatcher surface the bridge needs.
type Gate interface {
	RegisterCancelable(fn func()) (unregister func(), err error)
}

type Server struct {
	address string
	coord   Coordinator
	gate    Gate
	token   string
	logger  logging.Logger
}

// NewServer builds a bridge on address. An empty token disables the token
// check.
func NewServer(address string, coord Coordinator, gate Gate, token string, l logging.Logger) *Server {
	return &Server{
		address: address,
		coord:   coord,
		gate:    gate,
		token:   token,
		logger:  l.With("module", "hostbridge"),
	}
}

// Register adds the bridge service to srv.
func (s *Server) Register(srv *grpc.Server) {
	srv.RegisterService(&serviceDesc, s)
}

func (s *Server) newGRPCServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.tokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamTokenInterceptor),
	)
	s.Register(srv)
	return srv
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping host bridge...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting host bridge", "address", lis.Addr().String())
	return srv.Serve(lis)
}

func (s *Server) authorized(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	var got string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(tokenKey); len(values) > 0 {
			got = values[0]
		}
	}
	if got == "" {
		return status.Error(codes.Unauthenticated, "missing token")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func (s *Server) tokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if err := s.authorized(ctx); err != nil {
		s.logger.Warn(ctx, "rejected bridge call", "method", info.FullMethod)
		return nil, err
	}
	return handler(ctx, req)
}

func (s *Server) streamTokenInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := s.authorized(ss.Context()); err != nil {
		s.logger.Warn(ss.Context(), "rejected bridge stream", "method", info.FullMethod)
		return err
	}
	return handler(srv, ss)
}

func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	sub, err := structToSubmission(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	id, err := s.coord.Submit(ctx, sub)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(id), nil
}

// WaitIdle registers the completion callback and returns once it fired.
// If the caller gives up first the callback is withdrawn so another caller
// can wait.
func (s *Server) WaitIdle(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	idle := make(chan struct{})
	unregister, err := s.gate.RegisterCancelable(func() { close(idle) })
	if err != nil {
		return nil, toStatus(err)
	}

	select {
	case <-idle:
		return &emptypb.Empty{}, nil
	case <-ctx.Done():
		unregister()
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

func (s *Server) Outcomes(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	ch, unsubscribe := s.coord.Subscribe()
	defer unsubscribe()

	// Headers tell the client the subscription is in place.
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case out, ok := <-ch:
			if !ok {
				return status.Error(codes.ResourceExhausted, "subscriber dropped")
			}
			msg, err := outcomeToStruct(out)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidRequest), errors.Is(err, common.ErrFileTooLarge):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrMissingPreference):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrCallbackPending):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
