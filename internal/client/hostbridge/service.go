// Package hostbridge exposes the coordinator to the host application over
// gRPC. Messages are protobuf well-known types, so no generated code is
// involved: Submit takes a Struct and answers the request id, WaitIdle
// blocks until every outstanding request resolved, and Outcomes streams one
// Struct per finished request.
package hostbridge

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "gophshare.hostbridge.v1.HostBridge"

const (
	methodSubmit   = "/" + serviceName + "/Submit"
	methodWaitIdle = "/" + serviceName + "/WaitIdle"
	methodOutcomes = "/" + serviceName + "/Outcomes"
)

// bridgeServer is the handler set registered under serviceDesc.
type bridgeServer interface {
	Submit(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	WaitIdle(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Outcomes(*emptypb.Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*bridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "WaitIdle", Handler: waitIdleHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Outcomes", Handler: outcomesHandler, ServerStreams: true},
	},
	Metadata: "gophshare/hostbridge/v1/hostbridge.proto",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bridgeServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSubmit}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bridgeServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func waitIdleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bridgeServer).WaitIdle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodWaitIdle}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bridgeServer).WaitIdle(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func outcomesHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(bridgeServer).Outcomes(in, stream)
}
