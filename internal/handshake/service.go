package handshake

import (
	"context"

	"google.golang.org/grpc"

	"github.com/shaiso/Montecarlo/internal/domain"
)

// Имена gRPC сервиса и метода.
const (
	ServiceName         = "montecarlo.Handshake"
	fullMethodNegotiate = "/" + ServiceName + "/Negotiate"
)

// handshakeService — серверная сторона сервиса.
type handshakeService interface {
	Negotiate(ctx context.Context, req *domain.HandshakeRequest) (*domain.HandshakeReply, error)
}

// serviceDesc описывает сервис вручную, как это делает protoc-gen-go-grpc.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*handshakeService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Negotiate",
			Handler:    negotiateHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "montecarlo/handshake",
}

func negotiateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(domain.HandshakeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(handshakeService).Negotiate(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: fullMethodNegotiate,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(handshakeService).Negotiate(ctx, req.(*domain.HandshakeRequest))
	}
	return interceptor(ctx, in, info, handler)
}
