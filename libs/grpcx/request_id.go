package grpcx

import (
	"context"

	"github.com/google/uuid"
	"github.com/proofline/booking/libs/httpx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey mirrors httpx.RequestIDHeader in gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

// requestIDInterceptor adopts the caller's request id or mints one, stores it
// where httpx.RequestIDFromContext finds it and echoes it as a response header.
func requestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var id string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
				id = vals[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))
		return handler(httpx.ContextWithRequestID(ctx, id), req)
	}
}
