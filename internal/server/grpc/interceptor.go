package grpc

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/leroytan/the-website-sub000/internal/common"
)

type ctxKey string

// UserIDKey holds the authenticated caller's id in the request context.
const UserIDKey ctxKey = "userID"

// internalMethods are called by the payment and match workflows with the
// shared internal key instead of a user token.
var internalMethods = map[string]bool{
	MethodUnlock: true,
}

func firstValue(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if internalMethods[info.FullMethod] {
		key := firstValue(ctx, common.InternalKeyHeaderName)
		if len(key) == 0 || len(s.internalKey) == 0 || subtle.ConstantTimeCompare([]byte(key), s.internalKey) != 1 {
			return nil, status.Error(codes.PermissionDenied, "invalid internal key")
		}
		return handler(ctx, req)
	}

	accessToken := firstValue(ctx, common.AccessTokenHeaderName)
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	userID, err := s.verifier.UserID(accessToken)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	ctx = context.WithValue(ctx, UserIDKey, userID)
	return handler(ctx, req)
}

func userIDFrom(ctx context.Context) (string, error) {
	id, _ := ctx.Value(UserIDKey).(string)
	if id == "" {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}
	return id, nil
}
