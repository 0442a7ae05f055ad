package verifier

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/cigarclub/identity/internal/errs"
)

// UnaryServerInterceptor authenticates every unary call except publicMethods
// (full method names, e.g. "/grpc.health.v1.Health/Check").
func UnaryServerInterceptor(v *Verifier, publicMethods ...string) grpc.UnaryServerInterceptor {
	public := make(map[string]struct{}, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if _, ok := public[info.FullMethod]; ok {
			return next(ctx, req)
		}
		header, err := authorizationFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, MsgUnauthenticated)
		}
		claims, err := v.Authenticate(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, MsgUnauthenticated)
		}
		return next(WithClaims(ctx, claims), req)
	}
}

func authorizationFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.Join(errs.ErrInvalidToken, errors.New("no metadata"))
	}
	for _, v := range md.Get("authorization") {
		if _, err := BearerToken(v); err == nil {
			return v, nil
		}
	}
	return "", errors.Join(errs.ErrInvalidToken, errNoBearer)
}
