package event

import "context"

type contextKey struct{}

// WithClientIP records the caller address so events published further down
// the request can carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKey{}, ip)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}
