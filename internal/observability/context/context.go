package context

import "context"

type requestIDKey struct{}
type orderCodeKey struct{}

// WithRequestID stores the inbound request id on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithOrderCode tags ctx with the payment correlation code being settled.
func WithOrderCode(ctx context.Context, orderCode int64) context.Context {
	if orderCode <= 0 {
		return ctx
	}
	return context.WithValue(ctx, orderCodeKey{}, orderCode)
}

func OrderCodeFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(orderCodeKey{}).(int64); ok {
		return v
	}
	return 0
}
