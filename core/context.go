package core

import "context"

type sessionKey struct{}

// WithSessionID returns a context carrying the session id. Specialists read it
// to scope side stores (finding memory) without it entering cache keys.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionIDFrom returns the session id stored in ctx, or "".
func SessionIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey{}).(string); ok {
		return v
	}
	return ""
}
