// Package requestcontext centralizes the values middleware attaches to a
// request context so services never touch raw context keys.
package requestcontext

import (
	"context"
	"time"

	id "quizdeck/pkg/domain"
)

type contextKey string

const (
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyClientIP  contextKey = "client_ip"
	ContextKeyUserAgent contextKey = "user_agent"
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyNow       contextKey = "now"
)

// WithUserID stores the authenticated user ID in the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// UserID returns the authenticated user ID, or the zero value for guest
// requests.
func UserID(ctx context.Context) id.UserID {
	userID, _ := ctx.Value(ContextKeyUserID).(id.UserID)
	return userID
}

// WithClientIP stores the client origin address in the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// ClientIP returns the client origin address, or "" when no middleware set
// one.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ContextKeyClientIP).(string)
	return ip
}

// WithUserAgent stores the raw User-Agent header in the context.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, ContextKeyUserAgent, userAgent)
}

// UserAgent returns the raw User-Agent header, or "".
func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(ContextKeyUserAgent).(string)
	return ua
}

// WithRequestID stores the request correlation ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestID returns the request correlation ID, or "".
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(ContextKeyRequestID).(string)
	return requestID
}

// WithTime fixes the clock seen by Now for the rest of the request. Tests
// use it to cross day boundaries without sleeping.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyNow, t)
}

// Now returns the context clock when one is set, otherwise time.Now.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyNow).(time.Time); ok {
		return t
	}
	return time.Now()
}
