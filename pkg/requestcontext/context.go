// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	principal := requestcontext.Principal(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithPrincipal(ctx, p)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import "context"

// Context key types (unexported for encapsulation).
type (
	principalKey    struct{}
	clientIPKey     struct{}
	userAgentKey    struct{}
	clientDeviceKey struct{}
	requestIDKey    struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyPrincipal    = principalKey{}
	ContextKeyClientIP     = clientIPKey{}
	ContextKeyUserAgent    = userAgentKey{}
	ContextKeyClientDevice = clientDeviceKey{}
	ContextKeyRequestID    = requestIDKey{}
)

// -----------------------------------------------------------------------------
// Authenticated principal
// -----------------------------------------------------------------------------

// PrincipalInfo is the caller as asserted by the identity collaborator's
// token. Type is officer, applicant or system.
type PrincipalInfo struct {
	ID   string
	Type string
}

// Principal retrieves the authenticated caller. ok is false when unset.
func Principal(ctx context.Context) (PrincipalInfo, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(PrincipalInfo)
	return p, ok
}

func WithPrincipal(ctx context.Context, p PrincipalInfo) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// ClientDevice retrieves the parsed "Browser on OS" display name.
func ClientDevice(ctx context.Context) string {
	if d, ok := ctx.Value(ContextKeyClientDevice).(string); ok {
		return d
	}
	return ""
}

// WithClientMetadata injects client IP, User-Agent and device name into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, device string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	ctx = context.WithValue(ctx, ContextKeyClientDevice, device)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID injects a request ID into a context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// AuditMetadata returns the request attributes worth keeping on audit
// entries. Empty values are omitted; nil means nothing to add.
func AuditMetadata(ctx context.Context) map[string]string {
	out := map[string]string{}
	if v := RequestID(ctx); v != "" {
		out["request_id"] = v
	}
	if v := ClientIP(ctx); v != "" {
		out["client_ip"] = v
	}
	if v := ClientDevice(ctx); v != "" {
		out["client_device"] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
