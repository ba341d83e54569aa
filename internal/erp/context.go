package erp

import "context"

type principalKey struct{}

// WithPrincipal returns a context carrying the acting principal, so
// tools can make principal-scoped queries without widening their
// parameter schemas.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey{}, principalID)
}

// PrincipalFrom returns the acting principal, or "" when none is set.
func PrincipalFrom(ctx context.Context) string {
	if v, ok := ctx.Value(principalKey{}).(string); ok {
		return v
	}
	return ""
}
