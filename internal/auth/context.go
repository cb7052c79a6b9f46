package auth

import "context"

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
// The HTTP middleware is the only writer; the pipeline receives the principal
// as an explicit argument, this carrier only bridges the two.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the principal, returning Anonymous when none
// was attached.
func PrincipalFromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Anonymous()
	}
	if p, ok := ctx.Value(principalContextKey{}).(Principal); ok {
		return p
	}
	return Anonymous()
}
