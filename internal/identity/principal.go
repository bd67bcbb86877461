package identity

import "context"

// Role is the coarse authorization role carried in the auth token.
type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// Principal is the authenticated caller as resolved from the identity
// provider's token claims. It may exist before the users projection row does.
type Principal struct {
	ID       string
	Email    string
	Name     string
	Phone    string
	Verified bool
	Role     Role
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type contextKey string

const principalKey contextKey = "identity.principal"

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext returns the authenticated principal if present.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
