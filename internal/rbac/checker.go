package rbac

import (
	"context"
	"strings"
)

// Policy maps a role name to the permissions it carries. A trailing
// "*" in a permission grants the whole prefix, and a bare "*" grants
// everything.
type Policy map[string][]string

func (p Policy) Has(role, perm string) bool {
	for _, granted := range p[role] {
		if granted == "*" || granted == perm {
			return true
		}
		if strings.HasSuffix(granted, "*") && strings.HasPrefix(perm, strings.TrimSuffix(granted, "*")) {
			return true
		}
	}
	return false
}

func (p Policy) HasAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Has(role, perm) {
			return true
		}
	}
	return false
}

// Allowed reports whether role carries perm under the default policy.
// Handlers use it for owner-or-permission checks that need the record
// first and so cannot run as route middleware.
func Allowed(role, perm string) bool {
	return RolePermissions.Has(role, perm)
}

// ---- role in context ----

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(roleKey{}).(string)
	return s
}
