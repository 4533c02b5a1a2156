package tenant

// Context carries the authenticated tenant scope for a single request. It is
// created at request authentication and passed explicitly into every
// tenant-scoped call; there is no ambient "current tenant".
type Context struct {
	TenantID      string
	ActorID       string
	PlatformAdmin bool
}

// Resolved reports whether the context identifies a caller at all. Platform
// admins may carry an empty TenantID.
func (c Context) Resolved() bool {
	return c.TenantID != "" || c.PlatformAdmin
}
