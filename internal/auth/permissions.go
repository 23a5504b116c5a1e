package auth

// Built-in role templates. The catalog maps template names to base
// permission sets; restaurants extend grants per assignment through
// additive custom permissions, never by removing base ones.
const (
	RolePlatformAdmin = "platform_admin"
	RoleOwner         = "owner"
	RoleManager       = "manager"
	RoleWaiter        = "waiter"
	RoleKitchen       = "kitchen"
	RoleCashier       = "cashier"
)

// DefaultCatalog is the base permission set per role template.
var DefaultCatalog = map[string][]string{
	RolePlatformAdmin: {
		"platform:manage", "restaurants:read", "restaurants:write",
		"reports:read", "staff:read", "staff:write",
	},
	RoleOwner: {
		"restaurants:read", "restaurants:write", "menu:read", "menu:write",
		"orders:read", "orders:write", "tables:read", "tables:write",
		"staff:read", "staff:write", "reports:read",
	},
	RoleManager: {
		"menu:read", "menu:write", "orders:read", "orders:write",
		"tables:read", "tables:write", "staff:read", "reports:read",
	},
	RoleWaiter: {
		"menu:read", "orders:read", "orders:write", "tables:read",
	},
	RoleKitchen: {
		"menu:read", "orders:read", "orders:update_status",
	},
	RoleCashier: {
		"orders:read", "payments:read", "payments:write",
	},
}

// Resolver maps a role assignment to its resolved permission set.
type Resolver struct {
	catalog map[string][]string
}

// NewResolver builds a resolver over the given catalog; nil means
// DefaultCatalog.
func NewResolver(catalog map[string][]string) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Resolver{catalog: catalog}
}

// Resolve unions the template's base permissions with the assignment's
// custom overrides and deduplicates. An unknown template degrades to the
// empty set so a removed template means "no permissions", not a crash.
// Callers test membership, not order.
func (r *Resolver) Resolve(assignment *RoleAssignment) map[string]struct{} {
	set := make(map[string]struct{})
	if assignment == nil {
		return set
	}
	for _, key := range r.catalog[assignment.RoleTemplate] {
		set[key] = struct{}{}
	}
	for _, key := range assignment.CustomPermissions {
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}

// ResolveList returns the resolved set as a slice for token payloads.
func (r *Resolver) ResolveList(assignment *RoleAssignment) []string {
	set := r.Resolve(assignment)
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}
