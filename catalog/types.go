// Package catalog is the tenant directory: tenants, users, login accounts,
// per-tenant roles and product lines. Password hashes are stored here but
// produced and verified by the auth package.
package catalog

// Roles. super_admin is tenant-agnostic; the rest are scoped to a tenant.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleEditor     = "editor"
	RoleViewer     = "viewer"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Tenant is an isolated customer organization. CompanyCode is the short
// code field users type on the landing login.
type Tenant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CompanyCode string `json:"company_code,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// User is a person known to the system, keyed by auth subject.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// LoginAccount is a username/password credential. TenantID nil marks a
// landlord (global) account.
type LoginAccount struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	PasswordHash string  `json:"-"`
	TenantID     *string `json:"tenant_id,omitempty"`
	UserID       *string `json:"user_id,omitempty"`
	Role         string  `json:"role"`
	CreatedAt    int64   `json:"created_at"`
}

// Subject is the JWT subject for this account: the linked user when one
// exists, otherwise the account id itself.
func (a *LoginAccount) Subject() string {
	if a.UserID != nil && *a.UserID != "" {
		return *a.UserID
	}
	return a.ID
}

// UserTenantRole grants a user a role inside one tenant, optionally
// restricted to a set of product lines.
type UserTenantRole struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user_id"`
	TenantID       string   `json:"tenant_id"`
	Role           string   `json:"role"`
	ProductLineIDs []string `json:"product_line_ids,omitempty"`
	CreatedAt      int64    `json:"created_at"`
}

// ProductLine is a sub-division of a tenant (typically a drug brand).
type ProductLine struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
}
