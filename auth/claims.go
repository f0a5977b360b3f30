// Package auth issues and validates fieldback JWTs and carries the bcrypt
// password helpers used by the login endpoints.
package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the fieldback JWT payload. TenantID is empty for landlord
// tokens; the role decides what the admin surface allows.
type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	TenantID string `json:"tenantId,omitempty"`
}

// Landlord reports whether the token is tenant-agnostic.
func (c *Claims) Landlord() bool {
	return c.TenantID == ""
}
