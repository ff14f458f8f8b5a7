package models

// AdminRole is the privileged role allowed to act on any owner's Toolbox.
const AdminRole = "admin"

// Caller identifies the authenticated principal behind a request, as
// extracted from the bearer token by the auth middleware.
type Caller struct {
	UserId string
	Roles  []string
}

// IsAdmin reports whether the caller carries the privileged role.
func (c Caller) IsAdmin() bool {
	for _, role := range c.Roles {
		if role == AdminRole {
			return true
		}
	}
	return false
}

// MayAccess reports whether the caller may act on a resource owned by ownerId.
func (c Caller) MayAccess(ownerId string) bool {
	return c.UserId == ownerId || c.IsAdmin()
}
