package auth

import "github.com/google/uuid"

// Principal is the resolved identity of the current caller. It is built once
// at request entry and threaded through the pipeline as a value; gates read
// it, nothing mutates it.
type Principal struct {
	TenantID        *uuid.UUID
	UserID          *uuid.UUID
	Roles           []string
	Permissions     []string
	IsSuperAdmin    bool
	IsAuthenticated bool
}

// Anonymous returns the principal used for requests without credentials.
func Anonymous() Principal {
	return Principal{}
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) HasPermission(perm string) bool {
	for _, pp := range p.Permissions {
		if pp == perm {
			return true
		}
	}
	return false
}

func (p Principal) HasAllRoles(roles []string) bool {
	for _, r := range roles {
		if !p.HasRole(r) {
			return false
		}
	}
	return true
}

func (p Principal) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

func (p Principal) HasAllPermissions(perms []string) bool {
	for _, pp := range perms {
		if !p.HasPermission(pp) {
			return false
		}
	}
	return true
}

func (p Principal) HasAnyPermission(perms []string) bool {
	for _, pp := range perms {
		if p.HasPermission(pp) {
			return true
		}
	}
	return false
}
