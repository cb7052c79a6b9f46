package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Kind is an explicit, checked property of every request type. Commands
// mutate state and run transactionally; queries never open a transaction at
// this layer.
type Kind int

const (
	KindQuery Kind = iota
	KindCommand
)

// Request is the envelope every command and query implements. The pipeline
// discovers all policy from the type itself, before the handler runs.
type Request interface {
	Name() string
	Kind() Kind
}

// AuthSpec declares a request's authorization requirement.
type AuthSpec struct {
	RequireAuth           bool
	Roles                 []string
	Permissions           []string
	RequireAllRoles       bool
	RequireAllPermissions bool
}

// Authorized marks a request type that declares an authorization requirement.
// Requests without it pass the authorization gate untouched.
type Authorized interface {
	AuthSpec() AuthSpec
}

// CachePolicy declares response memoization for a query.
type CachePolicy struct {
	TTL          time.Duration
	KeyPrefix    string
	VaryByTenant bool
	VaryByUser   bool
}

// Cacheable marks a query whose response may be memoized. Commands are never
// cached regardless of this interface.
type Cacheable interface {
	CachePolicy() CachePolicy
}

// Identified lets a command expose its correlated entity id for the audit
// trail. Commands without it are audited with a null entity id.
type Identified interface {
	EntityID() uuid.UUID
}
