// Package auth authorizes state transitions.
//
// Callers attach the acting [Identity] to the context with
// [ContextWithIdentity] before driving an executor. [RequirePermission]
// builds an fsm guard that lets the transition into a target state proceed
// only when the identity holds the permission "resource:target", and
// [AuditObserver] records who attempted which transition.
//
//	hooks, err := models.ExecutionHooksBuilder(nil).
//		Guard(models.ExecutionStatusRunning, auth.RequirePermission[*models.Execution, models.ExecutionStatus]("executions")).
//		Build()
//
//	ctx = auth.ContextWithIdentity(ctx, principal)
//	exec, err := machine.Transition(ctx, exec, models.ExecutionStatusRunning)
//
// The identity model supports four types:
//   - User: A human user authenticated via JWT or other credential
//   - Service: A platform service authenticating via service account
//   - Agent: An AI agent operating on behalf of a user or system
//   - System: An internal system process (background jobs, cron, migrations)
package auth

import (
	"maps"
	"slices"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// IdentityType represents the type of authenticated identity.
type IdentityType string

const (
	// IdentityTypeUser represents a human user authenticated via credentials.
	IdentityTypeUser IdentityType = "user"

	// IdentityTypeService represents a platform service authenticated via
	// service account credentials.
	IdentityTypeService IdentityType = "service"

	// IdentityTypeAgent represents an AI agent operating within the platform.
	IdentityTypeAgent IdentityType = "agent"

	// IdentityTypeSystem represents an internal system process such as a
	// background job, scheduled task, or migration.
	IdentityTypeSystem IdentityType = "system"
)

// String returns the string representation of the identity type.
func (t IdentityType) String() string {
	return string(t)
}

// Valid reports whether the identity type is one of the recognized values.
func (t IdentityType) Valid() bool {
	switch t {
	case IdentityTypeUser, IdentityTypeService, IdentityTypeAgent, IdentityTypeSystem:
		return true
	default:
		return false
	}
}

// Identity represents the entity driving a transition.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Identity interface {
	// ID returns the unique identifier of the identity.
	ID() string

	// Type returns the category of identity.
	Type() IdentityType

	// Claims returns a copy of the identity's claims.
	Claims() map[string]any

	// HasPermission reports whether the identity may perform action on
	// resource. For transitions the action is the target state.
	HasPermission(resource, action string) bool
}

// Permission grants an action on a resource. The wildcard "*" matches any
// resource or action.
//
//	Permission{Resource: "executions", Action: "running"}
//	Permission{Resource: "executions", Action: "*"}
//	Permission{Resource: "*", Action: "*"}
type Permission struct {
	Resource string
	Action   string
}

// String returns the "resource:action" form accepted by [ParsePermission].
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// Allows reports whether p grants action on resource.
func (p Permission) Allows(resource, action string) bool {
	return (p.Resource == "*" || p.Resource == resource) &&
		(p.Action == "*" || p.Action == action)
}

// Principal is the standard [Identity] implementation. It is immutable
// after creation.
type Principal struct {
	id          string
	idType      IdentityType
	claims      map[string]any
	permissions []Permission
}

var _ Identity = (*Principal)(nil)

// NewPrincipal creates a Principal. Claims and permissions are copied.
//
// Error codes returned:
//   - [sserr.CodeValidationRequired]: empty id
//   - [sserr.CodeValidation]: unknown identity type
func NewPrincipal(id string, idType IdentityType, claims map[string]any, permissions []Permission) (*Principal, error) {
	if id == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "auth: principal id must not be empty")
	}
	if !idType.Valid() {
		return nil, sserr.Newf(sserr.CodeValidation, "auth: unknown identity type %q", idType)
	}
	if claims == nil {
		claims = map[string]any{}
	}
	return &Principal{
		id:          id,
		idType:      idType,
		claims:      maps.Clone(claims),
		permissions: slices.Clone(permissions),
	}, nil
}

// ID returns the unique identifier of the principal.
func (p *Principal) ID() string { return p.id }

// Type returns the identity type.
func (p *Principal) Type() IdentityType { return p.idType }

// Claims returns a shallow copy of the principal's claims.
func (p *Principal) Claims() map[string]any {
	return maps.Clone(p.claims)
}

// HasPermission reports whether any granted permission allows action on
// resource.
func (p *Principal) HasPermission(resource, action string) bool {
	return hasPermission(p.permissions, resource, action)
}

// Permissions returns a copy of the granted permissions.
func (p *Principal) Permissions() []Permission {
	return slices.Clone(p.permissions)
}

func hasPermission(permissions []Permission, resource, action string) bool {
	for _, p := range permissions {
		if p.Allows(resource, action) {
			return true
		}
	}
	return false
}
