package auth

import (
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// RolePermissionMap maps role names to the permissions they grant.
//
//	rpm := RolePermissionMap{
//	    "admin":    {{Resource: "*", Action: "*"}},
//	    "operator": {{Resource: "executions", Action: "canceled"}},
//	}
type RolePermissionMap map[string][]Permission

// DefaultRolePermissions returns the standard roles for the execution
// and agent lifecycles:
//
//   - admin: every transition of every machine.
//   - operator: every transition of executions and agents.
//   - runner: starts and finishes executions.
//   - viewer: no transitions.
func DefaultRolePermissions() RolePermissionMap {
	return RolePermissionMap{
		"admin": {
			{Resource: "*", Action: "*"},
		},
		"operator": {
			{Resource: "executions", Action: "*"},
			{Resource: "agent-lifecycle", Action: "*"},
		},
		"runner": {
			{Resource: "executions", Action: "running"},
			{Resource: "executions", Action: "completed"},
			{Resource: "executions", Action: "failed"},
			{Resource: "executions", Action: "timeout"},
		},
		"viewer": {},
	}
}

// ParsePermission parses "resource:action". Either part may be "*".
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok {
		return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
			"auth: invalid permission %q: missing colon separator", s)
	}
	if resource == "" || action == "" {
		return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
			"auth: invalid permission %q: empty resource or action", s)
	}
	if strings.Contains(action, ":") {
		return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
			"auth: invalid permission %q: too many separators", s)
	}
	return Permission{Resource: resource, Action: action}, nil
}

// ParsePermissions parses each entry with [ParsePermission] and stops at
// the first invalid one.
func ParsePermissions(entries []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(entries))
	for _, e := range entries {
		p, err := ParsePermission(e)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// PermissionsForRoles returns the deduplicated permissions granted by
// roles. Unknown roles grant nothing.
func PermissionsForRoles(roles []string, roleMap RolePermissionMap) []Permission {
	seen := make(map[Permission]struct{})
	result := []Permission{}
	for _, role := range roles {
		for _, p := range roleMap[role] {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			result = append(result, p)
		}
	}
	return result
}

// ClaimsToPermissions extracts permissions from token claims. The
// "permissions" claim holds "resource:action" strings and the "roles"
// claim holds role names resolved through roleMap. Malformed entries are
// skipped so that tokens from different issuers can be accepted.
func ClaimsToPermissions(claims map[string]any, roleMap RolePermissionMap) []Permission {
	result := PermissionsForRoles(stringList(claims["roles"]), roleMap)

	seen := make(map[Permission]struct{}, len(result))
	for _, p := range result {
		seen[p] = struct{}{}
	}
	for _, s := range stringList(claims["permissions"]) {
		p, err := ParsePermission(s)
		if err != nil {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result
}

// stringList accepts both []string and the []any produced by JSON
// decoding.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
