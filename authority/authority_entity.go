package authority

import (
	"flowdesk/bizerror"
	"strings"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleReviewer Role = "REVIEWER"
	RoleViewer   Role = "VIEWER"
)

var allRoles = []Role{RoleAdmin, RoleManager, RoleReviewer, RoleViewer}

func ParseRole(raw string) (Role, error) {
	for _, role := range allRoles {
		if strings.EqualFold(raw, string(role)) {
			return role, nil
		}
	}
	return "", bizerror.ErrUnknownRole
}

func (r Role) IsValid() bool {
	for _, role := range allRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Role) In(roles ...Role) bool {
	for _, role := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// capabilities are navigation destinations visible to a role.
// presentation-only gating, the transition validator is the authority.
var roleCapabilities = map[Role][]string{
	RoleAdmin:    {"dashboard", "workflows", "users", "audit-logs", "system-health"},
	RoleManager:  {"dashboard", "workflows", "users", "audit-logs", "reports"},
	RoleReviewer: {"dashboard", "workflows", "audit-logs"},
	RoleViewer:   {"dashboard", "workflows", "reports"},
}

func CapabilitiesOfRole(r Role) []string {
	caps := roleCapabilities[r]
	if caps == nil {
		return []string{}
	}
	result := make([]string, len(caps))
	copy(result, caps)
	return result
}
