// Package rbac holds the two-tier role model of the demo login: viewers
// read, editors also revise.
package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

const (
	ActionRead   Action = "read"
	ActionRevise Action = "revise"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleEditor:
		return true
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor:
		return Role(role)
	default:
		return RoleViewer
	}
}
