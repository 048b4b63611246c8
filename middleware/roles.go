package middleware

import "edupath_go/models"

// Landing routes of the role gate.
const (
	RouteLogin           = "/login"
	RouteAdminDashboard  = "/admin/dashboard"
	RouteStudentDash     = "/student/dashboard"
	RoutePendingApproval = "/pending-approval"
)

// RouteDecision is where the client should send a user and why.
type RouteDecision struct {
	Redirect string `json:"redirect"`
	Reason   string `json:"reason,omitempty"`
}

// ResolveRoute is the role gate: it maps a user to the area of the portal
// they may use.
func ResolveRoute(user *models.User) RouteDecision {
	if user == nil {
		return RouteDecision{Redirect: RouteLogin, Reason: "not signed in"}
	}
	switch user.Status {
	case models.UserActive:
	case models.UserRejected:
		return RouteDecision{Redirect: RouteLogin, Reason: "registration rejected"}
	default:
		return RouteDecision{Redirect: RouteLogin, Reason: "account inactive"}
	}
	switch user.Role {
	case models.RoleAdmin:
		return RouteDecision{Redirect: RouteAdminDashboard}
	case models.RoleStudent:
		return RouteDecision{Redirect: RouteStudentDash}
	case models.RolePending:
		return RouteDecision{Redirect: RoutePendingApproval, Reason: "awaiting approval"}
	}
	return RouteDecision{Redirect: RouteLogin, Reason: "unknown role"}
}
