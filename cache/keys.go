package cache

import "fmt"

// Key prefixes. Writes invalidate whole prefixes; per-student dashboard
// keys are dropped one by one with Forget.
const (
	PrefixCourses        = "courses:"
	PrefixBlog           = "blog:"
	PrefixPolicies       = "policies:"
	PrefixSite           = "site:"
	PrefixAdminDashboard = "dashboard:admin"
	PrefixStudentDash    = "dashboard:student:"
)

// StudentDashboardKey is the cache key of one student's dashboard summary.
func StudentDashboardKey(studentID uint) string {
	return fmt.Sprintf("%s%d", PrefixStudentDash, studentID)
}
