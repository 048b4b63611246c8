package routes

import (
	"edupath_go/controllers"
	"edupath_go/handlers"
	"edupath_go/middleware"
	"edupath_go/models"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything the router needs.
type Handlers struct {
	Auth         *middleware.Auth
	LoginLimiter *utils.KeyedLimiter

	AuthC         *controllers.AuthController
	Registrations *controllers.RegistrationController
	Students      *controllers.StudentController
	Applications  *controllers.ApplicationController
	Courses       *controllers.CourseController
	Appointments  *controllers.AppointmentController
	Notifications *controllers.NotificationController
	Blog          *controllers.BlogController
	Policies      *controllers.PolicyController
	Site          *controllers.SiteController
	Dashboard     *controllers.DashboardController
	Reports       *controllers.ReportController
	Logs          *controllers.LogController
	Users         *controllers.UserController
	Settings      *controllers.SettingsController
	Health        *controllers.HealthController
	WebSocket     *controllers.WebSocketController

	// Line is optional; nil when the LINE channel is not configured.
	Line *handlers.LineWebhookHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h *Handlers) {
	jwt := h.Auth.JWTMiddleware()

	app.Get("/health", h.Health.GetHealthStatus)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Public marketing and catalogue routes
	public := api.Group("/public")
	public.Get("/site", h.Site.GetSiteInfo)
	public.Get("/courses", h.Courses.GetCourses)
	public.Get("/courses/:id", h.Courses.GetCourse)
	public.Get("/blog", h.Blog.GetPublishedPosts)
	public.Get("/blog/:slug", h.Blog.GetPostBySlug)
	public.Get("/policies", h.Policies.GetPolicies)
	public.Get("/policies/:slug", h.Policies.GetPolicy)

	// Authentication routes
	auth := api.Group("/auth")
	auth.Post("/register", middleware.LoginRateLimit(h.LoginLimiter), h.AuthC.Register)
	auth.Post("/login", middleware.LoginRateLimit(h.LoginLimiter), h.AuthC.Login)
	auth.Post("/logout", jwt, h.AuthC.Logout)
	auth.Get("/me", jwt, h.AuthC.GetProfile)
	auth.Put("/password", jwt, h.AuthC.ChangePassword)
	auth.Post("/avatar", jwt, h.Users.UploadAvatar)
	auth.Get("/settings", jwt, h.Settings.GetMySettings)
	auth.Put("/settings", jwt, h.Settings.UpdateMySettings)

	if h.Line != nil {
		auth.Post("/line/link-code", jwt, h.Line.IssueLinkCode)
		app.Post("/line/webhook", h.Line.Handle)
		app.Get("/line/webhook", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ok", "message": "LINE webhook endpoint ready (use POST for real events)"})
		})
	}

	// Registration queue, own entry
	registration := api.Group("/registration", jwt, middleware.LogActivityMiddleware())
	registration.Get("/status", h.Registrations.GetStatus)
	registration.Post("/payment", middleware.RequireRole(models.RolePending), h.Registrations.SubmitPayment)

	// Notifications for every signed-in user
	notifications := api.Group("/notifications", jwt)
	notifications.Get("/", h.Notifications.GetNotifications)
	notifications.Get("/unread-count", h.Notifications.GetUnreadCount)
	notifications.Put("/read-all", h.Notifications.MarkAllAsRead)
	notifications.Get("/:id", h.Notifications.GetNotification)
	notifications.Put("/:id/read", h.Notifications.MarkAsRead)
	notifications.Delete("/:id", h.Notifications.DeleteNotification)

	// Student area
	student := api.Group("/student", jwt, middleware.RequireStudent(), middleware.LogActivityMiddleware())
	student.Get("/dashboard", h.Dashboard.GetStudentDashboard)
	student.Get("/profile", h.Students.GetMyProfile)
	student.Put("/profile", h.Students.UpdateMyProfile)
	student.Get("/applications", h.Applications.GetMyApplications)
	student.Get("/applications/:id", h.Applications.GetMyApplication)
	student.Post("/applications/:id/documents", h.Applications.UploadMyDocument)
	student.Get("/appointments", h.Appointments.GetAppointments)
	student.Post("/appointments", h.Appointments.RequestAppointment)
	student.Get("/appointments/:id", h.Appointments.GetAppointment)
	student.Post("/appointments/:id/cancel", h.Appointments.CancelAppointment)

	// Admin area
	admin := api.Group("/admin", jwt, middleware.RequireAdmin(), middleware.LogActivityMiddleware())
	admin.Get("/dashboard", h.Dashboard.GetAdminStats)

	users := admin.Group("/users")
	users.Get("/", h.Users.GetUsers)
	users.Post("/", h.Users.CreateUser)
	users.Get("/:id", h.Users.GetUser)
	users.Put("/:id", h.Users.UpdateUser)
	users.Delete("/:id", h.Users.DeleteUser)
	users.Get("/:id/settings", h.Settings.GetUserSettings)
	users.Put("/:id/settings", h.Settings.UpdateUserSettings)

	registrations := admin.Group("/registrations")
	registrations.Get("/", h.Registrations.ListRegistrations)
	registrations.Get("/:id", h.Registrations.GetRegistration)
	registrations.Post("/:id/verify-payment", h.Registrations.VerifyPayment)
	registrations.Post("/:id/approve", h.Registrations.Approve)
	registrations.Post("/:id/reject", h.Registrations.Reject)

	students := admin.Group("/students")
	students.Get("/", h.Students.GetStudents)
	students.Get("/:id", h.Students.GetStudent)
	students.Put("/:id", h.Students.UpdateStudent)
	students.Put("/:id/advising", h.Students.UpdateAdvising)

	applications := admin.Group("/applications")
	applications.Get("/", h.Applications.GetApplications)
	applications.Post("/", h.Applications.CreateApplication)
	applications.Get("/:id", h.Applications.GetApplication)
	applications.Put("/:id", h.Applications.UpdateApplication)
	applications.Delete("/:id", h.Applications.DeleteApplication)
	applications.Put("/:id/stages/:stageId", h.Applications.UpdateStage)
	applications.Post("/:id/documents", h.Applications.UploadDocument)
	applications.Delete("/:id/documents/:docId", h.Applications.DeleteDocument)

	courses := admin.Group("/courses")
	courses.Get("/", h.Courses.GetAllCourses)
	courses.Post("/", h.Courses.CreateCourse)
	courses.Post("/import", h.Courses.ImportCourses)
	courses.Get("/:id", h.Courses.GetCourse)
	courses.Put("/:id", h.Courses.UpdateCourse)
	courses.Delete("/:id", h.Courses.DeleteCourse)

	appointments := admin.Group("/appointments")
	appointments.Get("/", h.Appointments.GetAppointments)
	appointments.Get("/:id", h.Appointments.GetAppointment)
	appointments.Post("/:id/confirm", h.Appointments.ConfirmAppointment)
	appointments.Post("/:id/reschedule", h.Appointments.RescheduleAppointment)
	appointments.Post("/:id/cancel", h.Appointments.CancelAppointment)
	appointments.Post("/:id/complete", h.Appointments.CompleteAppointment)

	admin.Post("/notifications", h.Notifications.CreateNotification)

	blog := admin.Group("/blog")
	blog.Get("/", h.Blog.GetAllPosts)
	blog.Post("/", h.Blog.CreatePost)
	blog.Put("/:id", h.Blog.UpdatePost)
	blog.Delete("/:id", h.Blog.DeletePost)

	admin.Put("/policies/:slug", h.Policies.UpsertPolicy)
	admin.Get("/reports/export", h.Reports.ExportWorkbook)

	logs := admin.Group("/logs")
	logs.Get("/", h.Logs.GetLogs)
	logs.Get("/stats", h.Logs.GetLogStats)
	logs.Get("/export", h.Logs.ExportLogs)
	logs.Post("/flush", h.Logs.FlushCachedLogs)
	logs.Post("/archive", h.Logs.ArchiveLogs)
	logs.Get("/archives", h.Logs.GetArchives)
	logs.Get("/archives/:id/download", h.Logs.DownloadArchive)
	logs.Get("/:id", h.Logs.GetLog)

	admin.Get("/ws/stats", h.WebSocket.GetWebSocketStats)

	// Listener endpoint: ws://<host>/ws?token=JWT
	app.Use("/ws", h.WebSocket.Upgrade)
	app.Get("/ws", h.WebSocket.WebSocketHandler())
}
