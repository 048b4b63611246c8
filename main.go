package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"edupath_go/cache"
	"edupath_go/config"
	"edupath_go/controllers"
	"edupath_go/database"
	"edupath_go/database/seeders"
	"edupath_go/handlers"
	"edupath_go/middleware"
	"edupath_go/repository"
	"edupath_go/routes"
	"edupath_go/services"
	"edupath_go/services/notifications"
	"edupath_go/services/websocket"
	"edupath_go/storage"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const (
	appName    = "EduPath"
	apiVersion = "1.0.0"
)

func init() {
	config.LoadConfig()
	setupLogging()
	database.Connect()
}

func main() {
	cfg := config.AppConfig
	db := database.GetDB()
	rdb := database.GetRedisClient()

	if cfg.SeedData {
		seeders.SeedAll()
	}

	templates, err := config.StageTemplates()
	if err != nil {
		log.Fatal("Failed to load stage templates:", err)
	}

	store := repository.NewGormStore(db)
	appCache := cache.New(rdb, cfg.UseRedisCache)

	// Listener hub first so every service can publish to it
	wsHub := websocket.NewHub()
	sources := services.NewListenerSources(store)
	wsHub.SetSources(sources.Authorize, sources.Snapshot)
	go wsHub.Run()

	// Notifications fan out to the hub and any configured external channel
	notifications.SetDefaultWSHub(wsHub)
	var senders []notifications.Sender
	lineSender, err := notifications.NewLineSender(cfg.LineChannelSecret, cfg.LineChannelAccessToken)
	if err != nil {
		logrus.WithError(err).Warn("LINE notifications disabled")
	}
	if lineSender != nil {
		senders = append(senders, lineSender)
	}
	if email := notifications.NewEmailSender(cfg.SendGridAPIKey, appName, cfg.MailFrom); email != nil {
		senders = append(senders, email)
	}
	notifications.SetDefaultSenders(senders...)
	notifService := notifications.NewService()
	stopNotif := make(chan struct{})
	if cfg.UseRedisNotifications {
		notifService.StartWorker(stopNotif)
	}

	// Domain services
	monitor := services.NewStatusMonitor(store, notifService, wsHub, cfg.StatusDebounce)
	monitor.SetCache(appCache)
	registrationService := services.NewRegistrationService(store, notifService, wsHub, templates, cfg.RegistrationFee)
	applicationService := services.NewApplicationService(store, monitor, wsHub, templates)
	appointmentService := services.NewAppointmentService(store, notifService, wsHub)
	courseService := services.NewCourseService(store, appCache, wsHub, cfg.CacheTTL)
	studentService := services.NewStudentService(store, appCache, wsHub)
	dashboardService := services.NewDashboardService(store, appCache, cfg.CacheTTL)
	siteService := services.NewSiteService(appName,
		services.ContactInfo{Email: cfg.ContactEmail, Phone: cfg.ContactPhone},
		store.Policies().List, cfg.CacheTTL)
	reportService := services.NewReportService(store)

	var archiveStore services.ArchiveStore
	if s3Archive := services.NewS3ArchiveStore(context.Background(), cfg.AWSRegion, cfg.S3BucketName); s3Archive != nil {
		archiveStore = s3Archive
	}
	logArchiveService := services.NewLogArchiveService(db, rdb, archiveStore)
	middleware.SetActivitySink(middleware.NewRedisActivitySink(rdb, db))

	scheduler, err := services.NewScheduler(appointmentService, registrationService, logArchiveService, time.Local)
	if err != nil {
		log.Fatal("Failed to configure scheduler:", err)
	}
	scheduler.Start()

	var uploader storage.Uploader
	if s, err := storage.NewStorageService(); err != nil {
		logrus.WithError(err).Warn("File uploads disabled")
	} else {
		uploader = s
	}

	healthService := services.NewHealthService(appName+" API", apiVersion)
	healthService.AddCheck(services.DatabaseCheck(db))
	healthService.AddCheck(services.RedisCheck(rdb, cfg))
	healthService.AddCheck(services.CacheCheck(appCache))
	healthService.AddCheck(services.StorageCheck(uploader))
	healthService.SetListenerCounter(wsHub.GetClientCount)
	healthService.SetStatusMonitor(monitor)

	auth := middleware.NewAuth(cfg.JWTSecret, cfg.JWTExpiresIn, store.Users(), appCache)

	h := &routes.Handlers{
		Auth:         auth,
		LoginLimiter: utils.NewKeyedLimiter(cfg.LoginRatePerMinute, cfg.LoginRatePerMinute, 10*time.Minute),

		AuthC:         controllers.NewAuthController(auth, store.Users(), registrationService),
		Registrations: controllers.NewRegistrationController(registrationService, uploader, appCache),
		Students:      controllers.NewStudentController(studentService),
		Applications:  controllers.NewApplicationController(applicationService, studentService, uploader, appCache),
		Courses:       controllers.NewCourseController(courseService),
		Appointments:  controllers.NewAppointmentController(appointmentService, studentService, appCache),
		Notifications: controllers.NewNotificationController(store.Notifications(), notifService),
		Blog:          controllers.NewBlogController(store.Blog(), appCache, cfg.CacheTTL),
		Policies:      controllers.NewPolicyController(store.Policies(), appCache, siteService, cfg.CacheTTL),
		Site:          controllers.NewSiteController(siteService),
		Dashboard:     controllers.NewDashboardController(dashboardService),
		Reports:       controllers.NewReportController(reportService),
		Logs:          controllers.NewLogController(db, logArchiveService),
		Users:         controllers.NewUserController(services.NewAccountService(store, appCache), uploader),
		Settings:      controllers.NewSettingsController(services.NewSettingsService(store)),
		Health:        controllers.NewHealthController(healthService),
		WebSocket:     controllers.NewWebSocketController(wsHub, auth),
	}
	if cfg.LineChannelSecret != "" && lineSender != nil {
		h.Line = handlers.NewLineWebhookHandler(cfg.LineChannelSecret, lineSender.Bot(), store.Users(), appCache)
		log.Println("LINE webhook enabled at /line/webhook")
	} else {
		log.Println("LINE webhook disabled: missing LINE_CHANNEL_SECRET or LINE_CHANNEL_ACCESS_TOKEN")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize) + 1<<20,
	})

	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))
	app.Use(middleware.LoggerMiddleware())

	routes.SetupRoutes(app, h)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		log.Printf("%s API v%s", appName, apiVersion)
		log.Printf("Environment: %s", cfg.AppEnv)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown incomplete")
	}
	scheduler.Stop(ctx)
	monitor.Flush()
	monitor.Stop()
	close(stopNotif)
	wsHub.Stop()
	database.Close()
}

// setupLogging configures logrus from LOG_LEVEL and LOG_FILE
func setupLogging() {
	cfg := config.AppConfig
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.AppEnv == "development" || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create log directory: %v", err)
		return
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Warning: Could not open log file: %v", err)
		return
	}
	logrus.SetOutput(file)
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
