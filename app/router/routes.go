// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/amirphl/booster/app/dto"
	"github.com/amirphl/booster/app/handlers"
	"github.com/amirphl/booster/app/middleware"
	"github.com/amirphl/booster/app/services"
	"github.com/amirphl/booster/config"
	"github.com/amirphl/booster/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	cfg            *config.ProductionConfig
	auth           *middleware.AuthMiddleware
	boostHandler   handlers.BoostHandlerInterface
	tariffHandler  handlers.TariffAdminHandlerInterface
	expenseHandler handlers.ExpenseAdminHandlerInterface
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	auth *middleware.AuthMiddleware,
	boostHandler handlers.BoostHandlerInterface,
	tariffHandler handlers.TariffAdminHandlerInterface,
	expenseHandler handlers.ExpenseAdminHandlerInterface,
) *FiberRouter {
	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 4 * 1024 * 1024
	}

	app := fiber.New(fiber.Config{
		AppName:      "Booster API",
		ServerHeader: "booster",
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:            app,
		cfg:            cfg,
		auth:           auth,
		boostHandler:   boostHandler,
		tariffHandler:  tariffHandler,
		expenseHandler: expenseHandler,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	if r.cfg.Deployment.Environment == "development" || r.cfg.Deployment.Environment == "local" {
		api.Get("/docs", r.getAPIDocumentation)
	}

	api.Use(limiter.New(limiter.Config{
		Max:        r.rateLimit(),
		Expiration: r.rateLimitWindow(),
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))

	// Booster worker endpoints
	boosts := api.Group("/boosts", r.auth.RequireScope(services.ScopeBoost))
	boosts.Post("/", r.boostHandler.RequestBoost)
	boosts.Get("/:id", r.boostHandler.GetBoost)
	boosts.Delete("/:id", r.boostHandler.StopBoost)

	api.Get("/services", r.auth.RequireScope(services.ScopeBoost), r.boostHandler.GetService)

	// Operator endpoints
	admin := api.Group("/admin", r.auth.RequireScope(services.ScopeAdmin))
	admin.Get("/tariffs", r.tariffHandler.ListTariffs)
	admin.Post("/tariffs", r.tariffHandler.CreateTariff)
	admin.Put("/tariffs/:id", r.tariffHandler.UpdateTariff)
	admin.Get("/expenses/summary", r.expenseHandler.Summary)
	admin.Get("/expenses/export", r.expenseHandler.Export)

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))

	r.app.Use(middleware.Metrics())

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000, // 1 year
		ReferrerPolicy:     "no-referrer",
	}))

	if len(r.cfg.Server.AllowedOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins: r.cfg.Server.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"Authorization",
				"X-Request-ID",
			},
			ExposeHeaders: []string{"X-Request-ID", "Content-Disposition"},
			MaxAge:        utils.CORSMaxAge,
		}))
	}

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))
}

func (r *FiberRouter) rateLimit() int {
	if r.cfg.Server.GlobalRateLimit > 0 {
		return r.cfg.Server.GlobalRateLimit
	}
	return 2000
}

func (r *FiberRouter) rateLimitWindow() time.Duration {
	if r.cfg.Server.RateLimitWindow > 0 {
		return r.cfg.Server.RateLimitWindow
	}
	return time.Minute
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.cfg.Deployment.Version,
			"service":   "booster",
		},
	})
}

func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":     "Booster API",
			"version":   r.cfg.Deployment.Version,
			"endpoints": GetRouteDocumentation(),
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": c.Locals("requestid"),
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error %d: %v", code, err)

	message := "An internal server error occurred"
	if code < fiber.StatusInternalServerError {
		message = err.Error()
	}
	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": c.Locals("requestid"),
			},
		},
	})
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// GetRouteDocumentation returns API documentation
func GetRouteDocumentation() []map[string]any {
	return []map[string]any{
		{
			"method":      "POST",
			"path":        "/api/v1/boosts",
			"scope":       services.ScopeBoost,
			"description": "Start pacing a target over the 24 hours after its publish time",
			"parameters": map[string]any{
				"module":         "string (required) - old_views|new_views|subscribers",
				"ref_id":         "string (required) - Caller reference of the target",
				"target_link":    "string (required) - Link the orders are placed for",
				"total_quantity": "number (required) - Units to deliver over the window",
				"publish_time":   "string (required) - RFC3339 publish time",
				"time_zone":      "string (optional) - IANA zone used to derive the buckets",
				"bucket_type":    "string (optional) - night|morning|day|evening",
			},
		},
		{
			"method":      "GET",
			"path":        "/api/v1/boosts/:id",
			"scope":       services.ScopeBoost,
			"description": "Demand status with its placed orders",
		},
		{
			"method":      "DELETE",
			"path":        "/api/v1/boosts/:id",
			"scope":       services.ScopeBoost,
			"description": "Stop a running demand",
		},
		{
			"method":      "GET",
			"path":        "/api/v1/services",
			"scope":       services.ScopeBoost,
			"description": "Select the upstream service for a one-off order",
			"parameters": map[string]any{
				"module":   "string (required) - Query parameter",
				"quantity": "number (required) - Query parameter",
			},
		},
		{
			"method":      "GET|POST|PUT",
			"path":        "/api/v1/admin/tariffs",
			"scope":       services.ScopeAdmin,
			"description": "List, create and update tariffs",
		},
		{
			"method":      "GET",
			"path":        "/api/v1/admin/expenses/summary",
			"scope":       services.ScopeAdmin,
			"description": "Spend of a module for the current week or month",
		},
		{
			"method":      "GET",
			"path":        "/api/v1/admin/expenses/export",
			"scope":       services.ScopeAdmin,
			"description": "Expenses of a date range as an xlsx workbook",
		},
		{
			"method":      "GET",
			"path":        "/api/v1/health",
			"description": "Health check endpoint",
		},
	}
}
