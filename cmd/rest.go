package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-gallery/core/config"
	"github.com/AzielCF/az-gallery/ui/rest"
	"github.com/AzielCF/az-gallery/ui/rest/middleware"
	"github.com/AzielCF/az-gallery/ui/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve galleries over http and websocket",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	cfg := coreconfig.Global

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		BodyLimit:               4 * 1024 * 1024,
		Network:                 "tcp",
		AppName:                 "Az-Gallery Sync Engine",
		ServerHeader:            "Hidden",
	}

	// Configure proxy settings if trusted proxies are specified
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.App.CorsAllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if cfg.App.Debug {
		app.Use(logger.New())
	}

	if len(cfg.App.BasicAuth) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Nothing should be public; please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}

	account := make(map[string]string)
	for _, basicAuth := range cfg.App.BasicAuth {
		ba := strings.Split(basicAuth, ":")
		if len(ba) != 2 {
			logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
		}
		account[ba[0]] = ba[1]
	}

	apiGroup := app.Group(cfg.App.BasePath + "/api")

	// Apply BasicAuth ONLY to the API group
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: account,
		Next: func(c *fiber.Ctx) bool {
			// Allow CORS preflight without credentials.
			return c.Method() == fiber.MethodOptions
		},
	}))

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		StopApp()
	}()

	rest.InitRestGallery(apiGroup, engine)
	rest.InitRestNotification(apiGroup, engine)
	rest.InitRestCache(apiGroup, cacheStore)
	rest.InitRestEngine(apiGroup, engine)
	rest.InitRestHealth(apiGroup, engine, vkClient)
	if settingsSvc != nil {
		rest.InitRestSettings(apiGroup, settingsSvc, cfg, engine)
	}

	// Websocket
	websocket.SetValkeyClient(vkClient, serverID)
	websocket.RegisterRoutes(apiGroup, engine)
	go websocket.RunHub(appCtx)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
}
