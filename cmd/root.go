package cmd

import (
	"context"
	"os"
	"time"

	coreconfig "github.com/AzielCF/az-gallery/core/config"
	coreDB "github.com/AzielCF/az-gallery/core/database"
	settingsApp "github.com/AzielCF/az-gallery/core/settings/application"
	"github.com/AzielCF/az-gallery/infrastructure/valkey"
	"github.com/AzielCF/az-gallery/pkg/deliverypool"
	"github.com/AzielCF/az-gallery/pkg/utils"
	"github.com/AzielCF/az-gallery/syncengine"
	"github.com/AzielCF/az-gallery/syncengine/application"
	"github.com/AzielCF/az-gallery/syncengine/domain/cache"
	"github.com/AzielCF/az-gallery/syncengine/domain/docstore"
	"github.com/AzielCF/az-gallery/syncengine/repository"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	appCtx    context.Context
	appCancel context.CancelFunc

	serverID string

	// Infrastructure
	vkClient     *valkey.Client
	deliveryPool *deliverypool.Pool
	gormStore    *repository.GormDocStore
	changeFeed   *repository.ValkeyFeed
	settingsSvc  *settingsApp.SettingsService

	// Engine
	docStore   docstore.Store
	cacheStore cache.Store
	engine     *syncengine.Manager
)

// flag values; applied over the environment in initEnvConfig
var flags struct {
	port            string
	debug           bool
	basicAuth       []string
	basePath        string
	trustedProxies  []string
	dbDriver        string
	dbName          string
	docStoreDriver  string
	cacheDriver     string
	valkey          bool
	valkeyAddress   string
	deliveryWorkers int
	pageSize        int
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "azgallery",
	Short: "Event gallery sync engine",
	Long: `Serves event galleries with live, cached and paginated data:
media, comments, likes, profiles and batched notifications.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

// initEnvConfig loads configuration from the environment, then applies the
// flags the user actually set.
func initEnvConfig() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] Failed to load configuration: %v", err)
	}

	pf := rootCmd.PersistentFlags()
	if pf.Changed("port") {
		cfg.App.Port = flags.port
	}
	if pf.Changed("debug") {
		cfg.App.Debug = flags.debug
	}
	if pf.Changed("basic-auth") {
		cfg.App.BasicAuth = flags.basicAuth
	}
	if pf.Changed("base-path") {
		cfg.App.BasePath = flags.basePath
	}
	if pf.Changed("trusted-proxies") {
		cfg.App.TrustedProxies = flags.trustedProxies
	}
	if pf.Changed("db-driver") {
		cfg.Database.Driver = flags.dbDriver
	}
	if pf.Changed("db-name") {
		cfg.Database.Name = flags.dbName
	}
	if pf.Changed("docstore") {
		cfg.DocStore.Driver = flags.docStoreDriver
	}
	if pf.Changed("cache") {
		cfg.Cache.Driver = flags.cacheDriver
	}
	if pf.Changed("valkey") {
		cfg.Database.ValkeyEnabled = flags.valkey
	}
	if pf.Changed("valkey-address") {
		cfg.Database.ValkeyAddress = flags.valkeyAddress
	}
	if pf.Changed("delivery-workers") {
		cfg.Delivery.Workers = flags.deliveryWorkers
	}
	if pf.Changed("page-size") {
		cfg.Sync.PageSize = flags.pageSize
	}

	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}

	logrus.Debugf("[CONFIG] %v", coreconfig.GetAllSettings())
}

func initFlags() {
	pf := rootCmd.PersistentFlags()

	// Application flags
	pf.StringVarP(&flags.port, "port", "p", "3000",
		"change port number with --port <number> | example: --port=8080")
	pf.BoolVarP(&flags.debug, "debug", "d", false,
		"hide or displaying log with --debug <true/false> | example: --debug=true")
	pf.StringSliceVarP(&flags.basicAuth, "basic-auth", "b", nil,
		"basic auth credential | -b=yourUsername:yourPassword")
	pf.StringVarP(&flags.basePath, "base-path", "", "",
		`base path for subpath deployment --base-path <string> | example: --base-path="/gallery"`)
	pf.StringSliceVarP(&flags.trustedProxies, "trusted-proxies", "", nil,
		`trusted proxy IP ranges for reverse proxy deployments | example: --trusted-proxies="10.0.0.0/8,172.16.0.0/12"`)

	// Storage flags
	pf.StringVarP(&flags.dbDriver, "db-driver", "", "sqlite",
		`database driver --db-driver <sqlite|postgres>`)
	pf.StringVarP(&flags.dbName, "db-name", "", "",
		`sqlite file or postgres database name | example: --db-name="storages/gallery.db"`)
	pf.StringVarP(&flags.docStoreDriver, "docstore", "", "gorm",
		`document store backend --docstore <gorm|memory>`)
	pf.StringVarP(&flags.cacheDriver, "cache", "", "memory",
		`cache backend --cache <memory|valkey>`)
	pf.BoolVarP(&flags.valkey, "valkey", "", false,
		`enable valkey for the shared cache and cross-node change feed`)
	pf.StringVarP(&flags.valkeyAddress, "valkey-address", "", "localhost:6379",
		`valkey address --valkey-address <host:port>`)

	// Engine flags
	pf.IntVarP(&flags.deliveryWorkers, "delivery-workers", "", 8,
		`number of live delivery workers --delivery-workers <number>`)
	pf.IntVarP(&flags.pageSize, "page-size", "", 20,
		`media page size --page-size <number>`)
}

func initApp() {
	cfg := coreconfig.Global
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// preparing folder if not exist
	if err := utils.CreateFolder(cfg.Paths.Storages); err != nil {
		logrus.Errorln(err)
	}

	appCtx, appCancel = context.WithCancel(context.Background())
	id, err := utils.NodeID(cfg.App.ServerID, cfg.Paths.Storages)
	if err != nil {
		logrus.Warnf("[APP] Node ID %s is not persisted: %v", id, err)
	}
	serverID = id
	logrus.Infof("[APP] Node ID: %s", serverID)

	// 1. Valkey (optional)
	if cfg.Database.ValkeyEnabled {
		client, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Fatalf("[VALKEY] %v", err)
		}
		vkClient = client
		logrus.Infof("[VALKEY] Connected to %s", cfg.Database.ValkeyAddress)
	}

	// 2. Live delivery workers
	deliveryPool = deliverypool.NewPool(cfg.Delivery.Workers, cfg.Delivery.QueueSize)
	deliveryPool.Start(appCtx)

	// 3. Document store
	switch cfg.DocStore.Driver {
	case "memory":
		mem := repository.NewMemoryDocStore(deliveryPool)
		attachFeed(mem.Hub())
		docStore = mem
	default:
		db, err := coreDB.NewDatabase(cfg)
		if err != nil {
			logrus.Fatalf("[DATABASE] %v", err)
		}
		gormStore = repository.NewGormDocStore(db, deliveryPool)
		if err := gormStore.Init(appCtx); err != nil {
			logrus.Fatalf("[DATABASE] Failed to migrate documents table: %v", err)
		}
		attachFeed(gormStore.Hub())
		docStore = gormStore

		// Stored overrides win over the environment
		settingsSvc = settingsApp.NewSettingsService(db)
		if err := settingsSvc.Init(appCtx); err != nil {
			logrus.Fatalf("[SETTINGS] Failed to migrate settings table: %v", err)
		}
		overrides, err := settingsSvc.Load(appCtx)
		if err != nil {
			logrus.Errorf("[SETTINGS] Failed to load stored settings: %v", err)
		}
		settingsApp.Apply(cfg, overrides)
	}

	// 4. Cache
	if cfg.Cache.Driver == "valkey" && vkClient != nil {
		cacheStore = repository.NewValkeyCacheStore(vkClient)
	} else {
		cacheStore = repository.NewMemoryCacheStore()
	}

	// 5. Engine
	engine = syncengine.NewManager(appCtx, engineConfig(cfg), docStore, cacheStore, deliveryPool)
}

// attachFeed shares change signals with other nodes when valkey is enabled.
func attachFeed(hub *repository.LiveHub) {
	if vkClient == nil {
		return
	}
	changeFeed = repository.NewValkeyFeed(vkClient, serverID)
	hub.AttachFeed(changeFeed)
	changeFeed.Run(appCtx)
}

func engineConfig(cfg *coreconfig.Config) syncengine.Config {
	ttls := cfg.Cache.TTLs()
	return syncengine.Config{
		SubscribeDebounce: time.Duration(cfg.Sync.SubscribeDebounceMs) * time.Millisecond,
		Session: application.SessionConfig{
			PageSize: cfg.Sync.PageSize,
			Stagger:  time.Duration(cfg.Sync.StaggerMs) * time.Millisecond,
			TTLs:     ttls,
		},
		Notifications: application.NotificationConfig{
			BatchSize:  cfg.Notifications.BatchSize,
			BatchDelay: time.Duration(cfg.Notifications.BatchDelayMs) * time.Millisecond,
			MaxRetries: cfg.Notifications.MaxRetries,
			LiveLimit:  cfg.Notifications.LiveLimit,
			ReadChunk:  cfg.Notifications.ReadChunk,
			TTL:        ttls[cache.KindNotifications],
		},
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp flushes pending notifications and releases every connection.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. Engine: sessions, pending notifications, listeners
	if engine != nil {
		if err := engine.Stop(ctx); err != nil {
			logrus.Errorf("[APP] Engine stopped with errors: %v", err)
		}
	}

	// 2. Delivery workers and background subscribers
	if deliveryPool != nil {
		deliveryPool.Stop()
	}
	if appCancel != nil {
		appCancel()
	}

	// 3. Connections
	if vkClient != nil {
		vkClient.Close()
	}
	if coreDB.GlobalDB != nil {
		if sqlDB, err := coreDB.GlobalDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
