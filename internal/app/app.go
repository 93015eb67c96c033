package app

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/studiomoa/assetpipe/internal/assets/reconcile"
	"github.com/studiomoa/assetpipe/internal/config"
	appdb "github.com/studiomoa/assetpipe/internal/data/db"
	"github.com/studiomoa/assetpipe/internal/platform/gcp"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
	"github.com/studiomoa/assetpipe/internal/platform/transcode"
)

// App wires the pipeline: logger, postgres, object store, repos, services.
type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      config.Config
	Store    gcp.Store
	Repos    Repos
	Services Services
}

// New builds a fully wired application from the environment and an optional
// yaml pipeline config. Pass "" for cfgPath to run on defaults. Usage sources
// are deployment specific and injected by the caller; with none registered
// the reconciler refuses to run rather than assert empty ground truth.
func New(cfgPath string, usageSources ...reconcile.UsageSource) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	pg, err := appdb.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	store, err := gcp.NewStore(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init object store: %w", err)
	}

	transcoder := transcode.New(log)

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(log, cfg, store, transcoder, reposet, usageSources)

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Store:    store,
		Repos:    reposet,
		Services: serviceset,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
