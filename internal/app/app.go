package app

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"portfolio/internal/config"
	"portfolio/internal/domain/upload"
	"portfolio/internal/middleware"
	"portfolio/internal/pkg/jwt"
)

// App holds the wired components of the HTTP service.
type App struct {
	Router  *gin.Engine
	Service *upload.Service
	Store   *upload.DiskStore
}

// New builds the upload pipeline from cfg and mounts it on a gin engine.
func New(cfg *config.Config, db *gorm.DB, log *slog.Logger) (*App, error) {
	store, err := upload.NewDiskStore(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureRoot(); err != nil {
		return nil, err
	}

	svc := NewService(cfg, db, store, log)
	handler := upload.NewHandler(svc, store)

	var verifier *jwt.Verifier
	if cfg.AuthEnabled() {
		verifier = jwt.NewVerifier(cfg.AuthJWTSecret, cfg.AuthJWTAudience)
	} else {
		log.Warn("AUTH_JWT_SECRET not set: mutating routes are unauthenticated")
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(middleware.ErrorLogger(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/health", healthHandler(db, store))

	api := r.Group("/api")
	upload.RegisterRoutes(
		api,
		handler,
		middleware.AdminAuth(verifier, log),
		middleware.BodyLimit(cfg.MaxUploadSize+middleware.MultipartOverhead),
	)
	upload.RegisterStatic(r, cfg.URLPrefix, handler)

	return &App{Router: r, Service: svc, Store: store}, nil
}

// NewService wires the pipeline without HTTP. Used by the API and the audit CLI.
func NewService(cfg *config.Config, db *gorm.DB, store *upload.DiskStore, log *slog.Logger) *upload.Service {
	return upload.NewService(
		upload.NewRepository(db),
		store,
		upload.NewPlacement(store, cfg.AllowedFolders),
		upload.Options{
			URLPrefix:   cfg.URLPrefix,
			MaxFileSize: cfg.MaxUploadSize,
			Tables: upload.TableSelector{
				Default:  cfg.DefaultTable,
				ByFolder: cfg.FolderTables,
			},
		},
		log,
	)
}

// Addr is the listen address for cfg.
func Addr(cfg *config.Config) string {
	return fmt.Sprintf(":%s", cfg.Port)
}
