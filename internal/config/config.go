package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"portfolio/internal/pkg/validator"
)

const (
	defaultAppEnv        = "dev"
	defaultPort          = "8080"
	defaultDatabaseURL   = "portfolio.db"
	defaultStorageRoot   = "./uploads"
	defaultURLPrefix     = "/uploads"
	defaultMaxUploadSize = "50MiB"
	defaultTable         = "files"
	defaultFolderTables  = "images:media,videos:media"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

// Config is loaded once at process start and handed to the components that need it.
type Config struct {
	AppEnv      string `validate:"required"`
	Port        string `validate:"required,numeric"`
	DatabaseURL string `validate:"required"`

	StorageRoot    string `validate:"required"`
	URLPrefix      string `validate:"required,startswith=/"`
	MaxUploadSize  int64  `validate:"gt=0"`
	AllowedFolders []string

	DefaultTable string            `validate:"oneof=files media"`
	FolderTables map[string]string `validate:"dive,oneof=files media"`

	CORSAllowedOrigins []string
	AuthJWTSecret      string
	AuthJWTAudience    string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// Load reads the environment (optionally seeded from .env files) and validates the result.
func Load(envFiles ...string) (*Config, error) {
	// A missing default .env is fine; a missing file named by the caller is not.
	if err := godotenv.Load(envFiles...); err != nil && (len(envFiles) > 0 || !errors.Is(err, os.ErrNotExist)) {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{
		AppEnv:             strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", defaultAppEnv))),
		Port:               strings.TrimSpace(getEnv("PORT", defaultPort)),
		DatabaseURL:        strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL)),
		StorageRoot:        strings.TrimSpace(getEnv("STORAGE_ROOT", defaultStorageRoot)),
		URLPrefix:          strings.TrimRight(strings.TrimSpace(getEnv("UPLOAD_URL_PREFIX", defaultURLPrefix)), "/"),
		AllowedFolders:     parseList(os.Getenv("UPLOAD_ALLOWED_FOLDERS"), true),
		DefaultTable:       strings.ToLower(strings.TrimSpace(getEnv("CATALOG_DEFAULT_TABLE", defaultTable))),
		CORSAllowedOrigins: parseList(os.Getenv("CORS_ALLOWED_ORIGINS"), false),
		AuthJWTSecret:      strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
		AuthJWTAudience:    strings.TrimSpace(os.Getenv("AUTH_JWT_AUDIENCE")),
		LogLevel:           strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel))),
		LogFormat:          strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", defaultLogFormat))),
	}

	var err error
	cfg.MaxUploadSize, err = parseSizeEnv("MAX_UPLOAD_SIZE", defaultMaxUploadSize)
	if err != nil {
		return nil, err
	}

	cfg.FolderTables, err = parseFolderTables(getEnv("CATALOG_FOLDER_TABLES", defaultFolderTables))
	if err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the process runs with production safeguards.
func (c *Config) IsProduction() bool {
	return isProdLike(c.AppEnv)
}

// AuthEnabled reports whether mutating routes require an identity-provider token.
func (c *Config) AuthEnabled() bool {
	return c.AuthJWTSecret != ""
}

// LogValue keeps secrets out of startup logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("app_env", c.AppEnv),
		slog.String("port", c.Port),
		slog.String("storage_root", c.StorageRoot),
		slog.String("url_prefix", c.URLPrefix),
		slog.String("max_upload_size", humanize.IBytes(uint64(c.MaxUploadSize))),
		slog.String("default_table", c.DefaultTable),
		slog.Any("folder_tables", c.FolderTables),
		slog.Bool("auth_enabled", c.AuthEnabled()),
	)
}

func validateConfig(cfg *Config) error {
	if errs := validator.Validate(cfg); errs != nil {
		return fmt.Errorf("invalid config: %v", errs)
	}
	if cfg.URLPrefix == "" || cfg.URLPrefix == "/api" || strings.HasPrefix(cfg.URLPrefix, "/api/") {
		return fmt.Errorf("UPLOAD_URL_PREFIX must be a non-root path outside /api")
	}
	for folder := range cfg.FolderTables {
		if strings.TrimSpace(folder) == "" {
			return fmt.Errorf("CATALOG_FOLDER_TABLES contains an empty folder name")
		}
	}

	if isProdLike(cfg.AppEnv) && cfg.AuthJWTSecret == "" {
		return fmt.Errorf("in prod/release AUTH_JWT_SECRET must be set")
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func parseSizeEnv(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return int64(n), nil
}

// parseFolderTables parses "images:media,videos:media".
func parseFolderTables(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range parseList(raw, false) {
		folder, table, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid CATALOG_FOLDER_TABLES entry %q (want folder:table)", pair)
		}
		out[strings.ToLower(strings.TrimSpace(folder))] = strings.ToLower(strings.TrimSpace(table))
	}
	return out, nil
}

func parseList(raw string, lower bool) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if lower {
			item = strings.ToLower(item)
		}
		out = append(out, item)
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
