package shared

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"loo_review/internal/domain"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	APIBaseURL string
	APIRPS     int

	SessionDriver string
	SessionDSN    string

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	GeocoderBase string
	GeocoderUA   string
	GeocoderRPS  int

	Categories  []domain.Category
	PolicyTerms []string
	MaxImageDim int

	ImportManifest string
	ImportWorkers  int
}

// Load reads .env (if present) and the environment, then validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg(".env not loaded")
	}

	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),

		APIBaseURL: env("API_BASE_URL", "http://localhost:8000/api"),
		APIRPS:     atoi("API_RPS", 5),

		SessionDriver: env("SESSION_DB_DRIVER", "sqlite3"),
		SessionDSN:    env("SESSION_DSN", "file:looreview.db?_busy_timeout=5000"),

		RedisAddr: env("REDIS_ADDR", ""),
		RedisPass: env("REDIS_PASSWORD", ""),
		RedisDB:   atoi("REDIS_DB", 0),
		CacheTTL:  time.Duration(atoi("CACHE_TTL_SECONDS", 60)) * time.Second,

		GeocoderBase: env("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUA:   env("GEOCODER_USER_AGENT", "loo-review/1.0"),
		GeocoderRPS:  atoi("GEOCODER_RPS", 1),

		PolicyTerms: list("POLICY_TERMS", nil),
		MaxImageDim: atoi("MAX_IMAGE_DIM", 1600),

		ImportManifest: env("IMPORT_MANIFEST", "reviews.yaml"),
		ImportWorkers:  atoi("IMPORT_WORKERS", 4),
	}

	names := list("RATING_CATEGORIES", nil)
	if len(names) == 0 {
		c.Categories = append([]domain.Category(nil), domain.DefaultCategories...)
	} else {
		cats, err := domain.ParseCategories(names)
		if err != nil {
			return Config{}, fmt.Errorf("RATING_CATEGORIES: %w", err)
		}
		c.Categories = cats
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIBaseURL) == "" {
		errs = append(errs, errors.New("API_BASE_URL is required"))
	}
	if len(c.Categories) != domain.CategoryCount {
		errs = append(errs, fmt.Errorf("need exactly %d rating categories, got %d", domain.CategoryCount, len(c.Categories)))
	}
	switch c.SessionDriver {
	case "sqlite3", "mysql":
	default:
		errs = append(errs, fmt.Errorf("SESSION_DB_DRIVER %q: want sqlite3 or mysql", c.SessionDriver))
	}
	if c.APIRPS <= 0 {
		errs = append(errs, errors.New("API_RPS must be positive"))
	}
	if c.ImportWorkers <= 0 {
		errs = append(errs, errors.New("IMPORT_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
	}
	return def
}

// list splits a comma-separated value, dropping blanks.
func list(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
