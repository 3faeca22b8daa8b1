package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/currency"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CATALOG_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CATALOG_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Uploads     UploadConfig
	Catalog     CatalogConfig
	Cart        CartConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig locates the cart session store. URL wins over Addr.
type RedisConfig struct {
	URL      string `usage:"Redis URL, e.g. redis://:pass@host:6379/0 (or REDIS_URL)"`
	Addr     string `default:"localhost:6379" usage:"Redis address"`
	Password string `usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// Options builds go-redis client options.
func (c RedisConfig) Options() (*redis.Options, error) {
	if c.URL != "" {
		opts, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}, nil
}

// UploadConfig controls where product images are written and served from.
type UploadConfig struct {
	Dir     string `default:"uploads" usage:"Directory for uploaded images"`
	Prefix  string `default:"/uploads" usage:"Public URL prefix of uploaded images"`
	MaxSize int    `default:"5242880" usage:"Maximum decoded image size in bytes"`
}

// CatalogConfig holds product validation policy.
type CatalogConfig struct {
	RequireCategories bool `default:"false" usage:"Reject products without categories"`
	StrictStock       bool `default:"false" usage:"Reject non-integer stock values instead of coercing them"`
}

// CartConfig controls cart sessions and notifications.
type CartConfig struct {
	Currency     string        `default:"EUR" usage:"ISO 4217 currency used for cart totals"`
	SessionTTL   time.Duration `default:"168h" usage:"Idle lifetime of a cart session"`
	ToastTTL     time.Duration `default:"3s" usage:"Time a notification stays visible"`
	PromoRefresh time.Duration `default:"1m" usage:"Promo code reload interval, 0 disables"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CATALOG",
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL, REDIS_URL and
// PORT variables set by hosting platforms.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = getenv("REDIS_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CATALOG_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Currency(); err != nil {
		return err
	}
	if c.Cart.ToastTTL <= 0 {
		return errors.Errorf("toast TTL must be positive, got %s", c.Cart.ToastTTL)
	}
	return nil
}

// Currency parses the configured cart currency.
func (c *Config) Currency() (currency.Unit, error) {
	unit, err := currency.ParseISO(c.Cart.Currency)
	if err != nil {
		return currency.Unit{}, errors.Wrapf(err, "parse currency %q", c.Cart.Currency)
	}
	return unit, nil
}
