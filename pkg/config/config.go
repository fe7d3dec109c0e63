package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Submission   SubmissionConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Submission.validate(cfg.PubSub); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PIZZERIA_APP_ENV" required:"true"`
	Port         string `envconfig:"PIZZERIA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PIZZERIA_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PIZZERIA_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PIZZERIA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PIZZERIA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PIZZERIA_DB_DSN"`
	Driver string `envconfig:"PIZZERIA_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PIZZERIA_DB_HOST"`
	Port     int    `envconfig:"PIZZERIA_DB_PORT" default:"5432"`
	User     string `envconfig:"PIZZERIA_DB_USER"`
	Password string `envconfig:"PIZZERIA_DB_PASSWORD"`
	Name     string `envconfig:"PIZZERIA_DB_NAME"`
	SSLMode  string `envconfig:"PIZZERIA_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"PIZZERIA_DB_SQLITE_PATH" default:"pizzeria.db"`

	MaxOpenConns    int           `envconfig:"PIZZERIA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PIZZERIA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PIZZERIA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PIZZERIA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PIZZERIA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PIZZERIA_REDIS_ADDR"`
	Password     string        `envconfig:"PIZZERIA_REDIS_PASSWORD"`
	DB           int           `envconfig:"PIZZERIA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PIZZERIA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PIZZERIA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PIZZERIA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PIZZERIA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PIZZERIA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PIZZERIA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PIZZERIA_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig carries the pricing rules and session lifetimes of the checkout flow.
type CheckoutConfig struct {
	TaxRate               decimal.Decimal   `envconfig:"PIZZERIA_CHECKOUT_TAX_RATE" default:"0.0825"`
	DeliveryFee           decimal.Decimal   `envconfig:"PIZZERIA_CHECKOUT_DELIVERY_FEE" default:"3.99"`
	FreeDeliveryThreshold decimal.Decimal   `envconfig:"PIZZERIA_CHECKOUT_FREE_DELIVERY_THRESHOLD" default:"25.00"`
	DefaultTip            decimal.Decimal   `envconfig:"PIZZERIA_CHECKOUT_DEFAULT_TIP" default:"3.00"`
	TipPresets            []decimal.Decimal `envconfig:"PIZZERIA_CHECKOUT_TIP_PRESETS" default:"2.00,3.00,5.00"`
	DeliveryWindow        string            `envconfig:"PIZZERIA_CHECKOUT_DELIVERY_WINDOW" default:"30-40 minutes"`
	PickupWindow          string            `envconfig:"PIZZERIA_CHECKOUT_PICKUP_WINDOW" default:"15-20 minutes"`
	SessionTTL            time.Duration     `envconfig:"PIZZERIA_CHECKOUT_SESSION_TTL" default:"24h"`
	SubmissionLockTTL     time.Duration     `envconfig:"PIZZERIA_CHECKOUT_SUBMISSION_LOCK_TTL" default:"2m"`
	PickupLocations       []string          `envconfig:"PIZZERIA_CHECKOUT_PICKUP_LOCATIONS" default:"downtown,lincoln-park,wicker-park"`
}

func (c CheckoutConfig) validate() error {
	if c.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvCheckoutTaxRate)
	}
	if c.DeliveryFee.IsNegative() || c.FreeDeliveryThreshold.IsNegative() || c.DefaultTip.IsNegative() {
		return fmt.Errorf("checkout fees, threshold and default tip must not be negative")
	}
	for _, preset := range c.TipPresets {
		if preset.IsNegative() {
			return fmt.Errorf("%s contains a negative preset %s", EnvCheckoutTipPresets, preset)
		}
	}
	return nil
}

type SubmissionConfig struct {
	Mode    string        `envconfig:"PIZZERIA_SUBMISSION_MODE" default:"pubsub"`
	URL     string        `envconfig:"PIZZERIA_SUBMISSION_URL"`
	Timeout time.Duration `envconfig:"PIZZERIA_SUBMISSION_TIMEOUT" default:"60s"`
}

func (s SubmissionConfig) validate(ps PubSubConfig) error {
	switch strings.ToLower(strings.TrimSpace(s.Mode)) {
	case SubmissionModePubSub:
		if ps.OrdersTopic == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvPubSubOrdersTopic, EnvSubmissionMode, SubmissionModePubSub)
		}
	case SubmissionModeHTTP:
		if _, err := url.ParseRequestURI(s.URL); err != nil {
			return fmt.Errorf("%s must be a valid url when %s=%s: %w", EnvSubmissionURL, EnvSubmissionMode, SubmissionModeHTTP, err)
		}
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvSubmissionMode, SubmissionModePubSub, SubmissionModeHTTP)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PIZZERIA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PIZZERIA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PIZZERIA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"PIZZERIA_PUBSUB_ORDERS_TOPIC"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"PIZZERIA_CORS_ALLOWED_ORIGINS" default:"*"`
}

type RateLimitConfig struct {
	PromoWindow time.Duration `envconfig:"PIZZERIA_RATE_LIMIT_PROMO_WINDOW" default:"1m"`
	PromoLimit  int           `envconfig:"PIZZERIA_RATE_LIMIT_PROMO_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"PIZZERIA_CRON_INTERVAL" default:"1h"`
	CartRetention    time.Duration `envconfig:"PIZZERIA_CRON_CART_RETENTION" default:"720h"`
	ProfileRetention time.Duration `envconfig:"PIZZERIA_CRON_PROFILE_RETENTION" default:"8760h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	partValues := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if partValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
