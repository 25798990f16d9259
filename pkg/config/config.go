package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Identity     IdentityConfig
	Entitlements EntitlementsConfig
	FeatureFlags FeatureFlagsConfig
	RateLimit    RateLimitConfig
	Stripe       StripeConfig
	Threads      ThreadsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Identity.validate(); err != nil {
		return nil, err
	}
	if cfg.Entitlements.GraceDays <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvEntitlementGraceDays)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"KASIVIRAL_APP_ENV" required:"true"`
	Port         string   `envconfig:"KASIVIRAL_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"KASIVIRAL_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"KASIVIRAL_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"KASIVIRAL_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"KASIVIRAL_DB_DSN"`

	LegacyHost     string `envconfig:"KASIVIRAL_DB_HOST"`
	LegacyPort     int    `envconfig:"KASIVIRAL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KASIVIRAL_DB_USER"`
	LegacyPassword string `envconfig:"KASIVIRAL_DB_PASSWORD"`
	LegacyName     string `envconfig:"KASIVIRAL_DB_NAME"`
	LegacySSLMode  string `envconfig:"KASIVIRAL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KASIVIRAL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KASIVIRAL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KASIVIRAL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KASIVIRAL_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"KASIVIRAL_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KASIVIRAL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KASIVIRAL_REDIS_ADDR"`
	Password     string        `envconfig:"KASIVIRAL_REDIS_PASSWORD"`
	DB           int           `envconfig:"KASIVIRAL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KASIVIRAL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KASIVIRAL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KASIVIRAL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KASIVIRAL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KASIVIRAL_REDIS_WRITE_TIMEOUT" default:"5s"`
	// SlowThreshold logs commands slower than this; zero disables the hook.
	SlowThreshold time.Duration `envconfig:"KASIVIRAL_REDIS_SLOW_THRESHOLD" default:"250ms"`
}

// IdentityConfig points at the external identity provider that issues bearer tokens.
type IdentityConfig struct {
	Mode      string        `envconfig:"KASIVIRAL_IDENTITY_MODE" default:"jwt"`
	Endpoint  string        `envconfig:"KASIVIRAL_IDENTITY_ENDPOINT"`
	AnonKey   string        `envconfig:"KASIVIRAL_IDENTITY_ANON_KEY"`
	JWTSecret string        `envconfig:"KASIVIRAL_IDENTITY_JWT_SECRET"`
	Audience  string        `envconfig:"KASIVIRAL_IDENTITY_AUDIENCE" default:"authenticated"`
	Timeout   time.Duration `envconfig:"KASIVIRAL_IDENTITY_TIMEOUT" default:"5s"`
}

// NormalizedMode returns the lower-cased verifier mode.
func (i IdentityConfig) NormalizedMode() string {
	mode := strings.ToLower(strings.TrimSpace(i.Mode))
	if mode == "" {
		return IdentityModeJWT
	}
	return mode
}

func (i IdentityConfig) validate() error {
	switch i.NormalizedMode() {
	case IdentityModeJWT:
		if strings.TrimSpace(i.JWTSecret) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvIdentityJWTSecret, EnvIdentityMode, IdentityModeJWT)
		}
	case IdentityModeRemote:
		if strings.TrimSpace(i.Endpoint) == "" || strings.TrimSpace(i.AnonKey) == "" {
			return fmt.Errorf("%s and %s are required when %s=%s", EnvIdentityEndpoint, EnvIdentityAnonKey, EnvIdentityMode, IdentityModeRemote)
		}
	default:
		return fmt.Errorf("unknown %s %q", EnvIdentityMode, i.Mode)
	}
	return nil
}

type EntitlementsConfig struct {
	DefaultPlan  string        `envconfig:"KASIVIRAL_ENTITLEMENT_DEFAULT_PLAN" default:"monthly"`
	GraceDays    int           `envconfig:"KASIVIRAL_ENTITLEMENT_GRACE_DAYS" default:"30"`
	CheckTimeout time.Duration `envconfig:"KASIVIRAL_ENTITLEMENT_CHECK_TIMEOUT" default:"3s"`
}

// GraceWindow returns the expiry offset applied to newly provisioned entitlements.
func (e EntitlementsConfig) GraceWindow() time.Duration {
	return time.Duration(e.GraceDays) * 24 * time.Hour
}

type FeatureFlagsConfig struct {
	AutoMigrate        bool `envconfig:"KASIVIRAL_AUTO_MIGRATE" default:"false"`
	ActivationShortcut bool `envconfig:"KASIVIRAL_FEATURE_ACTIVATION_SHORTCUT" default:"false"`
}

type RateLimitConfig struct {
	RegisterWindow time.Duration `envconfig:"KASIVIRAL_RATE_LIMIT_REGISTER_WINDOW" default:"1m"`
	RegisterLimit  int           `envconfig:"KASIVIRAL_RATE_LIMIT_REGISTER_LIMIT" default:"10"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"KASIVIRAL_STRIPE_API_KEY"`
	Secret         string        `envconfig:"KASIVIRAL_STRIPE_SECRET"`
	Env            string        `envconfig:"KASIVIRAL_STRIPE_ENV" default:"test"`
	MonthlyPriceID string        `envconfig:"KASIVIRAL_STRIPE_MONTHLY_PRICE_ID"`
	AnnualPriceID  string        `envconfig:"KASIVIRAL_STRIPE_ANNUAL_PRICE_ID"`
	IdempotencyTTL time.Duration `envconfig:"KASIVIRAL_STRIPE_IDEMPOTENCY_TTL" default:"720h"`
	// SignatureTolerance bounds the age of a signed webhook timestamp.
	SignatureTolerance time.Duration `envconfig:"KASIVIRAL_STRIPE_SIGNATURE_TOLERANCE" default:"5m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether the webhook route can be served.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

type ThreadsConfig struct {
	Endpoint string        `envconfig:"KASIVIRAL_THREADS_ENDPOINT" default:"https://api.openai.com/v1/chat/completions"`
	APIKey   string        `envconfig:"KASIVIRAL_THREADS_API_KEY"`
	Model    string        `envconfig:"KASIVIRAL_THREADS_MODEL" default:"gpt-4o-mini"`
	Timeout  time.Duration `envconfig:"KASIVIRAL_THREADS_TIMEOUT" default:"60s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"KASIVIRAL_CRON_INTERVAL" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
