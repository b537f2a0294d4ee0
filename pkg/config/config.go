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
	JWT          JWTConfig
	TokenWallet  TokenWalletConfig
	DNSHost      DNSHostConfig
	Cron         CronConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ZONECRAFT_APP_ENV" required:"true"`
	Port         string `envconfig:"ZONECRAFT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ZONECRAFT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ZONECRAFT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ZONECRAFT_DB_DSN"`
	Driver string `envconfig:"ZONECRAFT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ZONECRAFT_DB_HOST"`
	LegacyPort     int    `envconfig:"ZONECRAFT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ZONECRAFT_DB_USER"`
	LegacyPassword string `envconfig:"ZONECRAFT_DB_PASSWORD"`
	LegacyName     string `envconfig:"ZONECRAFT_DB_NAME"`
	LegacySSLMode  string `envconfig:"ZONECRAFT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ZONECRAFT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ZONECRAFT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ZONECRAFT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ZONECRAFT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ZONECRAFT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ZONECRAFT_REDIS_ADDR"`
	Password     string        `envconfig:"ZONECRAFT_REDIS_PASSWORD"`
	DB           int           `envconfig:"ZONECRAFT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ZONECRAFT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ZONECRAFT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ZONECRAFT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ZONECRAFT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ZONECRAFT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ZONECRAFT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ZONECRAFT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ZONECRAFT_JWT_EXPIRATION_MINUTES" required:"true"`
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// TokenWalletConfig points at the external prepaid-balance provider.
type TokenWalletConfig struct {
	BaseURL string        `envconfig:"ZONECRAFT_TOKEN_WALLET_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"ZONECRAFT_TOKEN_WALLET_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"ZONECRAFT_TOKEN_WALLET_TIMEOUT" default:"10s"`
}

// DNSHostConfig points at the external DNS zone host.
type DNSHostConfig struct {
	BaseURL string        `envconfig:"ZONECRAFT_DNS_HOST_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"ZONECRAFT_DNS_HOST_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"ZONECRAFT_DNS_HOST_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"ZONECRAFT_CRON_INTERVAL" default:"24h"`
	LockTTL           time.Duration `envconfig:"ZONECRAFT_CRON_LOCK_TTL" default:"25h"`
	ReconcileLimit    int           `envconfig:"ZONECRAFT_CRON_RECONCILE_LIMIT" default:"250"`
	ReconcileLookback time.Duration `envconfig:"ZONECRAFT_CRON_RECONCILE_LOOKBACK" default:"168h"`
	MetricsPort       string        `envconfig:"ZONECRAFT_CRON_METRICS_PORT" default:"9091"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"ZONECRAFT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type RateLimitConfig struct {
	BillingWindow time.Duration `envconfig:"ZONECRAFT_RATE_LIMIT_BILLING_WINDOW" default:"1m"`
	BillingLimit  int           `envconfig:"ZONECRAFT_RATE_LIMIT_BILLING_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ZONECRAFT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ZONECRAFT_AUTO_MIGRATE" default:"false"`
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
