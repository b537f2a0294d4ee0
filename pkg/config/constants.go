package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "zonecraft"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced directly (tests, error messages).
const (
	EnvAppEnv     = "ZONECRAFT_APP_ENV"
	EnvPort       = "ZONECRAFT_APP_PORT"
	EnvDBDSN      = "ZONECRAFT_DB_DSN"
	EnvDBHost     = "ZONECRAFT_DB_HOST"
	EnvDBUser     = "ZONECRAFT_DB_USER"
	EnvDBName     = "ZONECRAFT_DB_NAME"
	EnvRedisURL   = "ZONECRAFT_REDIS_URL"
	EnvJWTSecret  = "ZONECRAFT_JWT_SECRET"
	EnvJWTIssuer  = "ZONECRAFT_JWT_ISSUER"
	EnvJWTExpMins = "ZONECRAFT_JWT_EXPIRATION_MINUTES"

	EnvTokenWalletBaseURL = "ZONECRAFT_TOKEN_WALLET_BASE_URL"
	EnvTokenWalletAPIKey  = "ZONECRAFT_TOKEN_WALLET_API_KEY"
	EnvDNSHostBaseURL     = "ZONECRAFT_DNS_HOST_BASE_URL"
	EnvDNSHostAPIKey      = "ZONECRAFT_DNS_HOST_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
