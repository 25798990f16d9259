package config

const (
	EnvPrefix = "KASIVIRAL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "KASIVIRAL_APP_ENV"
	EnvPort     = "KASIVIRAL_APP_PORT"
	EnvLogLevel = "KASIVIRAL_LOG_LEVEL"

	EnvDBDSN  = "KASIVIRAL_DB_DSN"
	EnvDBHost = "KASIVIRAL_DB_HOST"
	EnvDBUser = "KASIVIRAL_DB_USER"
	EnvDBName = "KASIVIRAL_DB_NAME"

	EnvRedisURL = "KASIVIRAL_REDIS_URL"

	EnvIdentityMode      = "KASIVIRAL_IDENTITY_MODE"
	EnvIdentityEndpoint  = "KASIVIRAL_IDENTITY_ENDPOINT"
	EnvIdentityAnonKey   = "KASIVIRAL_IDENTITY_ANON_KEY"
	EnvIdentityJWTSecret = "KASIVIRAL_IDENTITY_JWT_SECRET"
	EnvIdentityAudience  = "KASIVIRAL_IDENTITY_AUDIENCE"

	EnvEntitlementGraceDays   = "KASIVIRAL_ENTITLEMENT_GRACE_DAYS"
	EnvEntitlementDefaultPlan = "KASIVIRAL_ENTITLEMENT_DEFAULT_PLAN"

	EnvActivationShortcut = "KASIVIRAL_FEATURE_ACTIVATION_SHORTCUT"

	EnvStripeAPIKey = "KASIVIRAL_STRIPE_API_KEY"
	EnvStripeSecret = "KASIVIRAL_STRIPE_SECRET"
)

const (
	IdentityModeJWT    = "jwt"
	IdentityModeRemote = "remote"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
