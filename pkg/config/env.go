package config

// EnvPrefix is the envconfig prefix shared by every variable below.
const EnvPrefix = "castlemart"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Raw variable names, used by tests and the DSN fallback error message.
const (
	EnvAppEnv     = "CASTLEMART_APP_ENV"
	EnvPort       = "CASTLEMART_APP_PORT"
	EnvDBDSN      = "CASTLEMART_DB_DSN"
	EnvDBHost     = "CASTLEMART_DB_HOST"
	EnvDBUser     = "CASTLEMART_DB_USER"
	EnvDBName     = "CASTLEMART_DB_NAME"
	EnvRedisURL   = "CASTLEMART_REDIS_URL"
	EnvJWTSecret  = "CASTLEMART_JWT_SECRET"
	EnvJWTIssuer  = "CASTLEMART_JWT_ISSUER"
	EnvJWTExpMins = "CASTLEMART_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID      = "CASTLEMART_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "CASTLEMART_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "CASTLEMART_PUBSUB_ORDERS_SUBSCRIPTION"

	EnvSquareAccessToken = "CASTLEMART_SQUARE_ACCESS_TOKEN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
