package config

const EnvPrefix = "PIZZERIA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	SubmissionModePubSub = "pubsub"
	SubmissionModeHTTP   = "http"
)

const (
	EnvAppEnv    = "PIZZERIA_APP_ENV"
	EnvPort      = "PIZZERIA_APP_PORT"
	EnvLogLevel  = "PIZZERIA_LOG_LEVEL"
	EnvLogFormat = "PIZZERIA_LOG_FORMAT"

	EnvDBDSN  = "PIZZERIA_DB_DSN"
	EnvDBHost = "PIZZERIA_DB_HOST"
	EnvDBUser = "PIZZERIA_DB_USER"
	EnvDBName = "PIZZERIA_DB_NAME"

	EnvRedisURL  = "PIZZERIA_REDIS_URL"
	EnvUseSQLite = "PIZZERIA_USE_SQLITE"

	EnvCheckoutTaxRate         = "PIZZERIA_CHECKOUT_TAX_RATE"
	EnvCheckoutTipPresets      = "PIZZERIA_CHECKOUT_TIP_PRESETS"
	EnvCheckoutPickupLocations = "PIZZERIA_CHECKOUT_PICKUP_LOCATIONS"

	EnvSubmissionMode = "PIZZERIA_SUBMISSION_MODE"
	EnvSubmissionURL  = "PIZZERIA_SUBMISSION_URL"

	EnvGCPProjectID      = "PIZZERIA_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "PIZZERIA_PUBSUB_ORDERS_TOPIC"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
