package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "AGRIMARKET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside of struct tags.
const (
	EnvAppEnv     = "AGRIMARKET_APP_ENV"
	EnvPort       = "AGRIMARKET_APP_PORT"
	EnvLogLevel   = "AGRIMARKET_LOG_LEVEL"
	EnvLogFormat  = "AGRIMARKET_LOG_FORMAT"
	EnvDBDSN      = "AGRIMARKET_DB_DSN"
	EnvDBHost     = "AGRIMARKET_DB_HOST"
	EnvDBUser     = "AGRIMARKET_DB_USER"
	EnvDBName     = "AGRIMARKET_DB_NAME"
	EnvRedisURL   = "AGRIMARKET_REDIS_URL"
	EnvJWTSecret  = "AGRIMARKET_JWT_SECRET"
	EnvJWTIssuer  = "AGRIMARKET_JWT_ISSUER"
	EnvJWTExpMins = "AGRIMARKET_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID          = "AGRIMARKET_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic     = "AGRIMARKET_PUBSUB_ORDERS_TOPIC"
	EnvEventsQueueSize       = "AGRIMARKET_EVENTS_QUEUE_SIZE"
	EnvEventsWorkers         = "AGRIMARKET_EVENTS_WORKERS"
	EnvEventsAnalyticsEnable = "AGRIMARKET_EVENTS_ANALYTICS_ENABLED"
	EnvBigQueryDataset       = "AGRIMARKET_BIGQUERY_DATASET"
)
