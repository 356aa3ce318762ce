package config

const (
	EnvPrefix = "SPEEDYVAN"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv = "SPEEDYVAN_APP_ENV"
	EnvPort   = "SPEEDYVAN_APP_PORT"

	EnvDBDSN  = "SPEEDYVAN_DB_DSN"
	EnvDBHost = "SPEEDYVAN_DB_HOST"
	EnvDBUser = "SPEEDYVAN_DB_USER"
	EnvDBName = "SPEEDYVAN_DB_NAME"

	EnvRedisURL = "SPEEDYVAN_REDIS_URL"

	EnvGCPProjectID = "SPEEDYVAN_GCP_PROJECT_ID"

	EnvPubSubDriverTopic = "SPEEDYVAN_PUBSUB_DRIVER_TOPIC"
	EnvPubSubAdminTopic  = "SPEEDYVAN_PUBSUB_ADMIN_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	ServiceKindAPI             = "api"
	ServiceKindCronWorker      = "cron-worker"
	ServiceKindOutboxPublisher = "outbox-publisher"
)
