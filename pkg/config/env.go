package config

const (
	EnvPrefix = "CONVERTFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                 = "CONVERTFLOW_APP_ENV"
	EnvDBDSN                  = "CONVERTFLOW_DB_DSN"
	EnvDBHost                 = "CONVERTFLOW_DB_HOST"
	EnvDBUser                 = "CONVERTFLOW_DB_USER"
	EnvDBName                 = "CONVERTFLOW_DB_NAME"
	EnvRedisURL               = "CONVERTFLOW_REDIS_URL"
	EnvGCPProjectID           = "CONVERTFLOW_GCP_PROJECT_ID"
	EnvStorageInputBucket     = "CONVERTFLOW_STORAGE_INPUT_BUCKET"
	EnvStorageOutputBucket    = "CONVERTFLOW_STORAGE_OUTPUT_BUCKET"
	EnvPubSubNotificationSub  = "CONVERTFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvSiteID                 = "CONVERTFLOW_SITE_ID"
	EnvEnabledProcesses       = "CONVERTFLOW_ENABLED_PROCESSES"
	EnvPresets                = "CONVERTFLOW_PRESETS"
	EnvStaleAfter             = "CONVERTFLOW_STALE_AFTER"
	EnvMaxRecordsPerRun       = "CONVERTFLOW_MAX_RECORDS_PER_RUN"
	EnvIngestMaxMessages      = "CONVERTFLOW_INGEST_MAX_MESSAGES"
	EnvFilesRoot              = "CONVERTFLOW_FILES_ROOT"
	EnvFilesServeBaseURL      = "CONVERTFLOW_FILES_SERVE_BASE_URL"
	EnvCronInterval           = "CONVERTFLOW_CRON_INTERVAL"
	EnvBigQueryDataset        = "CONVERTFLOW_BIGQUERY_DATASET"
	EnvBigQueryEventsTable    = "CONVERTFLOW_BIGQUERY_EVENTS_TABLE"
	EnvFeatureFlagAuditEvents = "CONVERTFLOW_AUDIT_EVENTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
