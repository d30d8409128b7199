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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	Storage      StorageConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Files        FilesConfig
	Conversion   ConversionConfig
	Cron         CronConfig
	Ops          OpsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	presets, err := ParsePresets(cfg.Conversion.PresetSpecs)
	if err != nil {
		return nil, err
	}
	cfg.Conversion.Presets = presets
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CONVERTFLOW_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"CONVERTFLOW_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CONVERTFLOW_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CONVERTFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CONVERTFLOW_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"CONVERTFLOW_DB_DSN"`
	Driver string `envconfig:"CONVERTFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CONVERTFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"CONVERTFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CONVERTFLOW_DB_USER"`
	LegacyPassword string `envconfig:"CONVERTFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"CONVERTFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"CONVERTFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CONVERTFLOW_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"CONVERTFLOW_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONVERTFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CONVERTFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CONVERTFLOW_REDIS_URL"`
	Address      string        `envconfig:"CONVERTFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"CONVERTFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"CONVERTFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CONVERTFLOW_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"CONVERTFLOW_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"CONVERTFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CONVERTFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CONVERTFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CONVERTFLOW_AUTO_MIGRATE" default:"false"`
	AuditEvents bool `envconfig:"CONVERTFLOW_AUDIT_EVENTS" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CONVERTFLOW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CONVERTFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CONVERTFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type StorageConfig struct {
	InputBucket  string        `envconfig:"CONVERTFLOW_STORAGE_INPUT_BUCKET" required:"true"`
	OutputBucket string        `envconfig:"CONVERTFLOW_STORAGE_OUTPUT_BUCKET" required:"true"`
	Timeout      time.Duration `envconfig:"CONVERTFLOW_STORAGE_TIMEOUT" default:"60s"`
}

type PubSubConfig struct {
	NotificationSubscription string `envconfig:"CONVERTFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"CONVERTFLOW_BIGQUERY_DATASET" default:"convertflow"`
	EventsTable string `envconfig:"CONVERTFLOW_BIGQUERY_EVENTS_TABLE" default:"conversion_events"`
}

type FilesConfig struct {
	Root         string `envconfig:"CONVERTFLOW_FILES_ROOT" default:"/var/lib/convertflow/files"`
	ServeBaseURL string `envconfig:"CONVERTFLOW_FILES_SERVE_BASE_URL" default:"/files"`
	FFProbePath  string `envconfig:"CONVERTFLOW_FFPROBE_PATH" default:"ffprobe"`
}

type ConversionConfig struct {
	SiteID            string        `envconfig:"CONVERTFLOW_SITE_ID" required:"true"`
	EnabledProcesses  []string      `envconfig:"CONVERTFLOW_ENABLED_PROCESSES" default:"transcoder"`
	PresetSpecs       []string      `envconfig:"CONVERTFLOW_PRESETS" default:"hls-720p:hls:video,mp4-480p:mp4:video,aac-128k:m4a:audio"`
	StaleAfter        time.Duration `envconfig:"CONVERTFLOW_STALE_AFTER" default:"168h"`
	CreateCutoff      time.Duration `envconfig:"CONVERTFLOW_CREATE_CUTOFF" default:"720h"`
	MaxRecordsPerRun  int           `envconfig:"CONVERTFLOW_MAX_RECORDS_PER_RUN" default:"25"`
	Workers           int           `envconfig:"CONVERTFLOW_WORKERS" default:"4"`
	IngestMaxMessages int           `envconfig:"CONVERTFLOW_INGEST_MAX_MESSAGES" default:"100"`
	QueueWait         time.Duration `envconfig:"CONVERTFLOW_QUEUE_WAIT" default:"5s"`
	ImportRetryWindow time.Duration `envconfig:"CONVERTFLOW_IMPORT_RETRY_WINDOW" default:"24h"`

	Presets []PresetSpec `ignored:"true"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CONVERTFLOW_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"CONVERTFLOW_CRON_LOCK_TTL" default:"30m"`
}

type OpsConfig struct {
	Addr string `envconfig:"CONVERTFLOW_OPS_ADDR" default:":9090"`
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
