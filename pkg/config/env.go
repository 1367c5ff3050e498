package config

const EnvPrefix = "ROSCA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	ReserveModeLocal  = "local"
	ReserveModeRemote = "remote"
)

const (
	EnvAppEnv   = "ROSCA_APP_ENV"
	EnvPort     = "ROSCA_APP_PORT"
	EnvLogLevel = "ROSCA_LOG_LEVEL"

	EnvDBDSN    = "ROSCA_DB_DSN"
	EnvDBDriver = "ROSCA_DB_DRIVER"
	EnvDBHost   = "ROSCA_DB_HOST"
	EnvDBUser   = "ROSCA_DB_USER"
	EnvDBName   = "ROSCA_DB_NAME"

	EnvRedisURL = "ROSCA_REDIS_URL"

	EnvJWTSecret = "ROSCA_JWT_SECRET"
	EnvJWTIssuer = "ROSCA_JWT_ISSUER"

	EnvFeePlatformBPS = "ROSCA_FEE_PLATFORM_BPS"
	EnvFeeReserveBPS  = "ROSCA_FEE_RESERVE_BPS"

	EnvSettlementCutoff   = "ROSCA_SETTLEMENT_CUTOFF"
	EnvSettlementTimezone = "ROSCA_SETTLEMENT_TIMEZONE"
	EnvSettlementWorkers  = "ROSCA_SETTLEMENT_WORKERS"

	EnvGatewayBaseURL       = "ROSCA_GATEWAY_BASE_URL"
	EnvGatewaySecretKey     = "ROSCA_GATEWAY_SECRET_KEY"
	EnvGatewayWebhookSecret = "ROSCA_GATEWAY_WEBHOOK_SECRET"

	EnvReserveMode = "ROSCA_RESERVE_MODE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
