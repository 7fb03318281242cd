package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"odcrm/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	TokenURL     string `json:"token_url"`
}

// DispatchConfig holds the tunables of the send-scheduling engine. The caps
// are deployment configuration, not product constants.
type DispatchConfig struct {
	Interval          time.Duration `json:"interval"`
	SendTimeout       time.Duration `json:"send_timeout"`
	Concurrency       int           `json:"concurrency"`
	MaxSendAttempts   int           `json:"max_send_attempts"`
	RetryBackoff      time.Duration `json:"retry_backoff"`
	CustomerDailyCap  int           `json:"customer_daily_cap"`
	IdentityDailyCap  int           `json:"identity_daily_cap"` // default for new identities
	ReplyHaltsDefault bool          `json:"reply_halts_default"`
}

type Config struct {
	Environment         string         `json:"environment"`
	ServerPort          string         `json:"server_port"`
	BaseURL             string         `json:"base_url"` // public base for tracking links
	EncryptionKey       string         `json:"-"`
	TokenSigningKey     string         `json:"-"`
	DBHost              string         `json:"db_host"`
	DBPort              string         `json:"db_port"`
	DBUser              string         `json:"db_user"`
	DBPassword          string         `json:"-"`
	DBName              string         `json:"db_name"`
	DBSSLMode           string         `json:"db_ssl_mode"`
	DBMaxIdleConns      int            `json:"db_max_idle_conns"`
	DBMaxOpenConns      int            `json:"db_max_open_conns"`
	SentryDSN           string         `json:"-"`
	Microsoft           OAuthConfig    `json:"microsoft"`
	Redis               RedisConfig    `json:"redis"`
	Dispatch            DispatchConfig `json:"dispatch"`
	RateLimitTestSender int            `json:"rate_limit_test_sender"`
	ReplyPollInterval   time.Duration  `json:"reply_poll_interval"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		ServerPort:      getEnv("SERVER_PORT", "5000"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:5000"),
		EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
		TokenSigningKey: getEnv("TOKEN_SIGNING_KEY", ""),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "odcrm"),
		DBSSLMode:       getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns:  getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		Microsoft: OAuthConfig{
			ClientID:     getEnv("MICROSOFT_CLIENT_ID", ""),
			ClientSecret: getEnv("MICROSOFT_CLIENT_SECRET", ""),
			TokenURL:     getEnv("MICROSOFT_TOKEN_URL", "https://login.microsoftonline.com/common/oauth2/v2.0/token"),
		},
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Dispatch: DispatchConfig{
			Interval:          getEnvAsDuration("DISPATCH_INTERVAL", time.Minute),
			SendTimeout:       getEnvAsDuration("SEND_TIMEOUT", 30*time.Second),
			Concurrency:       getEnvAsInt("DISPATCH_CONCURRENCY", 8),
			MaxSendAttempts:   getEnvAsInt("MAX_SEND_ATTEMPTS", 3),
			RetryBackoff:      getEnvAsDuration("RETRY_BACKOFF", 15*time.Minute),
			CustomerDailyCap:  getEnvAsInt("CUSTOMER_DAILY_CAP", 160),
			IdentityDailyCap:  getEnvAsInt("IDENTITY_DAILY_LIMIT", 150),
			ReplyHaltsDefault: getEnv("REPLY_HALTS_SEQUENCE", "true") == "true",
		},
		RateLimitTestSender: getEnvAsInt("RATE_LIMIT_TEST_SENDER", 5),
		ReplyPollInterval:   getEnvAsDuration("REPLY_POLL_INTERVAL", 5*time.Minute),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.TokenSigningKey == "" {
		return fmt.Errorf("TOKEN_SIGNING_KEY is required")
	}
	if AppConfig.Dispatch.CustomerDailyCap < 1 {
		return fmt.Errorf("CUSTOMER_DAILY_CAP must be at least 1")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	log.Println("Starting database migration...")
	if err := models.Migrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// Helper functions

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return d
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Dispatch: every %s, customer cap %d/day, identity default %d/day",
		AppConfig.Dispatch.Interval,
		AppConfig.Dispatch.CustomerDailyCap,
		AppConfig.Dispatch.IdentityDailyCap)
}
