package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Gemini     GeminiConfig
	Groq       GroqConfig
	R2         R2Config
	Zitadel    ZitadelConfig
	GitHub     GitHubConfig
	Email      EmailConfig
	Gateway    GatewayConfig
	Assessment AssessmentConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

// DatabaseConfig is the postgres connection. An empty DSN runs the
// in-memory store.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	FinalizePerHour int
	ReportPerHour   int
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	ImageModel string
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GitHubConfig struct {
	Token string
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
}

type GatewayConfig struct {
	Enabled bool
}

// AssessmentConfig holds the tunables of finalization, evaluation and memory
type AssessmentConfig struct {
	AppBaseURL            string
	MemoryRecentMessages  int
	MemorySummaryMaxChars int
	PRCleanupTimeout      time.Duration
	VideoKickoffTimeout   time.Duration
	ProfilePhotoTimeout   time.Duration
	EvaluationTimeout     time.Duration
	SignedURLExpiry       time.Duration
}

func Load() (*Config, error) {
	// Local development convenience; missing file is fine
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("DATABASE_URL")
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("GEMINI_API_KEY")
	readSecret("GROQ_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")
	readSecret("GITHUB_TOKEN")
	readSecret("RESEND_API_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("database.dsn", "DATABASE_URL")
	_ = viper.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	_ = viper.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	_ = viper.BindEnv("database.conn_max_lifetime", "DB_CONN_MAX_LIFETIME")
	_ = viper.BindEnv("database.auto_migrate", "DB_AUTO_MIGRATE")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.finalize_per_hour", "RATELIMIT_FINALIZE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.report_per_hour", "RATELIMIT_REPORT_PER_HOUR")
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = viper.BindEnv("gemini.image_model", "GEMINI_IMAGE_MODEL")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("github.token", "GITHUB_TOKEN")
	_ = viper.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	_ = viper.BindEnv("email.from", "EMAIL_FROM")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("assessment.app_base_url", "APP_BASE_URL")
	_ = viper.BindEnv("assessment.memory_recent_messages", "MEMORY_RECENT_MESSAGES")
	_ = viper.BindEnv("assessment.memory_summary_max_chars", "MEMORY_SUMMARY_MAX_CHARS")
	_ = viper.BindEnv("assessment.pr_cleanup_timeout", "PR_CLEANUP_TIMEOUT")
	_ = viper.BindEnv("assessment.video_kickoff_timeout", "VIDEO_KICKOFF_TIMEOUT")
	_ = viper.BindEnv("assessment.profile_photo_timeout", "PROFILE_PHOTO_TIMEOUT")
	_ = viper.BindEnv("assessment.evaluation_timeout", "EVALUATION_TIMEOUT")
	_ = viper.BindEnv("assessment.signed_url_expiry", "SIGNED_URL_EXPIRY")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("database.max_open_conns", 20)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.finalize_per_hour", 10)
	viper.SetDefault("ratelimit.report_per_hour", 30)

	// Model defaults
	viper.SetDefault("gemini.model", "gemini-2.5-pro")
	viper.SetDefault("gemini.image_model", "gemini-2.5-flash-image")
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	viper.SetDefault("email.from", "Assessments <reports@worksim.dev>")
	viper.SetDefault("gateway.enabled", false)

	// Assessment defaults
	viper.SetDefault("assessment.app_base_url", "http://localhost:3000")
	viper.SetDefault("assessment.memory_recent_messages", 20)
	viper.SetDefault("assessment.memory_summary_max_chars", 12000)
	viper.SetDefault("assessment.pr_cleanup_timeout", 30*time.Second)
	viper.SetDefault("assessment.video_kickoff_timeout", 15*time.Second)
	viper.SetDefault("assessment.profile_photo_timeout", 60*time.Second)
	viper.SetDefault("assessment.evaluation_timeout", 10*time.Minute)
	viper.SetDefault("assessment.signed_url_expiry", 6*time.Hour)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Database: DatabaseConfig{
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     viper.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			Enabled:  viper.GetBool("redis.enabled"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			FinalizePerHour: viper.GetInt("ratelimit.finalize_per_hour"),
			ReportPerHour:   viper.GetInt("ratelimit.report_per_hour"),
		},
		Gemini: GeminiConfig{
			APIKey:     viper.GetString("gemini.api_key"),
			Model:      viper.GetString("gemini.model"),
			ImageModel: viper.GetString("gemini.image_model"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		GitHub: GitHubConfig{
			Token: viper.GetString("github.token"),
		},
		Email: EmailConfig{
			ResendAPIKey: viper.GetString("email.resend_api_key"),
			From:         viper.GetString("email.from"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Assessment: AssessmentConfig{
			AppBaseURL:            viper.GetString("assessment.app_base_url"),
			MemoryRecentMessages:  viper.GetInt("assessment.memory_recent_messages"),
			MemorySummaryMaxChars: viper.GetInt("assessment.memory_summary_max_chars"),
			PRCleanupTimeout:      viper.GetDuration("assessment.pr_cleanup_timeout"),
			VideoKickoffTimeout:   viper.GetDuration("assessment.video_kickoff_timeout"),
			ProfilePhotoTimeout:   viper.GetDuration("assessment.profile_photo_timeout"),
			EvaluationTimeout:     viper.GetDuration("assessment.evaluation_timeout"),
			SignedURLExpiry:       viper.GetDuration("assessment.signed_url_expiry"),
		},
	}

	return cfg, nil
}

// IsDevelopment reports whether the server runs with development defaults
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Env, "development")
}
