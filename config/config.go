package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Station   StationConfig
	Audio     AudioConfig
	Telemetry TelemetryConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Enabled  bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// StationConfig bounds the call queue and identifies the token issuer.
type StationConfig struct {
	TokenSecret      string
	MaxActiveCalls   int
	CallExpiry       time.Duration
	ExpirySweepEvery time.Duration
}

type AudioConfig struct {
	SampleRate       int
	FrameDuration    time.Duration
	MasterVolume     int
	LimiterThreshold int
	MaxMicInputs     int
	DefaultCodec     string
	DefaultBitrate   int
	DefaultChannels  int
}

type TelemetryConfig struct {
	StatsInterval time.Duration
	AlertCooldown time.Duration
	RateLimitRPS  int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		redisDB = 0
	}

	origins := strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",")

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "aircast"),
			Password: getEnv("DB_PASSWORD", "aircast_password"),
			DBName:   getEnv("DB_NAME", "aircast_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Enabled:  getEnvBool("DB_ENABLED", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Station: StationConfig{
			TokenSecret:      getEnv("STATION_TOKEN_SECRET", "change-this-secret-key"),
			MaxActiveCalls:   getEnvInt("MAX_ACTIVE_CALLS", 4),
			CallExpiry:       getEnvDuration("CALL_EXPIRY", 5*time.Minute),
			ExpirySweepEvery: getEnvDuration("CALL_EXPIRY_SWEEP", 30*time.Second),
		},
		Audio: AudioConfig{
			SampleRate:       getEnvInt("AUDIO_SAMPLE_RATE", 48000),
			FrameDuration:    getEnvDuration("AUDIO_FRAME_DURATION", 20*time.Millisecond),
			MasterVolume:     getEnvInt("AUDIO_MASTER_VOLUME", 80),
			LimiterThreshold: getEnvInt("AUDIO_LIMITER_THRESHOLD", 95),
			MaxMicInputs:     getEnvInt("AUDIO_MAX_MIC_INPUTS", 2),
			DefaultCodec:     getEnv("MEDIA_DEFAULT_CODEC", "opus"),
			DefaultBitrate:   getEnvInt("MEDIA_DEFAULT_BITRATE", 128000),
			DefaultChannels:  getEnvInt("MEDIA_DEFAULT_CHANNELS", 2),
		},
		Telemetry: TelemetryConfig{
			StatsInterval: getEnvDuration("STATS_INTERVAL", 30*time.Second),
			AlertCooldown: getEnvDuration("ALERT_COOLDOWN", time.Minute),
			RateLimitRPS:  getEnvInt("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: origins,
		},
	}

	// Validate required fields
	if cfg.Station.TokenSecret == "change-this-secret-key" && cfg.Server.Env == "production" {
		return nil, fmt.Errorf("STATION_TOKEN_SECRET must be set in production")
	}

	return cfg, nil
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, defaultValue.String()))
	if err != nil {
		return defaultValue
	}
	return v
}
