package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"crm_backend/pkg/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds everything the server needs at startup.
type Config struct {
	Port         string
	StoreDriver  string
	MaxBodyBytes int64

	Postgres struct {
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SSLMode    string
		SchemaPath string
	}
	Mongo struct {
		URI      string
		Database string
	}

	JWTSecret string
	JWTTTL    time.Duration

	CORSAllowedOrigins []string

	NATSURL           string
	NATSSubjectPrefix string

	LogLevel  string
	LogFormat string
}

// PostgresDSN renders the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User, c.Postgres.Password, c.Postgres.Name, c.Postgres.SSLMode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "4000")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("MAX_BODY_BYTES", 10<<20) // 10MB, enough for one base64 image

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "crm_user")
	v.SetDefault("DB_PASSWORD", "crm_password")
	v.SetDefault("DB_NAME", "crm_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_SCHEMA_PATH", "")

	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "crm")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", utils.AccessTokenTTL)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "crm.clients")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

// Load reads the optional .env file (ENV_FILE, default ".env"), then an optional config.yaml in
// the working directory or CONFIG_DIR, then the environment, which wins over both.
func Load() (*Config, error) {
	envFile := utils.Getenv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading the configuration file: %w", err)
		}
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:              v.GetString("PORT"),
		StoreDriver:       strings.ToLower(v.GetString("STORE_DRIVER")),
		MaxBodyBytes:      v.GetInt64("MAX_BODY_BYTES"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTTTL:            v.GetDuration("JWT_TTL"),
		NATSURL:           v.GetString("NATS_URL"),
		NATSSubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
	}
	cfg.Postgres.Host = v.GetString("DB_HOST")
	cfg.Postgres.Port = v.GetString("DB_PORT")
	cfg.Postgres.User = v.GetString("DB_USER")
	cfg.Postgres.Password = v.GetString("DB_PASSWORD")
	cfg.Postgres.Name = v.GetString("DB_NAME")
	cfg.Postgres.SSLMode = v.GetString("DB_SSLMODE")
	cfg.Postgres.SchemaPath = v.GetString("DB_SCHEMA_PATH")
	cfg.Mongo.URI = v.GetString("MONGODB_URI")
	cfg.Mongo.Database = v.GetString("MONGODB_DATABASE")

	for _, origin := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want postgres, mongo or memory)", c.StoreDriver)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}
