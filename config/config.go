package config

import (
	"fmt"
	"os"

	"github.com/fearlessjoy/fridaynz/logging"

	"github.com/joho/godotenv"
)

// Config carries everything read from the environment at startup.
type Config struct {
	MongoURI      string
	MongoDBName   string
	CassandraHost string
	RedisAddr     string
	JWTSecret     string
	RelayPort     string
	BlobBaseURL   string

	SMTPHost     string
	SMTPPort     string
	EmailFrom    string
	EmailAppPass string
}

// Load reads .env when present, then the process environment. Required keys
// missing is an error; optional backends (Cassandra, Redis, SMTP) degrade to
// disabled when unset.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		logging.Logger.Warnf("Event ID: ENV_LOAD_SKIPPED, Description: No .env file loaded: %v", err)
	}

	cfg := &Config{
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDBName:   os.Getenv("MONGO_DB_NAME"),
		CassandraHost: os.Getenv("CASS_DB"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RelayPort:     os.Getenv("RELAY_PORT"),
		BlobBaseURL:   os.Getenv("BLOB_BASE_URL"),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      os.Getenv("SMTP_PORT"),
		EmailFrom:     os.Getenv("EMAIL_FROM"),
		EmailAppPass:  os.Getenv("EMAIL_PASSWORD"),
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is not set in the environment variables")
	}
	if cfg.MongoDBName == "" {
		cfg.MongoDBName = "fridaynz"
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set in the environment variables")
	}
	if cfg.RelayPort == "" {
		cfg.RelayPort = "8085"
	}
	if cfg.SMTPHost == "" {
		cfg.SMTPHost = "smtp.gmail.com"
	}
	if cfg.SMTPPort == "" {
		cfg.SMTPPort = "587"
	}

	return cfg, nil
}
