package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	LogLevel     string
	SecretKey    string
	PostgresDSN  string
	RedisAddr    string
	MongoURI     string
	MongoDB      string
	UploadDir    string
	PublicURL    string
	ClientOrigin string
	SMTPAddr     string
	SMTPUser     string
	SMTPPassword string
	MailFrom     string
	MaxPageLimit int
}

// Load reads .env (if present) and then the process environment.
// Values already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed reading env file: %w", err)
	}

	cfg := &Config{
		HTTPAddr:     get("HTTP_ADDR", ":8080"),
		LogLevel:     get("LOG_LEVEL", "info"),
		SecretKey:    os.Getenv("SECRET_KEY"),
		PostgresDSN:  get("POSTGRES_DSN", "postgresql://localhost/pinboard?sslmode=disable"),
		RedisAddr:    get("REDIS_ADDR", "redis://localhost:6379/0"),
		MongoURI:     get("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:      get("MONGODB_DB", "pinboard"),
		UploadDir:    get("UPLOAD_DIR", "uploads"),
		PublicURL:    get("PUBLIC_URL", "http://localhost:8080"),
		ClientOrigin: get("CLIENT_ORIGIN", "http://localhost:3000"),
		SMTPAddr:     os.Getenv("SMTP_ADDR"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     get("MAIL_FROM", "no-reply@pinboard.local"),
	}

	limit, err := strconv.Atoi(get("MAX_PAGE_LIMIT", "100"))
	if err != nil {
		return nil, fmt.Errorf("config: MAX_PAGE_LIMIT is not a number: %w", err)
	}
	cfg.MaxPageLimit = limit

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("config: SECRET_KEY is required")
	}
	if c.MaxPageLimit < 1 {
		return fmt.Errorf("config: MAX_PAGE_LIMIT must be positive, got %d", c.MaxPageLimit)
	}
	return nil
}

func get(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
