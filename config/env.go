package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv reads .env when present. Variables already set in the environment win.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using process environment")
	}
}

type Config struct {
	Environment string
	Host        string
	Port        string
	LogMode     string

	DBDriver    string
	DBUser      string
	DBPassword  string
	DBHost      string
	DBPort      string
	DBName      string
	PGSSLMode   string
	DatabaseURL string

	AuthServiceURL    string
	CoursesServiceURL string
	ServiceUsername   string
	ServicePassword   string

	// StrictUserEvents makes a user event without an existing record fail with 404
	// instead of creating the record.
	StrictUserEvents bool
	FanoutWorkers    int
}

// Load builds the Config from the environment and checks the required keys.
func Load() (Config, error) {
	cfg := Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        getEnv("PORT", "8080"),
		LogMode:     getEnv("LOG_MODE", ""),

		DBDriver:    getEnv("DB_DRIVER", "postgres"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBHost:      os.Getenv("DB_HOST"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBName:      os.Getenv("DB_NAME"),
		PGSSLMode:   getEnv("PGSSLMODE", "require"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		AuthServiceURL:    strings.TrimRight(os.Getenv("AUTH_SERVICE_URL"), "/"),
		CoursesServiceURL: strings.TrimRight(os.Getenv("COURSES_SERVICE_URL"), "/"),
		ServiceUsername:   os.Getenv("SERVICE_USERNAME"),
		ServicePassword:   os.Getenv("SERVICE_PASSWORD"),
	}

	strict, err := getBool("STRICT_USER_EVENTS", false)
	if err != nil {
		return Config{}, err
	}
	cfg.StrictUserEvents = strict

	workers, err := getInt("FANOUT_WORKERS", 1)
	if err != nil {
		return Config{}, err
	}
	if workers < 1 {
		workers = 1
	}
	cfg.FanoutWorkers = workers

	if cfg.LogMode == "" {
		cfg.LogMode = cfg.Environment
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver)
	}

	if c.DatabaseURL == "" {
		if c.DBDriver == "sqlite3" {
			return fmt.Errorf("DATABASE_URL is required for sqlite3")
		}
		if err := requireKeys([][2]string{
			{"DB_USER", c.DBUser},
			{"DB_HOST", c.DBHost},
			{"DB_NAME", c.DBName},
		}); err != nil {
			return err
		}
	}
	if (c.ServiceUsername == "") != (c.ServicePassword == "") {
		return fmt.Errorf("SERVICE_USERNAME and SERVICE_PASSWORD must be set together")
	}
	return nil
}

// RequireUpstreams checks the keys only the HTTP server needs. The migrate and
// export commands never call the identity or courses services.
func (c Config) RequireUpstreams() error {
	return requireKeys([][2]string{
		{"AUTH_SERVICE_URL", c.AuthServiceURL},
		{"COURSES_SERVICE_URL", c.CoursesServiceURL},
	})
}

func requireKeys(kv [][2]string) error {
	for _, p := range kv {
		if p[1] == "" {
			return fmt.Errorf("%s environment variable is required", p[0])
		}
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise a postgres URL composed from the DB_* keys.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.PGSSLMode)
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}
