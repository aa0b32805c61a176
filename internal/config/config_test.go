package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

var allEnvVars = []string{
	"TASKBOARD_API_URL", "TASKBOARD_API_TIMEOUT", "TASKBOARD_TOKEN", "TASKBOARD_API_RPS", "TASKBOARD_API_BURST",
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "ENVIRONMENT", "ALLOWED_ORIGINS",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_SQLITE_PATH",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"REDIS_LIST_TTL", "REDIS_KEY_PREFIX",
	"JWT_SECRET", "JWT_ISSUER", "ACCESS_TOKEN_TTL",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
	"CB_MAX_FAILURES", "CB_TIMEOUT", "CB_HALF_OPEN_MAX_CALLS",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every variable LoadConfig reads for the duration of t.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnvVars {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Client.BaseURL != "http://localhost:4000/api" {
		t.Errorf("Expected default API URL, got %s", config.Client.BaseURL)
	}
	if config.Client.Timeout != 10*time.Second {
		t.Errorf("Expected default client timeout 10s, got %v", config.Client.Timeout)
	}
	if config.Server.Port != "4000" {
		t.Errorf("Expected default port '4000', got %s", config.Server.Port)
	}
	if config.Server.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", config.Server.Environment)
	}
	if config.Database.Driver != "sqlite" {
		t.Errorf("Expected default driver sqlite, got %s", config.Database.Driver)
	}
	if config.Redis.Enabled {
		t.Error("Expected the list cache to be off by default")
	}
	if config.Redis.ListTTL != 30*time.Second {
		t.Errorf("Expected default list TTL 30s, got %v", config.Redis.ListTTL)
	}
	if config.Auth.Issuer != "taskboard" {
		t.Errorf("Expected default issuer 'taskboard', got %s", config.Auth.Issuer)
	}
	if !config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}
	if config.CircuitBreaker.MaxFailures != 5 {
		t.Errorf("Expected default breaker max failures 5, got %d", config.CircuitBreaker.MaxFailures)
	}
	if len(config.Server.AllowedOrigins) != 1 {
		t.Errorf("Expected one default origin, got %v", config.Server.AllowedOrigins)
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TASKBOARD_API_URL", "https://tasks.example.com/api")
	t.Setenv("TASKBOARD_API_TIMEOUT", "3s")
	t.Setenv("TASKBOARD_API_RPS", "2.5")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("LOG_LEVEL", "debug")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Client.BaseURL != "https://tasks.example.com/api" {
		t.Errorf("Expected custom API URL, got %s", config.Client.BaseURL)
	}
	if config.Client.Timeout != 3*time.Second {
		t.Errorf("Expected 3s timeout, got %v", config.Client.Timeout)
	}
	if config.Client.RequestsPerSecond != 2.5 {
		t.Errorf("Expected 2.5 rps, got %v", config.Client.RequestsPerSecond)
	}
	if !config.Redis.Enabled {
		t.Error("Expected Redis to be enabled")
	}
	if got := config.Server.AllowedOrigins; len(got) != 2 || got[1] != "https://b.example.com" {
		t.Errorf("Expected two trimmed origins, got %v", got)
	}
	if config.NewLogger().GetLevel() != log.DebugLevel {
		t.Error("Expected debug level logger")
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"production without db password", map[string]string{"ENVIRONMENT": "production", "DB_DRIVER": "postgres", "JWT_SECRET": "s"}},
		{"production default secret", map[string]string{"ENVIRONMENT": "production"}},
		{"zero client timeout", map[string]string{"TASKBOARD_API_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := LoadConfig(); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestLoadConfig_ProductionSQLiteNeedsNoPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "real-secret")

	if _, err := LoadConfig(); err != nil {
		t.Errorf("Expected sqlite production config to load, got %v", err)
	}
}

func TestConfig_GetDatabaseDSN(t *testing.T) {
	config := &Config{Database: DatabaseConfig{
		Driver: "postgres", Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable",
	}}

	expected := "host=db port=5432 user=u password=p dbname=n sslmode=disable"
	if dsn := config.GetDatabaseDSN(); dsn != expected {
		t.Errorf("Expected DSN %s, got %s", expected, dsn)
	}

	config.Database.Driver = "sqlite"
	config.Database.SQLitePath = "/tmp/board.db"
	if dsn := config.GetDatabaseDSN(); dsn != "/tmp/board.db" {
		t.Errorf("Expected sqlite path as DSN, got %s", dsn)
	}
}

func TestConfig_Addrs(t *testing.T) {
	config := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: "4000"},
		Redis:  RedisConfig{Host: "cache", Port: "6380"},
	}

	if addr := config.GetServerAddr(); addr != "0.0.0.0:4000" {
		t.Errorf("Expected server addr 0.0.0.0:4000, got %s", addr)
	}
	if addr := config.GetRedisAddr(); addr != "cache:6380" {
		t.Errorf("Expected redis addr cache:6380, got %s", addr)
	}
}

func TestConfig_NewLoggerFallsBackToInfo(t *testing.T) {
	config := &Config{Log: LogConfig{Level: "chatty", Format: "json"}}
	logger := config.NewLogger()

	if logger.GetLevel() != log.InfoLevel {
		t.Errorf("Expected info level, got %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*log.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", logger.Formatter)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_FLOAT", "0.5")

	if v := getEnvAsInt("TEST_INT", 0); v != 42 {
		t.Errorf("Expected 42, got %d", v)
	}
	if v := getEnvAsInt("TEST_BAD_INT", 7); v != 7 {
		t.Errorf("Expected default 7 for bad int, got %d", v)
	}
	if v := getEnvAsBool("TEST_BOOL", false); !v {
		t.Error("Expected true")
	}
	if v := getEnvAsDuration("TEST_DURATION", 0); v != 90*time.Second {
		t.Errorf("Expected 90s, got %v", v)
	}
	if v := getEnvAsFloat("TEST_FLOAT", 0); v != 0.5 {
		t.Errorf("Expected 0.5, got %v", v)
	}
	if v := getEnv("TEST_MISSING_VALUE", "fallback"); v != "fallback" {
		t.Errorf("Expected fallback, got %s", v)
	}
}
