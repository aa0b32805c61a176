package database

import (
	"testing"
	"time"

	"gorm.io/gorm/logger"

	"taskboard/internal/models"
)

func sqliteConfig() *PoolConfig {
	config := DefaultPoolConfig()
	config.Driver = DriverSQLite
	config.DSN = "file::memory:"
	config.MaxOpenConns = 1
	config.LogLevel = logger.Silent
	return config
}

func TestDefaultPoolConfig(t *testing.T) {
	config := DefaultPoolConfig()

	if config.Driver != DriverPostgres {
		t.Errorf("Expected Driver to be postgres, got %s", config.Driver)
	}
	if config.MaxOpenConns != 25 {
		t.Errorf("Expected MaxOpenConns to be 25, got %d", config.MaxOpenConns)
	}
	if config.MaxIdleConns != 10 {
		t.Errorf("Expected MaxIdleConns to be 10, got %d", config.MaxIdleConns)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime to be 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime != time.Minute*30 {
		t.Errorf("Expected ConnMaxIdleTime to be 30 minutes, got %v", config.ConnMaxIdleTime)
	}
}

func TestNewDatabasePool_WithNilConfig(t *testing.T) {
	_, err := NewDatabasePool(nil)

	if err == nil {
		t.Error("Expected error due to empty DSN, got nil")
	}
}

func TestNewDatabasePool_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PoolConfig)
	}{
		{"unknown driver", func(c *PoolConfig) { c.Driver = "mysql" }},
		{"empty dsn", func(c *PoolConfig) { c.DSN = "" }},
		{"negative pool", func(c *PoolConfig) { c.MaxIdleConns = -1 }},
		{"negative lifetime", func(c *PoolConfig) { c.ConnMaxLifetime = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := sqliteConfig()
			tt.mutate(config)

			if _, err := NewDatabasePool(config); err == nil {
				t.Error("Expected error but pool creation succeeded")
			}
		})
	}
}

func TestNewDatabasePool_SQLite(t *testing.T) {
	pool, err := NewDatabasePool(sqliteConfig())
	if err != nil {
		t.Fatalf("Expected pool, got error: %v", err)
	}
	defer pool.Close()

	if err := pool.Health(); err != nil {
		t.Errorf("Expected healthy pool, got %v", err)
	}
	if err := pool.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if !pool.DB.Migrator().HasTable(&models.TaskRecord{}) {
		t.Error("Expected tasks table after Migrate")
	}

	stats := pool.Stats()
	if stats["driver"] != DriverSQLite {
		t.Errorf("Expected driver sqlite in stats, got %v", stats["driver"])
	}
	if stats["max_open"] != 1 {
		t.Errorf("Expected max_open 1, got %v", stats["max_open"])
	}
}

func TestDatabasePool_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{}

	if _, hasError := pool.Stats()["error"]; !hasError {
		t.Error("Expected error in stats when DB is nil")
	}
	if err := pool.Health(); err == nil {
		t.Error("Expected error when checking health with nil DB")
	}
	if err := pool.Migrate(); err == nil {
		t.Error("Expected error when migrating with nil DB")
	}
	if err := pool.Close(); err != nil {
		t.Errorf("Expected no error when closing nil DB, got: %v", err)
	}
}
