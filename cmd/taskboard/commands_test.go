package main

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/auth"
	"taskboard/internal/config"
	"taskboard/internal/database"
	"taskboard/internal/models"
	"taskboard/internal/server"
	"taskboard/internal/services"
)

const cliSecret = "cli-secret"

// cliEnv points the commands at a fresh API and returns its database.
func cliEnv(t *testing.T, teams ...string) *database.DatabasePool {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", cliSecret)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("REDIS_ENABLED", "false")

	logger := log.New()
	logger.SetOutput(io.Discard)
	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:       database.DriverSQLite,
		DSN:          "file::memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		Logger:       logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, pool.Migrate())

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	ts := httptest.NewServer(server.New(cfg, pool.DB, logger).Handler())
	t.Cleanup(ts.Close)

	token, err := auth.IssueToken(cliSecret, cfg.Auth.Issuer, "user-1", time.Hour, teams...)
	require.NoError(t, err)
	t.Setenv("TASKBOARD_API_URL", ts.URL+"/api")
	t.Setenv("TASKBOARD_TOKEN", token)
	return pool
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateCmd_PrintsOnlyTheNewTask(t *testing.T) {
	pool := cliEnv(t)
	existing, err := services.NewTaskService().CreateTask(pool.DB, services.Caller{UserID: "user-1"}, models.NewTask{Title: "Already here"})
	require.NoError(t, err)

	out, err := runCLI(t, "create", "--title", "Fresh", "--status", "review", "--due", "2099-01-01")
	require.NoError(t, err)

	tasks, err := services.NewTaskService().ListTasks(pool.DB, services.Caller{UserID: "user-1"}, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	fresh := tasks[0]
	if fresh.ID == existing.ID {
		fresh = tasks[1]
	}
	assert.Equal(t, "created "+fresh.ID+" in review\n", out)
	assert.NotContains(t, out, existing.ID)
}

func TestCreateCmd_ValidationFailsLocally(t *testing.T) {
	pool := cliEnv(t)

	_, err := runCLI(t, "create", "--title", "", "--due", "2099-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Title is required")

	tasks, err := services.NewTaskService().ListTasks(pool.DB, services.Caller{UserID: "user-1"}, nil)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
