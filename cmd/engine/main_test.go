package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"glooo/internal/config"
	"glooo/internal/database"
	"glooo/internal/engine"
	"glooo/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromEnv(func(key string) string { return env[key] })
	require.NoError(t, err)
	return cfg
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "test", line["component"])

	buf.Reset()
	newLogger(&config.LogConfig{Level: "info"}, &buf).Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestOpenStore(t *testing.T) {
	logger := newLogger(&config.LogConfig{Level: "error"}, &bytes.Buffer{})

	store, err := openStore(context.Background(), &config.DatabaseConfig{Type: config.DBTypeMemory}, logger)
	require.NoError(t, err)
	assert.IsType(t, &database.MemoryStore{}, store)

	_, err = openStore(context.Background(), &config.DatabaseConfig{Type: "sqlite"}, logger)
	assert.Error(t, err)
}

func TestAppRoutes(t *testing.T) {
	cfg := testConfig(t, map[string]string{"ENV": "development", "DB_TYPE": "memory"})
	logger := newLogger(&config.LogConfig{Level: "error"}, &bytes.Buffer{})

	a := newApp(cfg, database.NewMemoryStore(), utils.NewMetricsCollector(), logger, engine.Options{BcryptCost: bcrypt.MinCost})
	t.Cleanup(a.engine.Stop)
	srv := httptest.NewServer(a.server.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
	assert.False(t, a.server.SecureCookies)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig(t, map[string]string{"ENV": "development", "METRICS_ENABLED": "false"})
	logger := newLogger(&config.LogConfig{Level: "error"}, &bytes.Buffer{})

	a := newApp(cfg, database.NewMemoryStore(), utils.NewMetricsCollector(), logger, engine.Options{BcryptCost: bcrypt.MinCost})
	t.Cleanup(a.engine.Stop)
	srv := httptest.NewServer(a.server.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
