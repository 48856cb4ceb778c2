package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadflow/internal/infra/database"
)

func TestHealthHealthyWithoutBroker(t *testing.T) {
	db, err := database.NewDBConnection(database.DialectSQLite,
		database.SQLiteDSN(filepath.Join(t.TempDir(), "health.db")))
	require.NoError(t, err)
	defer db.Close()

	rec := httptest.NewRecorder()
	NewHealthHandler(db, nil).Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Dependencies["database"])
	assert.Equal(t, "not configured", resp.Dependencies["rabbitmq"])
}

func TestHealthDegradedWhenDatabaseClosed(t *testing.T) {
	db, err := database.NewDBConnection(database.DialectSQLite,
		database.SQLiteDSN(filepath.Join(t.TempDir(), "health.db")))
	require.NoError(t, err)
	db.Close()

	rec := httptest.NewRecorder()
	NewHealthHandler(db, nil).Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Contains(t, resp.Dependencies["database"], "unhealthy")
}
