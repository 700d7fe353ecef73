package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenGormSQLite(t *testing.T) {
	db, err := OpenGorm(config.DatabaseConfigs{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "kb.db")},
	})
	require.NoError(t, err)
	defer Close(db)

	assert.NoError(t, HealthCheck(context.Background(), db))
}

func TestOpenGormMemoryAndUnknown(t *testing.T) {
	db, err := OpenGorm(config.DatabaseConfigs{Driver: "memory"})
	assert.NoError(t, err)
	assert.Nil(t, db)
	assert.Error(t, HealthCheck(context.Background(), db))

	_, err = OpenGorm(config.DatabaseConfigs{Driver: "oracle"})
	assert.Error(t, err)
}
