package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

const seedYAML = `
facts:
  - question: Quels sont les frais de scolarité ?
    answer: 9 950 euros par an.
    category: admissions
  - question: Où se trouve le campus ?
    answer: Paris La Défense.
`

func offlineConfig(t *testing.T, driver string) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Verifier.Enabled = false
	cfg.Databases.Driver = driver
	cfg.Databases.SQLite.Path = filepath.Join(t.TempDir(), "kb.db")
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o600))
	cfg.Knowledge.SeedFile = seedPath
	return cfg
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	k, err := Open(ctx, offlineConfig(t, "sqlite"), logger.Discard())
	require.NoError(t, err)
	defer func() { assert.NoError(t, k.Close(ctx)) }()

	assert.IsType(t, &store.GormStore{}, k.Store)
	assert.IsType(t, &audit.GormLog{}, k.Audit)
	assert.Nil(t, k.PingRedis())
	assert.NoError(t, k.Ping(ctx))
	assert.False(t, k.Sweeper.Enabled())

	rep, err := k.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Inserted)

	// 第二次导入全部被去重
	rep, err = k.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Inserted)
	assert.Equal(t, 2, rep.Duplicates)

	res, err := k.Orchestrator.Answer(ctx, "Quels sont les frais de scolarité ?")
	require.NoError(t, err)
	require.NotEmpty(t, res.Facts)
	assert.Contains(t, res.Facts[0].Answer, "9 950")

	entries, err := k.Audit.List(ctx, audit.Filter{Trigger: models.TriggerManual})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig(t, "memory")
	cfg.Knowledge.SweepInterval = "1h"
	k, err := Open(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	defer k.Close(ctx)

	assert.IsType(t, &store.MemoryStore{}, k.Store)
	assert.Nil(t, k.DB)
	assert.True(t, k.Sweeper.Enabled())
}

func TestOpen_BadDriver(t *testing.T) {
	cfg := offlineConfig(t, "oracle")
	_, err := Open(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}
