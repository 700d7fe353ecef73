package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var t0 = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newGormLog(t *testing.T) *GormLog {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	l := NewGormLog(db)
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func forEachLog(t *testing.T, fn func(t *testing.T, l Log)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryLog()) })
	t.Run("gorm", func(t *testing.T) { fn(t, newGormLog(t)) })
}

func entryAt(kind models.UpdateType, trigger models.Trigger, at time.Time) *models.AuditEntry {
	return &models.AuditEntry{UpdateType: kind, TriggeredBy: trigger, CreatedAt: at}
}

func TestAppendFillsIDAndRejectsIncomplete(t *testing.T) {
	forEachLog(t, func(t *testing.T, l Log) {
		ctx := context.Background()
		e := &models.AuditEntry{UpdateType: models.UpdateAdd, TriggeredBy: models.TriggerManual}
		require.NoError(t, l.Append(ctx, e))
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())

		assert.ErrorIs(t, l.Append(ctx, &models.AuditEntry{UpdateType: models.UpdateAdd}), ErrInvalidEntry)
	})
}

func TestListNewestFirstWithFilters(t *testing.T) {
	forEachLog(t, func(t *testing.T, l Log) {
		ctx := context.Background()
		require.NoError(t, l.Append(ctx, entryAt(models.UpdateDelete, models.TriggerScraper, t0)))
		require.NoError(t, l.Append(ctx, entryAt(models.UpdateAdd, models.TriggerScraper, t0.Add(time.Minute))))
		require.NoError(t, l.Append(ctx, entryAt(models.UpdateVerify, models.TriggerScheduled, t0.Add(2*time.Minute))))

		all, err := l.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, models.UpdateVerify, all[0].UpdateType)
		assert.Equal(t, models.UpdateDelete, all[2].UpdateType)

		scraper, err := l.List(ctx, Filter{Trigger: models.TriggerScraper})
		require.NoError(t, err)
		assert.Len(t, scraper, 2)

		adds, err := l.List(ctx, Filter{Type: models.UpdateAdd})
		require.NoError(t, err)
		assert.Len(t, adds, 1)

		limited, err := l.List(ctx, Filter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, models.UpdateVerify, limited[0].UpdateType)
	})
}

func TestStats(t *testing.T) {
	forEachLog(t, func(t *testing.T, l Log) {
		ctx := context.Background()
		require.NoError(t, l.Append(ctx, entryAt(models.UpdateDelete, models.TriggerScraper, t0)))
		require.NoError(t, l.Append(ctx, entryAt(models.UpdateAdd, models.TriggerScraper, t0)))
		require.NoError(t, l.Append(ctx, entryAt(models.UpdateAdd, models.TriggerManual, t0)))

		stats, err := l.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, stats.Total)
		assert.EqualValues(t, 2, stats.ByType[models.UpdateAdd])
		assert.EqualValues(t, 0, stats.ByType[models.UpdateVerify])
		assert.EqualValues(t, 2, stats.ByTrigger[models.TriggerScraper])
		assert.EqualValues(t, 0, stats.ByTrigger[models.TriggerScheduled])
	})
}

func TestFactEntry(t *testing.T) {
	src := "https://www.esilv.fr/actus/x"
	old := &models.Fact{ID: "f1", Answer: "Director: Jane Smith", Confidence: 0.9}
	fresh := &models.Fact{ID: "f2", Answer: "Director: John Doe", Confidence: 0.95, Source: &src}

	del := FactEntry(models.UpdateDelete, models.TriggerScraper, old, nil)
	assert.Equal(t, "f1", *del.EntryID)
	assert.Equal(t, "Director: Jane Smith", *del.OldValue)
	assert.Nil(t, del.NewValue)
	assert.Nil(t, del.Source)

	add := FactEntry(models.UpdateAdd, models.TriggerScraper, nil, fresh)
	assert.Equal(t, "f2", *add.EntryID)
	assert.Equal(t, src, *add.Source)
	assert.InDelta(t, 0.95, *add.Confidence, 1e-9)
}

func TestDifferences(t *testing.T) {
	assert.Nil(t, Differences(nil))
	assert.JSONEq(t, `["names differ"]`, string(Differences([]string{"names differ"})))
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestMirroredPublishesAfterAppend(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	m := NewMirrored(NewMemoryLog(), &KafkaPublisher{writer: w}, logger.Discard())

	id := "fact-1"
	require.NoError(t, m.Append(ctx, &models.AuditEntry{UpdateType: models.UpdateAdd, TriggeredBy: models.TriggerScraper, EntryID: &id}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "fact-1", string(w.msgs[0].Key))
	assert.Contains(t, string(w.msgs[0].Value), `"updateType":"add"`)
}

func TestMirroredSwallowsPublishErrors(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	m := NewMirrored(log, &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}}, logger.Discard())

	require.NoError(t, m.Append(ctx, &models.AuditEntry{UpdateType: models.UpdateVerify, TriggeredBy: models.TriggerScraper}))
	assert.Equal(t, 1, log.Len())
}
