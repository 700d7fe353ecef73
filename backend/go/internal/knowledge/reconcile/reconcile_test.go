package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/freshness"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func daysAgo(d int) *time.Time {
	t := now.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

type fixture struct {
	store *store.MemoryStore
	log   *audit.MemoryLog
	rec   *Reconciler
}

func newFixture(t *testing.T) fixture {
	s := store.NewMemoryStore().WithClock(clock)
	l := audit.NewMemoryLog().WithClock(clock)
	return fixture{store: s, log: l, rec: New(s, l, logger.Discard(), Options{Now: clock})}
}

func (fx fixture) plant(id, answer string, lastVerified *time.Time) *models.Fact {
	f := &models.Fact{ID: id, Question: "Who is the director?", Answer: answer, Category: "contacts", Confidence: 0.9, LastVerified: lastVerified, CreatedAt: now.Add(-90 * 24 * time.Hour)}
	fx.store.Put(f)
	return f
}

func conflict() models.ConflictVerdict {
	return models.ConflictVerdict{HasConflict: true, Score: 3, Tier: models.TierHigh, Differences: []string{"names differ"}}
}

var johnDoe = models.VerifiedCandidate{Title: "Director", Content: "Director: John Doe", URL: "https://www.esilv.fr/direction", Date: "01/06/2025"}

func TestShouldRetire(t *testing.T) {
	r := New(nil, nil, logger.Discard(), Options{Now: clock})
	plain, volatile := freshness.Class{}, freshness.Class{Volatile: true}

	assert.True(t, r.ShouldRetire(&models.Fact{}, plain, now), "missing lastVerified")
	assert.True(t, r.ShouldRetire(&models.Fact{LastVerified: daysAgo(45)}, plain, now))
	assert.False(t, r.ShouldRetire(&models.Fact{LastVerified: daysAgo(30)}, plain, now))
	assert.False(t, r.ShouldRetire(&models.Fact{LastVerified: daysAgo(15)}, plain, now))
	assert.True(t, r.ShouldRetire(&models.Fact{LastVerified: daysAgo(15)}, volatile, now))
	assert.False(t, r.ShouldRetire(&models.Fact{LastVerified: daysAgo(3)}, volatile, now))
	assert.False(t, r.ShouldRetire(&models.Fact{LastVerified: daysAgo(3)}, freshness.Class{TimeSensitive: true}, now))
}

func TestReconcileConflictRetiresAndInserts(t *testing.T) {
	fx := newFixture(t)
	old := fx.plant("old", "Director: Jane Smith", daysAgo(45))

	out, err := fx.rec.Reconcile(context.Background(), Input{
		Query:      "Who is the director?",
		Facts:      []*models.Fact{old},
		Candidates: []models.VerifiedCandidate{johnDoe},
		Verdict:    conflict(),
	})
	require.NoError(t, err)
	require.Len(t, out.Retired, 1)
	require.Len(t, out.Inserted, 1)
	assert.Equal(t, 2, out.AuditEntries)

	_, err = fx.store.Get(context.Background(), "old")
	assert.ErrorIs(t, err, store.ErrFactNotFound)

	inserted := out.Inserted[0]
	assert.Equal(t, "Director (01/06/2025)", inserted.Question)
	assert.Equal(t, "Director: John Doe\n\nSource: https://www.esilv.fr/direction", inserted.Answer)
	assert.Equal(t, "contacts", inserted.Category)
	assert.InDelta(t, 0.95, inserted.Confidence, 1e-9)
	assert.Equal(t, now, *inserted.LastVerified)

	entries, err := fx.log.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	types := []models.UpdateType{entries[0].UpdateType, entries[1].UpdateType}
	assert.ElementsMatch(t, []models.UpdateType{models.UpdateDelete, models.UpdateAdd}, types)
	for _, e := range entries {
		assert.Equal(t, models.TriggerScraper, e.TriggeredBy)
		assert.Equal(t, "Who is the director?", *e.Query)
	}
}

func TestReconcileKeepsFreshFactsOnConflict(t *testing.T) {
	fx := newFixture(t)
	fresh := fx.plant("fresh", "Director: Jane Smith", daysAgo(3))

	out, err := fx.rec.Reconcile(context.Background(), Input{
		Query:      "Who is the director?",
		Class:      freshness.Class{Volatile: true},
		Facts:      []*models.Fact{fresh},
		Candidates: []models.VerifiedCandidate{johnDoe},
		Verdict:    conflict(),
	})
	require.NoError(t, err)
	assert.Empty(t, out.Retired)
	assert.Len(t, out.Inserted, 1)
	assert.Equal(t, 1, out.AuditEntries)
	assert.Equal(t, 2, fx.store.Len())
}

func TestReconcileNMEntries(t *testing.T) {
	fx := newFixture(t)
	a := fx.plant("a", "Director: Jane Smith", daysAgo(60))
	b := fx.plant("b", "Deputy: Paul Martin", nil)
	c := fx.plant("c", "Contact: Anne Leroy", daysAgo(1))

	cands := []models.VerifiedCandidate{
		johnDoe,
		{Title: "Deputy director", Content: "Deputy: Marie Curie", URL: "https://www.esilv.fr/equipe"},
		{Title: "", Content: "ignored without a title"},
	}
	out, err := fx.rec.Reconcile(context.Background(), Input{
		Query: "direction de l'école", Facts: []*models.Fact{a, b, c}, Candidates: cands, Verdict: conflict(),
	})
	require.NoError(t, err)
	n, m := len(out.Retired), len(out.Inserted)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, m)
	assert.Equal(t, n+m, out.AuditEntries)
	assert.Equal(t, n+m, fx.log.Len())
	assert.Nil(t, out.Verified)
}

func TestReconcileIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	old := fx.plant("old", "Director: Jane Smith", daysAgo(45))
	in := Input{Query: "director", Facts: []*models.Fact{old}, Candidates: []models.VerifiedCandidate{johnDoe}, Verdict: conflict()}

	_, err := fx.rec.Reconcile(context.Background(), in)
	require.NoError(t, err)
	again, err := fx.rec.Reconcile(context.Background(), in)
	require.NoError(t, err)

	assert.Empty(t, again.Retired, "already deleted")
	assert.Empty(t, again.Inserted, "same content exists")
	assert.Equal(t, 0, again.AuditEntries)
	assert.Equal(t, 1, fx.store.Len())
	assert.Equal(t, 2, fx.log.Len())
}

func TestReconcileNoConflictMarksVerified(t *testing.T) {
	fx := newFixture(t)
	f := fx.plant("f", "Director: Jane Smith", daysAgo(10))

	out, err := fx.rec.Reconcile(context.Background(), Input{
		Query: "director", Facts: []*models.Fact{f},
		Candidates: []models.VerifiedCandidate{{Title: "Director", Content: "Director: Jane Smith", URL: "u"}},
		Verdict:    models.ConflictVerdict{Tier: models.TierNone},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Verified)
	assert.Equal(t, now, *out.Verified.LastVerified)
	assert.Empty(t, out.Inserted)
	assert.Equal(t, 1, out.AuditEntries)

	entries, _ := fx.log.List(context.Background(), audit.Filter{})
	require.Len(t, entries, 1)
	assert.Equal(t, models.UpdateVerify, entries[0].UpdateType)
	assert.Equal(t, "f", *entries[0].EntryID)
}

func TestReconcileNoLocalFactsInsertsOnly(t *testing.T) {
	fx := newFixture(t)
	out, err := fx.rec.Reconcile(context.Background(), Input{
		Query:      "stages en entreprise",
		Candidates: []models.VerifiedCandidate{{Title: "Forum entreprises", Content: "80 entreprises présentes.", URL: "u", Tags: []string{"carrières"}}},
		Trigger:    models.TriggerScheduled,
	})
	require.NoError(t, err)
	require.Len(t, out.Inserted, 1)
	assert.Equal(t, "careers", out.Inserted[0].Category)
	assert.Equal(t, "Forum entreprises (Date inconnue)", out.Inserted[0].Question)
	assert.Contains(t, out.Inserted[0].Answer, "\n\nTags: carrières\n\nSource: u")

	entries, _ := fx.log.List(context.Background(), audit.Filter{Trigger: models.TriggerScheduled})
	assert.Len(t, entries, 1)
}

func TestReconcileSkipsWhenLocked(t *testing.T) {
	fx := newFixture(t)
	old := fx.plant("old", "Director: Jane Smith", daysAgo(45))
	in := Input{Query: "director", Facts: []*models.Fact{old}, Candidates: []models.VerifiedCandidate{johnDoe}, Verdict: conflict()}

	unlock, ok, err := fx.rec.opts.Locker.TryLock(context.Background(), lockKey(in), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	out, err := fx.rec.Reconcile(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, 1, fx.store.Len())

	unlock()
	out, err = fx.rec.Reconcile(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Len(t, out.Retired, 1)
}

type failingLog struct{ audit.Log }

func (failingLog) Append(context.Context, *models.AuditEntry) error { return errors.New("disk full") }

func TestReconcileSwallowsAuditFailures(t *testing.T) {
	s := store.NewMemoryStore().WithClock(clock)
	r := New(s, failingLog{audit.NewMemoryLog()}, logger.Discard(), Options{Now: clock})
	s.Put(&models.Fact{ID: "old", Question: "q", Answer: "Director: Jane Smith", LastVerified: daysAgo(45)})
	old, _ := s.Get(context.Background(), "old")

	out, err := r.Reconcile(context.Background(), Input{Query: "q", Facts: []*models.Fact{old}, Candidates: []models.VerifiedCandidate{johnDoe}, Verdict: conflict()})
	require.NoError(t, err)
	assert.Len(t, out.Retired, 1)
	assert.Equal(t, 0, out.AuditEntries)
}

func TestLocalLockerExpires(t *testing.T) {
	l := NewLocalLocker()
	current := now
	l.now = func() time.Time { return current }

	_, ok, _ := l.TryLock(context.Background(), "k", time.Minute)
	require.True(t, ok)
	_, ok, _ = l.TryLock(context.Background(), "k", time.Minute)
	assert.False(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok, _ = l.TryLock(context.Background(), "k", time.Minute)
	assert.True(t, ok)
}

func TestCategorize(t *testing.T) {
	tests := map[string][2]string{
		"alumni":     {"Que deviennent les diplômés ?", ""},
		"careers":    {"Trouver un stage", ""},
		"admissions": {"", "Concours Puissance Alpha 2025"},
		"research":   {"laboratoire de recherche", ""},
		"contacts":   {"Qui est le directeur ?", ""},
		"news":       {"dernières actualités", "Hackathon cybersécurité"},
	}
	for want, in := range tests {
		assert.Equal(t, want, Categorize(in[0], in[1]), in)
	}
}

func TestSave_InsertsOnceAndAuditsAsManual(t *testing.T) {
	fx := newFixture(t)
	fx.plant("old", "Director: Jane Smith", daysAgo(90))
	cands := []models.VerifiedCandidate{
		johnDoe,
		{Title: "Forum entreprises", Content: "Rencontrez 80 entreprises.", URL: "https://www.esilv.fr/forum", Confidence: 0.8},
		{Title: "Sans contenu", URL: "https://www.esilv.fr/vide"},
	}

	rep, err := fx.rec.Save(context.Background(), "actualités", "web_scraped", cands, models.TriggerManual)
	require.NoError(t, err)
	require.Len(t, rep.Inserted, 2)
	assert.Equal(t, 0, rep.Duplicates)
	assert.Equal(t, 2, rep.AuditEntries)
	assert.Equal(t, "web_scraped", rep.Inserted[0].Category)
	assert.Equal(t, 0.95, rep.Inserted[0].Confidence, "missing confidence falls back to the verified confidence")
	assert.Equal(t, 0.8, rep.Inserted[1].Confidence)
	assert.Equal(t, 3, fx.store.Len(), "local facts are never retired")

	rep, err = fx.rec.Save(context.Background(), "actualités", "web_scraped", cands, "")
	require.NoError(t, err)
	assert.Empty(t, rep.Inserted)
	assert.Equal(t, 2, rep.Duplicates)

	entries, err := fx.log.List(context.Background(), audit.Filter{Trigger: models.TriggerManual})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
