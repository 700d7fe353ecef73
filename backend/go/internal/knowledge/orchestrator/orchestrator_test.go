package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/conflict"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/freshness"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/reconcile"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/verifier"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/internal/observability"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func daysAgo(d int) *time.Time {
	t := now.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

// fakeVerifier 记录调用次数，并检查上下文是否仍然有效。
type fakeVerifier struct {
	calls int32
	cands []models.VerifiedCandidate
	err   error
}

func (f *fakeVerifier) Verify(ctx context.Context, _ verifier.Request) ([]models.VerifiedCandidate, error) {
	atomic.AddInt32(&f.calls, 1)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", verifier.ErrVerificationUnavailable, err)
	}
	return f.cands, f.err
}

func (f *fakeVerifier) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

type failingStore struct {
	store.Store
	searchErr error
	applyErr  error
}

func (s failingStore) Search(ctx context.Context, kw []string, limit int) ([]*models.Fact, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.Store.Search(ctx, kw, limit)
}

func (s failingStore) Apply(ctx context.Context, b store.Batch) (store.BatchResult, error) {
	if s.applyErr != nil {
		return store.BatchResult{}, s.applyErr
	}
	return s.Store.Apply(ctx, b)
}

type fixture struct {
	mem   *store.MemoryStore
	log   *audit.MemoryLog
	ver   *fakeVerifier
	orch  *Orchestrator
	stats *observability.Metrics
}

func newFixture(t *testing.T, wrap func(store.Store) store.Store) fixture {
	t.Helper()
	mem := store.NewMemoryStore().WithClock(clock)
	log := audit.NewMemoryLog().WithClock(clock)
	ver := &fakeVerifier{}
	m := observability.New()

	var s store.Store = mem
	if wrap != nil {
		s = wrap(mem)
	}
	rec := reconcile.New(s, log, logger.Discard(), reconcile.Options{Now: clock, Metrics: m})
	orch := New(s, keywords.New(keywords.DefaultMaxTerms), ver, conflict.NewDefault(clock), rec, logger.Discard(), Options{
		TopK:              3,
		VerifyTimeout:     time.Second,
		BackgroundTimeout: 5 * time.Second,
		Metrics:           m,
		Now:               clock,
	})
	return fixture{mem: mem, log: log, ver: ver, orch: orch, stats: m}
}

func (fx fixture) plant(id, question, answer string, lastVerified *time.Time) *models.Fact {
	f := &models.Fact{ID: id, Question: question, Answer: answer, Category: "general", Confidence: 0.9, LastVerified: lastVerified, CreatedAt: now.Add(-90 * 24 * time.Hour)}
	fx.mem.Put(f)
	return f
}

func TestAnswer_StaleFactConflictIsReconciled(t *testing.T) {
	fx := newFixture(t, nil)
	fx.plant("old", "Who is the director?", "Director: Jane Smith", daysAgo(45))
	fx.ver.cands = []models.VerifiedCandidate{{
		Title: "Director", Content: "Director: John Doe", URL: "https://www.esilv.fr/direction", Confidence: 0.95,
	}}

	res, err := fx.orch.Answer(context.Background(), "Who is the director?")
	require.NoError(t, err)

	assert.Equal(t, freshness.ModeSync, res.Decision.Mode)
	assert.Equal(t, freshness.ReasonHardExpired, res.Decision.Reason)
	assert.Equal(t, SourceVerified, res.Source)
	assert.Equal(t, []State{StateLocalOnly, StateVerifying, StateReconciling, StateAnswered}, res.Trace)
	assert.Equal(t, StateAnswered, res.State())

	require.NotNil(t, res.Verdict)
	assert.True(t, res.Verdict.HasConflict)
	assert.GreaterOrEqual(t, res.Verdict.Score, 3)
	require.NotNil(t, res.Outcome)
	require.Len(t, res.Outcome.Retired, 1)
	require.Len(t, res.Outcome.Inserted, 1)
	assert.Contains(t, res.Outcome.Inserted[0].Answer, "John Doe")

	require.Len(t, res.Facts, 1)
	assert.Contains(t, res.Facts[0].Answer, "John Doe")

	_, err = fx.mem.Get(context.Background(), "old")
	assert.ErrorIs(t, err, store.ErrFactNotFound)

	stats, err := fx.log.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.ByType[models.UpdateDelete])
	assert.EqualValues(t, 1, stats.ByType[models.UpdateAdd])
	assert.EqualValues(t, 2, stats.ByTrigger[models.TriggerScraper])
}

func TestAnswer_FreshFactSkipsVerification(t *testing.T) {
	fx := newFixture(t, nil)
	fx.plant("majors", "What are the majors offered?", "Data and AI, Fintech, Cybersecurity", daysAgo(2))

	res, err := fx.orch.Answer(context.Background(), "What are the majors offered?")
	require.NoError(t, err)

	assert.Equal(t, freshness.ModeNone, res.Decision.Mode)
	assert.Equal(t, SourceLocal, res.Source)
	require.Len(t, res.Facts, 1)
	assert.Nil(t, res.Task)
	assert.Zero(t, fx.ver.Calls())
	assert.Zero(t, fx.log.Len())
	assert.Equal(t, []State{StateLocalOnly, StateAnswered}, res.Trace)
}

func TestAnswer_VerifierUnavailableFallsBackToLocal(t *testing.T) {
	fx := newFixture(t, nil)
	fx.plant("old", "Who is the director?", "Director: Jane Smith", daysAgo(45))
	fx.ver.err = fmt.Errorf("%w: timeout", verifier.ErrVerificationUnavailable)

	res, err := fx.orch.Answer(context.Background(), "Who is the director?")
	require.NoError(t, err)

	assert.Equal(t, 1, fx.ver.Calls())
	assert.True(t, res.Fallback)
	assert.Equal(t, SourceLocal, res.Source)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, "old", res.Facts[0].ID)
	assert.Nil(t, res.Outcome)
	assert.Zero(t, fx.log.Len())
	assert.Equal(t, 1, fx.mem.Len())
	assert.Equal(t, StateAnswered, res.State())
}

func TestAnswer_NoLocalMatchVerifiesAndInserts(t *testing.T) {
	fx := newFixture(t, nil)
	fx.ver.cands = []models.VerifiedCandidate{{
		Title:   "Nouveau laboratoire de robotique inauguré",
		Content: "Le laboratoire ouvre ses portes en septembre.",
		URL:     "https://www.esilv.fr/news/labo",
		Date:    "12/05/2025",
	}}

	res, err := fx.orch.Answer(context.Background(), "laboratoire robotique")
	require.NoError(t, err)

	assert.Equal(t, freshness.ReasonNoLocalMatch, res.Decision.Reason)
	assert.Equal(t, SourceVerified, res.Source)
	require.NotNil(t, res.Outcome)
	require.Len(t, res.Outcome.Inserted, 1)
	assert.Equal(t, "research", res.Outcome.Inserted[0].Category)
	assert.Equal(t, 1, fx.mem.Len())
	assert.Equal(t, 1, fx.log.Len())
}

func TestAnswer_NothingAnywhere(t *testing.T) {
	fx := newFixture(t, nil)

	res, err := fx.orch.Answer(context.Background(), "horaires de la piscine")
	require.NoError(t, err)
	assert.Equal(t, SourceNone, res.Source)
	assert.True(t, res.Fallback)
	assert.Empty(t, res.Facts)
}

func TestAnswer_BackgroundVerificationOutlivesRequest(t *testing.T) {
	fx := newFixture(t, nil)
	fx.plant("majors", "What are the majors offered?", "Data and AI, Fintech, Cybersecurity", daysAgo(15))
	fx.ver.cands = []models.VerifiedCandidate{{
		Title: "What are the majors offered?", Content: "Data and AI, Fintech, Cybersecurity", URL: "https://www.esilv.fr/majeures",
	}}

	ctx, cancel := context.WithCancel(context.Background())
	res, err := fx.orch.Answer(ctx, "What are the majors offered?")
	cancel()
	require.NoError(t, err)

	assert.Equal(t, freshness.ModeAsync, res.Decision.Mode)
	assert.Equal(t, SourceLocal, res.Source)
	require.NotNil(t, res.Task)

	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wcancel()
	tr, err := res.Task.Wait(wctx)
	require.NoError(t, err)
	require.NoError(t, tr.Err)
	assert.False(t, tr.Verdict.HasConflict)
	require.NotNil(t, tr.Outcome.Verified)
	assert.Equal(t, now, *tr.Outcome.Verified.LastVerified)

	entries, err := fx.log.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.UpdateVerify, entries[0].UpdateType)

	require.NoError(t, fx.orch.Wait(wctx))
}

func TestAnswer_StoreUnavailableFailsRequest(t *testing.T) {
	fx := newFixture(t, func(s store.Store) store.Store {
		return failingStore{Store: s, searchErr: fmt.Errorf("%w: connection refused", store.ErrStoreUnavailable)}
	})

	_, err := fx.orch.Answer(context.Background(), "Who is the director?")
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
	assert.Zero(t, fx.ver.Calls())
}

func TestAnswer_ReconcileFailureDoesNotFailRequest(t *testing.T) {
	fx := newFixture(t, func(s store.Store) store.Store {
		return failingStore{Store: s, applyErr: errors.New("deadlock")}
	})
	fx.plant("old", "Who is the director?", "Director: Jane Smith", daysAgo(45))
	fx.ver.cands = []models.VerifiedCandidate{{Title: "Director", Content: "Director: John Doe", URL: "https://www.esilv.fr/direction"}}

	res, err := fx.orch.Answer(context.Background(), "Who is the director?")
	require.NoError(t, err)
	assert.Equal(t, SourceVerified, res.Source)
	assert.Nil(t, res.Outcome)
	require.NotNil(t, res.Verdict)
	assert.True(t, res.Verdict.HasConflict)
	assert.Zero(t, fx.log.Len())
}

func TestClose_StopsBackgroundTasks(t *testing.T) {
	fx := newFixture(t, nil)
	fx.plant("majors", "What are the majors offered?", "Data and AI", daysAgo(15))

	require.NoError(t, fx.orch.Close(context.Background()))

	res, err := fx.orch.Answer(context.Background(), "What are the majors offered?")
	require.NoError(t, err)
	assert.Equal(t, freshness.ModeAsync, res.Decision.Mode)
	assert.Nil(t, res.Task)
	assert.Zero(t, fx.ver.Calls())
}

func TestVerify_Scheduled(t *testing.T) {
	fx := newFixture(t, nil)
	old := fx.plant("old", "Who is the director?", "Director: Jane Smith", daysAgo(45))
	fx.ver.cands = []models.VerifiedCandidate{{Title: "Director", Content: "Director: John Doe", URL: "https://www.esilv.fr/direction"}}

	verdict, out, err := fx.orch.Verify(context.Background(), old.Question, []*models.Fact{old}, models.TriggerScheduled)
	require.NoError(t, err)
	assert.True(t, verdict.HasConflict)
	assert.Len(t, out.Retired, 1)

	entries, err := fx.log.List(context.Background(), audit.Filter{Trigger: models.TriggerScheduled})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCandidateFacts(t *testing.T) {
	facts := CandidateFacts("stage", []models.VerifiedCandidate{
		{Title: "Forum entreprises", Content: "Rencontrez 80 entreprises.", URL: "https://www.esilv.fr/forum", Confidence: 0.8, Tags: []string{"Carrières"}},
	}, now)
	require.Len(t, facts, 1)
	assert.Equal(t, "Forum entreprises (Date inconnue)", facts[0].Question)
	assert.Contains(t, facts[0].Answer, "Tags: Carrières")
	assert.Equal(t, "https://www.esilv.fr/forum", facts[0].SourceURL())
	assert.Equal(t, now, *facts[0].LastVerified)
	assert.Empty(t, facts[0].ID)
}

func TestScrape(t *testing.T) {
	fx := newFixture(t, nil)
	fx.ver.cands = []models.VerifiedCandidate{
		{Title: "Hackathon cybersécurité", Content: "Les étudiants ont remporté le premier prix.", URL: "https://www.esilv.fr/actus/hackathon", Date: "14/03/2025", Confidence: 0.95},
	}

	res, err := fx.orch.Scrape(context.Background(), ScrapeRequest{Query: "actualités"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Nil(t, res.Saved)
	assert.Equal(t, 0, fx.mem.Len())

	res, err = fx.orch.Scrape(context.Background(), ScrapeRequest{Query: "actualités", AutoSave: true})
	require.NoError(t, err)
	require.NotNil(t, res.Saved)
	require.Len(t, res.Saved.Inserted, 1)
	assert.Equal(t, ScrapedCategory, res.Saved.Inserted[0].Category)
	assert.Equal(t, "Hackathon cybersécurité (14/03/2025)", res.Saved.Inserted[0].Question)

	res, err = fx.orch.Scrape(context.Background(), ScrapeRequest{Query: "actualités", AutoSave: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved.Duplicates)
	assert.Equal(t, 1, fx.mem.Len())

	entries, err := fx.log.List(context.Background(), audit.Filter{Trigger: models.TriggerManual})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestScrape_Errors(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.orch.Scrape(context.Background(), ScrapeRequest{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	fx.ver.err = verifier.ErrVerificationUnavailable
	_, err = fx.orch.Scrape(context.Background(), ScrapeRequest{Query: "actualités", AutoSave: true})
	assert.ErrorIs(t, err, verifier.ErrVerificationUnavailable)
	assert.Equal(t, 0, fx.mem.Len())
}
