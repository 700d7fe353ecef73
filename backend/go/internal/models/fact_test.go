package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFactValidate(t *testing.T) {
	ok := &Fact{Question: "Q", Answer: "A", Confidence: 0.5}
	assert.NoError(t, ok.Validate())

	assert.ErrorIs(t, (&Fact{Answer: "A"}).Validate(), ErrInvalidFact)
	assert.ErrorIs(t, (&Fact{Question: "Q", Answer: "  "}).Validate(), ErrInvalidFact)
	assert.ErrorIs(t, (&Fact{Question: "Q", Answer: "A", Confidence: 1.2}).Validate(), ErrInvalidFact)
}

func TestFactPatchNeverBackdatesLastVerified(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-48 * time.Hour)
	f := &Fact{Question: "Q", Answer: "A", LastVerified: &now}

	FactPatch{LastVerified: &earlier}.Apply(f)
	assert.Equal(t, now, *f.LastVerified)

	later := now.Add(time.Hour)
	FactPatch{LastVerified: &later}.Apply(f)
	assert.Equal(t, later, *f.LastVerified)
}

func TestFactPatchRefreshesHash(t *testing.T) {
	f := &Fact{Question: "Q", Answer: "A"}
	f.ContentHash = ContentHash(f.Question, f.Answer)
	answer := "B"
	FactPatch{Answer: &answer}.Apply(f)
	assert.Equal(t, ContentHash("Q", "B"), f.ContentHash)
}

func TestContentHashIgnoresCaseAndSpace(t *testing.T) {
	assert.Equal(t, ContentHash("Who is the director?", "Jane"), ContentHash("  who is the DIRECTOR? ", "jane "))
	assert.NotEqual(t, ContentHash("a", "bc"), ContentHash("ab", "c"))
}

func TestFactAgeFallsBackToCreatedAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := &Fact{CreatedAt: now.Add(-10 * 24 * time.Hour)}
	assert.InDelta(t, 10.0, f.AgeDays(now), 1e-9)
}

func TestFormSubmissionNormalize(t *testing.T) {
	s := &FormSubmission{Name: "  Alice Martin ", Email: "alice@example.com", Program: "Ingénieur"}
	assert.NoError(t, s.Normalize())
	assert.Equal(t, "Alice Martin", s.Name)
	assert.Equal(t, "contact", s.Type)
	assert.Equal(t, SubmissionPending, s.Status)

	assert.ErrorIs(t, (&FormSubmission{Name: "Alice"}).Normalize(), ErrInvalidSubmission)
	assert.ErrorIs(t, (&FormSubmission{Email: "alice@example.com"}).Normalize(), ErrInvalidSubmission)
	assert.ErrorIs(t, (&FormSubmission{Name: "Alice", Email: "alice"}).Normalize(), ErrInvalidSubmission)
}

func TestParseFeedback(t *testing.T) {
	assert.Equal(t, FeedbackPositive, ParseFeedback("up"))
	assert.Equal(t, FeedbackNegative, ParseFeedback("down"))
	assert.Equal(t, FeedbackNegative, ParseFeedback("negative"))
	assert.Equal(t, FeedbackNeutral, ParseFeedback(""))
	assert.Equal(t, FeedbackNeutral, ParseFeedback("meh"))
}
