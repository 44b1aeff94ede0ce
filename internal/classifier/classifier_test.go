package classifier

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyExplicitSponsorship(t *testing.T) {
	t.Parallel()

	got := New().Classify("We sponsor H1B visas for all engineers", "", "")

	assert.GreaterOrEqual(t, got.Confidence, 0.6)
	assert.InDelta(t, 1.0, got.Confidence, 0.0001)
	assert.Equal(t, []string{"h1b visa"}, got.PositiveMatches)
	assert.Empty(t, got.NegativeMatches)
	assert.Equal(t, 1, got.Breakdown.Explicit)
	assert.Equal(t, 1, got.Breakdown.Implicit, "sponsor...h1b pattern counts as implicit")
}

func TestClassifyNegativeOnly(t *testing.T) {
	t.Parallel()

	got := New().Classify("US Citizens only, no visa sponsorship", "", "")

	assert.Less(t, got.Confidence, 0.3)
	assert.Equal(t, []string{"us citizens only", "no visa sponsorship"}, got.NegativeMatches)
	assert.Equal(t, 2, got.Breakdown.Negative)
	assert.InDelta(t, -1.1, got.Breakdown.TotalScore, 0.0001)
}

func TestClassifyNegativePenaltyWithoutExplicit(t *testing.T) {
	t.Parallel()

	got := New().Classify(
		"International candidates welcome with work authorization. Must be authorized to work.",
		"Analyst",
		"",
	)

	require.Equal(t, 0, got.Breakdown.Explicit)
	require.Equal(t, 1, got.Breakdown.Negative)
	assert.InDelta(t, 0.6, got.Confidence, 0.0001)
}

func TestClassifyEmployerBonus(t *testing.T) {
	t.Parallel()

	c := New()
	plain := c.Classify("Great role", "Software Engineer", "Acme Corp")
	sponsor := c.Classify("Great role", "Software Engineer", "Google LLC")

	assert.InDelta(t, 0.5, plain.Confidence, 0.0001)
	assert.InDelta(t, 0.6, sponsor.Confidence, 0.0001)
}

func TestClassifyTitleParticipates(t *testing.T) {
	t.Parallel()

	got := New().Classify("Join our team", "Backend Engineer (H1B Friendly)", "")
	assert.Contains(t, got.PositiveMatches, "h1b friendly")
	assert.Greater(t, got.Confidence, 0.6)
}

func TestClassifyIsDeterministic(t *testing.T) {
	t.Parallel()

	c := New()
	text := "Visa sponsorship and work visa support available; work authorization assistance."
	first := c.Classify(text, "Data Scientist", "Meta")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, c.Classify(text, "Data Scientist", "Meta"))
	}
}

func TestClassifyConcurrentCallsAgree(t *testing.T) {
	t.Parallel()

	c := New()
	text := "We sponsor H1B visas for all engineers. Visa sponsorship available, green card support."
	want := c.Classify(text, "Backend Engineer", "Google")

	var wg sync.WaitGroup
	results := make(chan float64, 8*200)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				got := c.Classify(text, "Backend Engineer", "Google")
				results <- got.Confidence
			}
		}()
	}
	wg.Wait()
	close(results)

	for got := range results {
		require.Equal(t, want.Confidence, got)
	}
}

func TestClassifyConfidenceBounds(t *testing.T) {
	t.Parallel()

	c := New()
	inputs := []string{
		"",
		"h1b sponsorship will sponsor h1b h1b friendly visa sponsorship immigration sponsorship",
		"no sponsorship us citizens only no visa sponsorship must be authorized to work",
	}
	for _, in := range inputs {
		got := c.Classify(in, "", "")
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}
}

func TestCategoryString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "explicit", Explicit.String())
	assert.Equal(t, "implicit", Implicit.String())
	assert.Equal(t, "negative", Negative.String())
	assert.Equal(t, "unknown", Category(9).String())
}
