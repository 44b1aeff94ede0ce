package fixed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockStaysPut(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("EST", -5*3600))
	clk := New(start)

	assert.Equal(t, time.UTC, clk.Now().Location())
	assert.True(t, clk.Now().Equal(start))
	assert.Equal(t, clk.Now(), clk.Now())
}

func TestClockAdvanceAndSet(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := New(start)

	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())

	later := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(later)
	assert.Equal(t, later, clk.Now())
}
