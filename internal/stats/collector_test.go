package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasenjit/edgerules/internal/models"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	require.NotNil(t, c)
	assert.NotNil(t, c.rules)
	assert.NotNil(t, c.hourlyStats)
	assert.Equal(t, 168, c.maxHourlySlots)
}

func TestRecordRequest_Totals(t *testing.T) {
	c := NewCollector()

	c.RecordRequest([]models.Decision{
		{Kind: models.DecisionHeaders, Source: "/:path*"},
		{Kind: models.DecisionRedirect, Source: "/old", Destination: "/new", StatusCode: 308},
	}, 2*time.Millisecond)
	c.RecordRequest([]models.Decision{
		{Kind: models.DecisionRewrite, Source: "/api/:path*", Phase: "beforeFiles"},
		{Kind: models.DecisionOrigin},
	}, 4*time.Millisecond)
	c.RecordRequest([]models.Decision{{Kind: models.DecisionNotFound}}, 0)

	stats := c.GetGlobalStats(models.RuleCounts{Redirects: 1})

	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.TotalRedirects)
	assert.Equal(t, int64(1), stats.TotalRewrites)
	assert.Equal(t, int64(1), stats.TotalUnmatched)
	assert.InDelta(t, 2.0, stats.AvgDecisionTimeMs, 0.001)
	assert.Equal(t, 1, stats.Rules.Redirects)
	assert.Len(t, stats.TopRules, 3)
	require.Len(t, stats.RequestsByHour, 24)
	assert.Equal(t, int64(3), stats.RequestsByHour[23].Requests)
	assert.Equal(t, int64(2), stats.RequestsByHour[23].Matched)
}

func TestGetRuleStats_OrderedByHits(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 3; i++ {
		c.RecordRequest([]models.Decision{{Kind: models.DecisionRewrite, Source: "/b", Phase: "afterFiles"}}, 0)
	}
	c.RecordRequest([]models.Decision{{Kind: models.DecisionRedirect, Source: "/a"}}, 0)
	// Same source in a different phase is a different rule
	c.RecordRequest([]models.Decision{{Kind: models.DecisionRewrite, Source: "/b", Phase: "fallback"}}, 0)

	rules := c.GetRuleStats()
	require.Len(t, rules, 3)
	assert.Equal(t, "/b", rules[0].Source)
	assert.Equal(t, "afterFiles", rules[0].Phase)
	assert.Equal(t, int64(3), rules[0].Hits)
	assert.NotEmpty(t, rules[0].LastHitTime)
	assert.Equal(t, "redirect", rules[1].Kind)
	assert.Equal(t, "fallback", rules[2].Phase)
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.RecordRequest([]models.Decision{{Kind: models.DecisionRedirect, Source: "/a"}}, time.Millisecond)

	c.Reset()

	stats := c.GetGlobalStats(models.RuleCounts{})
	assert.Zero(t, stats.TotalRequests)
	assert.Zero(t, stats.TotalRedirects)
	assert.Empty(t, stats.TopRules)
	assert.Empty(t, c.GetRuleStats())
}

func TestCleanupOldHourlyStats(t *testing.T) {
	c := NewCollector()
	c.maxHourlySlots = 2
	c.hourlyStats["2020-01-01-00"] = &hourlyCounter{}
	c.hourlyStats["2020-01-01-01"] = &hourlyCounter{}
	c.hourlyStats["2020-01-01-02"] = &hourlyCounter{}

	c.cleanupOldHourlyStats()

	assert.Len(t, c.hourlyStats, 2)
	assert.NotContains(t, c.hourlyStats, "2020-01-01-00")
}

func TestRecordRequest_Concurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordRequest([]models.Decision{{Kind: models.DecisionHeaders, Source: "/x"}}, time.Microsecond)
		}()
	}
	wg.Wait()

	rules := c.GetRuleStats()
	require.Len(t, rules, 1)
	assert.Equal(t, int64(50), rules[0].Hits)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m30s", formatDuration(150*time.Second))
	assert.Equal(t, "2h0m0s", formatDuration(2*time.Hour+10*time.Second))
}
