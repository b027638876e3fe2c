package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/edgerules/internal/models"
)

// Collector collects and aggregates edge decision statistics
type Collector struct {
	mu             sync.RWMutex
	startTime      time.Time
	rules          map[ruleKey]*models.AtomicRuleStat
	hourlyStats    map[string]*hourlyCounter // "YYYY-MM-DD-HH" -> counter
	maxHourlySlots int

	totalRequests  int64
	totalRedirects int64
	totalRewrites  int64
	totalUnmatched int64
	totalTimeNs    int64
}

type ruleKey struct {
	kind   string
	phase  string
	source string
}

type hourlyCounter struct {
	Hour     string
	Requests int64
	Matched  int64
}

// NewCollector creates a new statistics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:      time.Now(),
		rules:          make(map[ruleKey]*models.AtomicRuleStat),
		hourlyStats:    make(map[string]*hourlyCounter),
		maxHourlySlots: 168, // 7 days
	}
}

// RecordRequest records the decisions taken for one request and the time
// spent resolving them
func (c *Collector) RecordRequest(decisions []models.Decision, duration time.Duration) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.totalTimeNs += duration.Nanoseconds()

	matched := false
	for _, d := range decisions {
		switch d.Kind {
		case models.DecisionRedirect:
			c.totalRedirects++
		case models.DecisionRewrite:
			c.totalRewrites++
		case models.DecisionHeaders:
		default:
			continue
		}
		matched = true
		c.hitRule(d, now)
	}

	if !matched {
		c.totalUnmatched++
	}

	hourKey := now.Format("2006-01-02-15")
	hourly, ok := c.hourlyStats[hourKey]
	if !ok {
		hourly = &hourlyCounter{Hour: hourKey}
		c.hourlyStats[hourKey] = hourly
		c.cleanupOldHourlyStats()
	}
	hourly.Requests++
	if matched {
		hourly.Matched++
	}
}

func (c *Collector) hitRule(d models.Decision, now time.Time) {
	key := ruleKey{kind: d.Kind, phase: d.Phase, source: d.Source}
	stat, ok := c.rules[key]
	if !ok {
		stat = &models.AtomicRuleStat{Kind: d.Kind, Phase: d.Phase, Source: d.Source}
		c.rules[key] = stat
	}
	stat.Hits.Add(1)
	stat.LastHitTime.Store(now)
}

// cleanupOldHourlyStats removes hourly stats older than maxHourlySlots
func (c *Collector) cleanupOldHourlyStats() {
	if len(c.hourlyStats) <= c.maxHourlySlots {
		return
	}

	keys := make([]string, 0, len(c.hourlyStats))
	for k := range c.hourlyStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	toRemove := len(keys) - c.maxHourlySlots
	for i := 0; i < toRemove; i++ {
		delete(c.hourlyStats, keys[i])
	}
}

// GetGlobalStats returns global statistics. counts describes the currently
// loaded rules.
func (c *Collector) GetGlobalStats(counts models.RuleCounts) *models.GlobalStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ruleStats := c.ruleStatsLocked()
	top := ruleStats
	if len(top) > 10 {
		top = top[:10]
	}

	var avgDecisionTimeMs float64
	if c.totalRequests > 0 {
		avgDecisionTimeMs = float64(c.totalTimeNs) / float64(c.totalRequests) / 1e6
	}

	uptime := time.Since(c.startTime)
	var requestsPerSecond float64
	if uptime.Seconds() > 0 {
		requestsPerSecond = float64(c.totalRequests) / uptime.Seconds()
	}

	return &models.GlobalStats{
		TotalRequests:     c.totalRequests,
		TotalRedirects:    c.totalRedirects,
		TotalRewrites:     c.totalRewrites,
		TotalUnmatched:    c.totalUnmatched,
		AvgDecisionTimeMs: avgDecisionTimeMs,
		RequestsPerSecond: requestsPerSecond,
		StartTime:         c.startTime,
		Uptime:            formatDuration(uptime),
		Rules:             counts,
		TopRules:          top,
		RequestsByHour:    c.buildHourlyStats(),
	}
}

// GetRuleStats returns per-rule statistics ordered by hits
func (c *Collector) GetRuleStats() []models.RuleStat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ruleStatsLocked()
}

func (c *Collector) ruleStatsLocked() []models.RuleStat {
	out := make([]models.RuleStat, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.ToRuleStat())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hits != out[j].Hits {
			return out[i].Hits > out[j].Hits
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Source < out[j].Source
	})
	return out
}

// buildHourlyStats builds the last 24 hours of request counts
func (c *Collector) buildHourlyStats() []models.HourlyStat {
	now := time.Now()
	stats := make([]models.HourlyStat, 0, 24)

	for i := 23; i >= 0; i-- {
		hour := now.Add(-time.Duration(i) * time.Hour)
		stat := models.HourlyStat{Hour: hour.Format("15:00")}
		if hourly, ok := c.hourlyStats[hour.Format("2006-01-02-15")]; ok {
			stat.Requests = hourly.Requests
			stat.Matched = hourly.Matched
		}
		stats = append(stats, stat)
	}

	return stats
}

// Reset resets all statistics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.rules = make(map[ruleKey]*models.AtomicRuleStat)
	c.hourlyStats = make(map[string]*hourlyCounter)
	c.totalRequests = 0
	c.totalRedirects = 0
	c.totalRewrites = 0
	c.totalUnmatched = 0
	c.totalTimeNs = 0
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Minute).String()
	case d >= time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
