package models

import (
	"sync/atomic"
	"time"
)

// GlobalStats represents global edge statistics
type GlobalStats struct {
	TotalRequests     int64        `json:"totalRequests"`
	TotalRedirects    int64        `json:"totalRedirects"`
	TotalRewrites     int64        `json:"totalRewrites"`
	TotalUnmatched    int64        `json:"totalUnmatched"`
	AvgDecisionTimeMs float64      `json:"avgDecisionTimeMs"`
	RequestsPerSecond float64      `json:"requestsPerSecond"`
	StartTime         time.Time    `json:"startTime"`
	Uptime            string       `json:"uptime"`
	Rules             RuleCounts   `json:"rules"`
	TopRules          []RuleStat   `json:"topRules"`
	RequestsByHour    []HourlyStat `json:"requestsByHour"`
}

// RuleStat represents hit statistics for a single rule
type RuleStat struct {
	Kind        string `json:"kind"`
	Source      string `json:"source"`
	Phase       string `json:"phase,omitempty"`
	Hits        int64  `json:"hits"`
	LastHitTime string `json:"lastHitTime,omitempty"`
}

// HourlyStat represents hourly request statistics
type HourlyStat struct {
	Hour     string `json:"hour"`
	Requests int64  `json:"requests"`
	Matched  int64  `json:"matched"`
}

// AtomicRuleStat is a thread-safe version of rule statistics
type AtomicRuleStat struct {
	Kind        string
	Source      string
	Phase       string
	Hits        atomic.Int64
	LastHitTime atomic.Value // stores time.Time
}

// ToRuleStat converts to a regular RuleStat
func (a *AtomicRuleStat) ToRuleStat() RuleStat {
	var lastHit string
	if t, ok := a.LastHitTime.Load().(time.Time); ok && !t.IsZero() {
		lastHit = t.Format(time.RFC3339)
	}

	return RuleStat{
		Kind:        a.Kind,
		Source:      a.Source,
		Phase:       a.Phase,
		Hits:        a.Hits.Load(),
		LastHitTime: lastHit,
	}
}
