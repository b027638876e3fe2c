package models

import (
	"time"
)

// Decision kinds recorded in traces and statistics
const (
	DecisionRedirect = "redirect"
	DecisionRewrite  = "rewrite"
	DecisionHeaders  = "headers"
	DecisionStatic   = "static"
	DecisionOrigin   = "origin"
	DecisionNotFound = "notFound"
)

// Trace represents a captured request and the edge decisions taken for it
type Trace struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  int64         `json:"duration"` // Duration in nanoseconds
	Request   TraceRequest  `json:"request"`
	Decisions []Decision    `json:"decisions"`
	Response  TraceResponse `json:"response"`
}

// TraceRequest represents the captured request
type TraceRequest struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Path    string              `json:"path"`
	Host    string              `json:"host"`
	Headers map[string][]string `json:"headers"`
}

// Decision is a single rule resolution step applied to a request
type Decision struct {
	Kind        string   `json:"kind"`
	Source      string   `json:"source,omitempty"`
	Phase       string   `json:"phase,omitempty"`
	Destination string   `json:"destination,omitempty"`
	External    bool     `json:"external,omitempty"`
	StatusCode  int      `json:"statusCode,omitempty"`
	Headers     []Header `json:"headers,omitempty"`
}

// TraceResponse represents the captured response
type TraceResponse struct {
	StatusCode int                 `json:"statusCode"`
	Headers    map[string][]string `json:"headers"`
}

// TraceFilter represents filters for querying traces
type TraceFilter struct {
	Kind       string    `json:"kind,omitempty"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	StartTime  time.Time `json:"startTime,omitempty"`
	EndTime    time.Time `json:"endTime,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// HasKind reports whether any decision in the trace is of the given kind
func (t *Trace) HasKind(kind string) bool {
	for _, d := range t.Decisions {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
