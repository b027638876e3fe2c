package models

// Condition represents a has/missing predicate attached to a rule
type Condition struct {
	Type  string `json:"type" yaml:"type"`                       // header, cookie, host, query
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`     // Header, cookie or query name; unused for host
	Value string `json:"value,omitempty" yaml:"value,omitempty"` // Optional regex, anchored when evaluated
}

// Supported condition types
const (
	ConditionHeader = "header"
	ConditionCookie = "cookie"
	ConditionHost   = "host"
	ConditionQuery  = "query"
)

// ValidConditionTypes returns all valid condition types
func ValidConditionTypes() []string {
	return []string{ConditionHeader, ConditionCookie, ConditionHost, ConditionQuery}
}

// IsValidConditionType reports whether t is a known condition type
func IsValidConditionType(t string) bool {
	for _, v := range ValidConditionTypes() {
		if v == t {
			return true
		}
	}
	return false
}
