package domain

// Severity levels, ordered from most to least severe.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

var severityRank = map[string]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// SeverityRank returns a sortable rank for a severity string; unknown
// severities sort after all known ones.
func SeverityRank(severity string) int {
	if rank, ok := severityRank[severity]; ok {
		return rank
	}
	return len(severityRank)
}

// MoreSevere reports whether a outranks b.
func MoreSevere(a, b string) bool {
	return SeverityRank(a) < SeverityRank(b)
}
