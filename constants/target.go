package constants

// LoadTarget is one of the independent downstream sinks a transformed
// document may be written to.
type LoadTarget string

const (
	TargetOLTP         LoadTarget = "OLTP"
	TargetDataLake     LoadTarget = "DATA_LAKE"
	TargetFeatureStore LoadTarget = "FEATURE_STORE"
	TargetVectorStore  LoadTarget = "VECTOR_STORE"
)

var allTargets = []LoadTarget{
	TargetOLTP,
	TargetDataLake,
	TargetFeatureStore,
	TargetVectorStore,
}

// AllTargets returns every known load target in a stable order.
func AllTargets() []LoadTarget {
	out := make([]LoadTarget, len(allTargets))
	copy(out, allTargets)
	return out
}

// ParseTarget resolves a target name, case-insensitively.
func ParseTarget(s string) (LoadTarget, bool) {
	for _, t := range allTargets {
		if string(t) == s || string(t) == normalizeUpper(s) {
			return t, true
		}
	}
	return "", false
}
