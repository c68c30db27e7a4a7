package services

// ComputeScore derives the integrity score for a session from its counters.
// The score starts at 100, loses 5 points per focus-lost event and 10 points
// per recorded violation, and never goes below 0.
//
// violationCount already includes focus-lost events, so a focus-lost event
// costs 15 points in total. This matches the published scoring rule and is
// kept as-is; changing it would alter every historical report.
func ComputeScore(focusLostCount, violationCount int) int {
	score := 100 - 5*focusLostCount - 10*violationCount
	if score < 0 {
		return 0
	}
	return score
}
