package models

// OutcomeCounts counts matched and unmatched routings
type OutcomeCounts struct {
	Matched   int64 `json:"matched"`
	Unmatched int64 `json:"unmatched"`
}

// RoutingStats is a point-in-time copy of the routing counters
type RoutingStats struct {
	OutcomeCounts
	ByCategory map[Category]OutcomeCounts `json:"by_category"`
}
