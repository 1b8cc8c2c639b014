package classify

// RankingScore converts a platform-provided categorical ranking label
// (quality/engagement/conversion ranking) to a numeric score in [0,1].
// Pure mapping, no I/O: the scoring pipeline never joins against a lookup
// table for this.
func RankingScore(label string) float64 {
	switch label {
	case "above_average":
		return 1.0
	case "average":
		return 0.75
	case "below_average_35":
		return 0.5
	case "below_average_20":
		return 0.35
	case "below_average_10":
		return 0.2
	default:
		// unknown or unrated inventory scores neutral
		return 0.5
	}
}
