package agentcontext

import "strconv"

// MatchesIterationPattern reports whether iteration (1-based) matches an
// iterations pattern: "all", "N", "M-N", or "N+" (spec §4.6, §4.4). Used
// both for modelRules resolution and for iteration-selected prompt variants.
func MatchesIterationPattern(pattern string, iteration int) bool {
	return matchesIterationPattern(pattern, iteration)
}

func matchesIterationPattern(pattern string, iteration int) bool {
	if pattern == "all" || pattern == "" {
		return true
	}
	if n, err := strconv.Atoi(pattern); err == nil {
		return iteration == n
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '+' {
		if n, err := strconv.Atoi(pattern[:len(pattern)-1]); err == nil {
			return iteration >= n
		}
		return false
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '-' {
			lo, errLo := strconv.Atoi(pattern[:i])
			hi, errHi := strconv.Atoi(pattern[i+1:])
			if errLo == nil && errHi == nil {
				return iteration >= lo && iteration <= hi
			}
			return false
		}
	}
	return false
}
