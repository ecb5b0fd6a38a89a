package score

// Features summarizes a validated score for rating and analytics.
type Features struct {
	SetsPlayed   int
	GamesT1      int
	GamesT2      int
	GamesMargin  int
	TotalGames   int
	TiebreakSets int
}

// Extract computes the feature set. Margin is absolute.
func Extract(s Score) Features {
	f := Features{SetsPlayed: len(s.Sets)}
	for _, set := range s.Sets {
		f.GamesT1 += set.T1
		f.GamesT2 += set.T2
		lo, hi := set.T1, set.T2
		if lo > hi {
			lo, hi = hi, lo
		}
		if lo == 6 && hi == 7 {
			f.TiebreakSets++
		}
	}
	f.TotalGames = f.GamesT1 + f.GamesT2
	f.GamesMargin = f.GamesT1 - f.GamesT2
	if f.GamesMargin < 0 {
		f.GamesMargin = -f.GamesMargin
	}
	return f
}

// MoV weight bounds and coefficients. The weight rewards decisive wins and
// discounts long three-setters, clamped to keep deltas stable.
const (
	movFloor        = 0.85
	movCeil         = 1.25
	movMarginCoef   = 0.06
	movMarginCap    = 12
	movSetsCoef     = 0.08
	movBaselineSets = 2
)

// MovWeight returns clamp(0.85, 1.25,
// 1 + 0.06·min(margin,12) − 0.08·(sets−2)).
func (f Features) MovWeight() float64 {
	margin := f.GamesMargin
	if margin > movMarginCap {
		margin = movMarginCap
	}
	w := 1.0 + movMarginCoef*float64(margin) - movSetsCoef*float64(f.SetsPlayed-movBaselineSets)
	if w < movFloor {
		return movFloor
	}
	if w > movCeil {
		return movCeil
	}
	return w
}

// IsClose reports whether the match went the distance.
func (f Features) IsClose() bool {
	return f.SetsPlayed == 3
}
