// Package elo implements the team Elo math used by the rating engine:
// expected scores, experience-tiered K factors, margin-weighted team deltas,
// and the provisional clamp.
//
// Everything here is pure; persistence and locking live in the repository
// layer that applies these numbers.
package elo

import "math"

// K tiers by verified-match count, not counting the match being applied.
const (
	KNew         = 48 // fewer than 5 verified matches
	KEstablished = 32 // fewer than 20
	KVeteran     = 24

	newThreshold     = 5
	veteranThreshold = 20
)

// KForMatches returns the K factor for a player with vm verified matches.
func KForMatches(vm int) int {
	switch {
	case vm < newThreshold:
		return KNew
	case vm < veteranThreshold:
		return KEstablished
	default:
		return KVeteran
	}
}

// EffectiveK is the rounded mean of the four participants' K factors.
func EffectiveK(verifiedMatches []int) int {
	if len(verifiedMatches) == 0 {
		return KEstablished
	}
	sum := 0
	for _, vm := range verifiedMatches {
		sum += KForMatches(vm)
	}
	return int(math.Round(float64(sum) / float64(len(verifiedMatches))))
}

// Expected is the classic logistic expectation for a player (or team)
// rated ra against rb.
func Expected(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (rb-ra)/400.0))
}

// TeamDelta computes team 1's rating change; team 2's is its negation.
// weight folds the margin-of-victory and anti-farming factors together.
func TeamDelta(k int, weight float64, r1, r2 float64, team1Won bool) int {
	e1 := Expected(r1, r2)
	s1 := 0.0
	if team1Won {
		s1 = 1.0
	}
	return int(math.Round(float64(k) * weight * (s1 - e1)))
}

// ClampProvisional bounds a delta to ±cap for players still in their
// provisional window.
func ClampProvisional(delta, cap int) int {
	if delta > cap {
		return cap
	}
	if delta < -cap {
		return -cap
	}
	return delta
}

// TeamRating is the average of the two players' current ratings.
func TeamRating(a, b int) float64 {
	return float64(a+b) / 2.0
}
