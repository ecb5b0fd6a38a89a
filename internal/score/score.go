// Package score implements the padel set-score grammar: parsing, validation,
// winner derivation, and the per-match features that feed rating weights.
//
// The validator is pure over the score value so handlers and the proposal
// path share one implementation.
package score

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Set is one scored set, team 1 games vs team 2 games.
type Set struct {
	T1 int `json:"t1"`
	T2 int `json:"t2"`
}

// Score is the full result of a match: two or three sets.
type Score struct {
	Sets []Set `json:"sets"`
}

// ErrInvalid is the root of all grammar violations; wrap details onto it.
var ErrInvalid = errors.New("invalid score")

// Parse decodes and validates raw JSON in the {"sets":[{"t1":..,"t2":..}]}
// shape. Unknown fields are rejected so proposals can't smuggle extras.
func Parse(raw []byte) (Score, error) {
	var s Score
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := Validate(s); err != nil {
		return Score{}, err
	}
	return s, nil
}

// Validate checks the grammar:
//
//	per set: 0 ≤ games ≤ 7, no ties, max ∈ {6,7};
//	         max=6 ⇒ min ≤ 4; max=7 ⇒ min ∈ {5,6}.
//	match:   2 sets ⇒ same winner both; 3 sets ⇒ first two split 1–1.
func Validate(s Score) error {
	n := len(s.Sets)
	if n != 2 && n != 3 {
		return fmt.Errorf("%w: must have 2 or 3 sets, got %d", ErrInvalid, n)
	}
	for i, set := range s.Sets {
		if err := validateSet(set); err != nil {
			return fmt.Errorf("%w: set %d: %v", ErrInvalid, i+1, err)
		}
	}

	w1, w2 := setWins(s)
	switch n {
	case 2:
		if w1 != 2 && w2 != 2 {
			return fmt.Errorf("%w: two sets must share one winner", ErrInvalid)
		}
	case 3:
		if !(w1 == 2 && w2 == 1) && !(w1 == 1 && w2 == 2) {
			return fmt.Errorf("%w: three sets must end 2-1", ErrInvalid)
		}
		f1, f2 := 0, 0
		for _, set := range s.Sets[:2] {
			if set.T1 > set.T2 {
				f1++
			} else {
				f2++
			}
		}
		if f1 != 1 || f2 != 1 {
			return fmt.Errorf("%w: a decider requires the first two sets split 1-1", ErrInvalid)
		}
	}
	return nil
}

func validateSet(s Set) error {
	if s.T1 < 0 || s.T1 > 7 || s.T2 < 0 || s.T2 > 7 {
		return fmt.Errorf("games must be between 0 and 7")
	}
	if s.T1 == s.T2 {
		return fmt.Errorf("a set cannot be tied")
	}
	hi, lo := s.T1, s.T2
	if lo > hi {
		hi, lo = lo, hi
	}
	switch hi {
	case 6:
		if lo > 4 {
			return fmt.Errorf("a 6-game set requires the loser at 4 or fewer")
		}
	case 7:
		if lo != 5 && lo != 6 {
			return fmt.Errorf("a 7-game set requires the loser at 5 or 6")
		}
	default:
		return fmt.Errorf("the winning side must reach 6 or 7 games")
	}
	return nil
}

func setWins(s Score) (int, int) {
	w1, w2 := 0, 0
	for _, set := range s.Sets {
		if set.T1 > set.T2 {
			w1++
		} else if set.T2 > set.T1 {
			w2++
		}
	}
	return w1, w2
}

// Winner returns the team (1 or 2) holding more set wins. Callers must
// validate first; on a malformed tie it returns 0.
func Winner(s Score) int {
	w1, w2 := setWins(s)
	switch {
	case w1 > w2:
		return 1
	case w2 > w1:
		return 2
	}
	return 0
}

// Equal compares two scores set by set.
func Equal(a, b Score) bool {
	if len(a.Sets) != len(b.Sets) {
		return false
	}
	for i := range a.Sets {
		if a.Sets[i] != b.Sets[i] {
			return false
		}
	}
	return true
}

// Marshal renders the canonical JSON form stored in match_scores.
func Marshal(s Score) []byte {
	b, _ := json.Marshal(s)
	return b
}
