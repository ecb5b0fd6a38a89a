package score

import (
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sets    []Set
		wantErr bool
	}{
		{"straight sets 6-4 7-5", []Set{{6, 4}, {7, 5}}, false},
		{"straight sets 6-0 6-0", []Set{{6, 0}, {6, 0}}, false},
		{"tiebreak set 7-6", []Set{{7, 6}, {6, 3}}, false},
		{"decider after split", []Set{{6, 4}, {4, 6}, {6, 2}}, false},
		{"decider tiebreak", []Set{{4, 6}, {7, 5}, {7, 6}}, false},

		{"one set only", []Set{{6, 4}}, true},
		{"four sets", []Set{{6, 4}, {6, 4}, {6, 4}, {6, 4}}, true},
		{"6-5 is not a set", []Set{{6, 5}, {6, 4}}, true},
		{"8 games", []Set{{8, 6}, {6, 4}}, true},
		{"negative games", []Set{{-1, 6}, {6, 4}}, true},
		{"tied set", []Set{{6, 6}, {6, 4}}, true},
		{"7-4 is not a set", []Set{{7, 4}, {6, 4}}, true},
		{"5-3 unfinished set", []Set{{5, 3}, {6, 4}}, true},
		{"two sets split without decider", []Set{{6, 4}, {4, 6}}, true},
		{"decider when first two share winner", []Set{{6, 4}, {6, 4}, {6, 2}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(Score{Sets: tt.sets})
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte(`{"sets":[{"t1":6,"t2":4},{"t1":6,"t2":4}],"winner":1}`)); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
	s, err := Parse([]byte(`{"sets":[{"t1":6,"t2":4},{"t1":7,"t2":5}]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := Winner(s); got != 1 {
		t.Errorf("Winner() = %d, want 1", got)
	}
}

func TestWinner(t *testing.T) {
	tests := []struct {
		name string
		sets []Set
		want int
	}{
		{"team1 straight", []Set{{6, 4}, {7, 5}}, 1},
		{"team2 straight", []Set{{4, 6}, {5, 7}}, 2},
		{"team1 in decider", []Set{{6, 4}, {4, 6}, {6, 2}}, 1},
		{"team2 in decider", []Set{{6, 4}, {4, 6}, {2, 6}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Winner(Score{Sets: tt.sets}); got != tt.want {
				t.Errorf("Winner() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	s := Score{Sets: []Set{{6, 4}, {4, 6}, {7, 6}}}
	f := Extract(s)

	if f.SetsPlayed != 3 {
		t.Errorf("SetsPlayed = %d, want 3", f.SetsPlayed)
	}
	if f.GamesT1 != 17 || f.GamesT2 != 16 {
		t.Errorf("games = %d/%d, want 17/16", f.GamesT1, f.GamesT2)
	}
	if f.GamesMargin != 1 {
		t.Errorf("GamesMargin = %d, want 1", f.GamesMargin)
	}
	if f.TotalGames != 33 {
		t.Errorf("TotalGames = %d, want 33", f.TotalGames)
	}
	if f.TiebreakSets != 1 {
		t.Errorf("TiebreakSets = %d, want 1", f.TiebreakSets)
	}
	if !f.IsClose() {
		t.Error("IsClose() = false, want true")
	}
}

func TestMovWeight(t *testing.T) {
	tests := []struct {
		name string
		sets []Set
		want float64
	}{
		// 1 + 0.06*4 = 1.24
		{"comfortable two sets", []Set{{6, 4}, {6, 4}}, 1.24},
		// margin 12 capped, 1 + 0.72 clamps to ceil
		{"double bagel", []Set{{6, 0}, {6, 0}}, 1.25},
		// margin 1, 3 sets: 1 + 0.06 - 0.08 = 0.98
		{"tight decider", []Set{{6, 4}, {4, 6}, {7, 6}}, 0.98},
		// margin 4, 3 sets: 1 + 0.24 - 0.08 = 1.16
		{"decider with margin", []Set{{6, 4}, {4, 6}, {6, 2}}, 1.16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(Score{Sets: tt.sets}).MovWeight()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("MovWeight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	a := Score{Sets: []Set{{6, 4}, {7, 5}}}
	b := Score{Sets: []Set{{6, 4}, {7, 5}}}
	c := Score{Sets: []Set{{6, 4}, {7, 6}}}
	if !Equal(a, b) {
		t.Error("identical scores compare unequal")
	}
	if Equal(a, c) {
		t.Error("different scores compare equal")
	}
	if Equal(a, Score{Sets: a.Sets[:1]}) {
		t.Error("different set counts compare equal")
	}
}
