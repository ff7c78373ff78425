package engine

import (
	"errors"
	"testing"
)

func TestResolve_AllOrderedPairs(t *testing.T) {
	draws, decided := 0, 0
	for _, a1 := range Actions {
		for _, a2 := range Actions {
			v := Resolve(a1, a2)
			if a1 == a2 {
				draws++
				if !v.IsDraw() || v.Rule != "" {
					t.Fatalf("%s vs %s: want draw with no rule, got %+v", a1, a2, v)
				}
				continue
			}

			decided++
			if v.IsDraw() {
				t.Fatalf("%s vs %s: unexpected draw", a1, a2)
			}
			if v.Rule == "" {
				t.Fatalf("%s vs %s: empty rule text", a1, a2)
			}
			want := Side2
			if a1.Beats(a2) {
				want = Side1
			}
			if v.Winner != want {
				t.Fatalf("%s vs %s: got winner %v, want %v", a1, a2, v.Winner, want)
			}
		}
	}
	if draws != 5 || decided != 20 {
		t.Fatalf("got %d draws / %d decided, want 5 / 20", draws, decided)
	}
}

func TestBeatsRelation_EachActionBeatsTwoLosesTwo(t *testing.T) {
	for _, a := range Actions {
		wins, losses := 0, 0
		for _, b := range Actions {
			if a == b {
				if a.Beats(b) {
					t.Fatalf("%s beats itself", a)
				}
				continue
			}
			if a.Beats(b) && b.Beats(a) {
				t.Fatalf("%s and %s beat each other", a, b)
			}
			if a.Beats(b) {
				wins++
			}
			if b.Beats(a) {
				losses++
			}
		}
		if wins != 2 || losses != 2 {
			t.Fatalf("%s: %d wins / %d losses, want 2 / 2", a, wins, losses)
		}
	}
}

func TestResolve_MirroredPerspectiveAgrees(t *testing.T) {
	for _, a := range Actions {
		for _, b := range Actions {
			v1 := Resolve(a, b)
			v2 := Resolve(b, a)
			if v1.Rule != v2.Rule {
				t.Fatalf("%s/%s: rule %q vs mirrored %q", a, b, v1.Rule, v2.Rule)
			}
			switch v1.Winner {
			case Side1:
				if v2.Winner != Side2 {
					t.Fatalf("%s/%s: mirrored winner %v", a, b, v2.Winner)
				}
			case Side2:
				if v2.Winner != Side1 {
					t.Fatalf("%s/%s: mirrored winner %v", a, b, v2.Winner)
				}
			default:
				if !v2.IsDraw() {
					t.Fatalf("%s/%s: mirrored should be draw", a, b)
				}
			}
		}
	}
}

func TestResolve_RuleText(t *testing.T) {
	cases := []struct {
		a1, a2 Action
		winner Side
		rule   string
	}{
		{ActionRock, ActionScissors, Side1, "Rock crushes Scissors"},
		{ActionScissors, ActionRock, Side2, "Rock crushes Scissors"},
		{ActionSpock, ActionRock, Side1, "Spock vaporizes Rock"},
		{ActionPaper, ActionLizard, Side2, "Lizard eats Paper"},
		{ActionLizard, ActionSpock, Side1, "Lizard poisons Spock"},
	}

	for _, tc := range cases {
		t.Run(string(tc.a1)+"_vs_"+string(tc.a2), func(t *testing.T) {
			v := Resolve(tc.a1, tc.a2)
			if v.Winner != tc.winner || v.Rule != tc.rule {
				t.Fatalf("got %+v, want winner=%v rule=%q", v, tc.winner, tc.rule)
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Spock ")
	if err != nil || a != ActionSpock {
		t.Fatalf("got %q, %v", a, err)
	}

	_, err = ParseAction("dynamite")
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("want ErrInvalidAction, got %v", err)
	}
}
