package engine

import (
	"fmt"
	"strings"
)

type Action string

const (
	ActionRock     Action = "rock"
	ActionPaper    Action = "paper"
	ActionScissors Action = "scissors"
	ActionLizard   Action = "lizard"
	ActionSpock    Action = "spock"
)

// Actions lists the playable moves in a stable order.
var Actions = []Action{ActionRock, ActionPaper, ActionScissors, ActionLizard, ActionSpock}

// winningRules maps winner -> loser -> rule text. Every action beats exactly two others.
var winningRules = map[Action]map[Action]string{
	ActionScissors: {
		ActionPaper:  "Scissors cuts Paper",
		ActionLizard: "Scissors decapitates Lizard",
	},
	ActionPaper: {
		ActionRock:  "Paper covers Rock",
		ActionSpock: "Paper disproves Spock",
	},
	ActionRock: {
		ActionLizard:   "Rock crushes Lizard",
		ActionScissors: "Rock crushes Scissors",
	},
	ActionLizard: {
		ActionSpock: "Lizard poisons Spock",
		ActionPaper: "Lizard eats Paper",
	},
	ActionSpock: {
		ActionScissors: "Spock smashes Scissors",
		ActionRock:     "Spock vaporizes Rock",
	},
}

func (a Action) Valid() bool {
	_, ok := winningRules[a]
	return ok
}

// Beats reports whether a defeats b.
func (a Action) Beats(b Action) bool {
	_, ok := winningRules[a][b]
	return ok
}

// ParseAction accepts wire input case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// Side identifies a seat from the room's point of view. Draw is the zero value.
type Side int

const (
	SideNone Side = iota
	Side1
	Side2
)

func (s Side) String() string {
	switch s {
	case Side1:
		return "player1"
	case Side2:
		return "player2"
	default:
		return "draw"
	}
}

// Verdict is the outcome of a single round.
type Verdict struct {
	Winner Side
	Rule   string
}

func (v Verdict) IsDraw() bool { return v.Winner == SideNone }

// Resolve decides a round between side 1 playing a1 and side 2 playing a2.
func Resolve(a1, a2 Action) Verdict {
	if a1 == a2 {
		return Verdict{Winner: SideNone}
	}
	if rule, ok := winningRules[a1][a2]; ok {
		return Verdict{Winner: Side1, Rule: rule}
	}
	if rule, ok := winningRules[a2][a1]; ok {
		return Verdict{Winner: Side2, Rule: rule}
	}
	// Unknown actions never reach here through Apply.
	return Verdict{Winner: SideNone}
}
