package engine

import (
	"errors"
	"time"
)

var ErrRoomFull = errors.New("room full")
var ErrNotSeated = errors.New("player not seated")
var ErrGameNotReady = errors.New("waiting for a second player")
var ErrRoundNotStarted = errors.New("round already resolved, waiting for new round")
var ErrMatchOver = errors.New("match already over")
var ErrInvalidAction = errors.New("invalid action")
var ErrInvalidBestOf = errors.New("invalid best-of mode")
var ErrUnsupportedCommand = errors.New("unsupported command")

// MaxSeats is the number of players a room can hold.
const MaxSeats = 2

// Seat is one player slot. An empty ConnID means the slot is vacant.
type Seat struct {
	ConnID  string
	Name    string
	Score   int
	Pending *Action // nil until the player acts in the current round
}

func (s Seat) Empty() bool { return s.ConnID == "" }

// State is everything a room knows. Seats keep their position for the life of the room.
type State struct {
	Seats         [MaxSeats]Seat
	Round         int
	MatchOver     bool
	AwaitingReset bool // a round was resolved and nobody asked for the next one yet
	BestOf        BestOf
	StartedAt     time.Time
}

type CommandType string

const (
	CmdSeat         CommandType = "Seat"
	CmdSelectAction CommandType = "SelectAction"
	CmdNewRound     CommandType = "NewRound"
	CmdLeave        CommandType = "Leave"
)

/*
	CmdSeat         -> EvtPlayerSeated -> EvtWaitingForPlayer | EvtGameReady
	                -> EvtPlayerRenamed (already seated)
	CmdSelectAction -> EvtWaitingForOpponent | EvtRoundResolved
	CmdNewRound     -> EvtRoundReset
	CmdLeave        -> EvtPlayerLeft
*/

type Command struct {
	Type   CommandType
	ConnID string
	Name   string
	Action Action
	At     time.Time
}

type EventType string

const (
	EvtPlayerSeated       EventType = "PlayerSeated"
	EvtPlayerRenamed      EventType = "PlayerRenamed"
	EvtWaitingForPlayer   EventType = "WaitingForPlayer"
	EvtGameReady          EventType = "GameReady"
	EvtWaitingForOpponent EventType = "WaitingForOpponent"
	EvtRoundResolved      EventType = "RoundResolved"
	EvtRoundReset         EventType = "RoundReset"
	EvtPlayerLeft         EventType = "PlayerLeft"
)

type Event struct {
	Type   EventType
	ConnID string
	Seat   int // 1-based
	Total  int // seated players after the event
	Reset  bool
	Result *RoundResult
}

// RoundResult is the shared record of one resolved round. Index 0 is seat 1.
type RoundResult struct {
	Round            int
	Actions          [MaxSeats]Action
	Scores           [MaxSeats]int
	Names            [MaxSeats]string
	Verdict          Verdict
	BestOf           BestOf
	MatchOver        bool
	MatchWinner      Side
	MatchDurationSec int
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s

	switch cmd.Type {
	case CmdSeat:
		if idx := s.SeatOf(cmd.ConnID); idx >= 0 {
			newState.Seats[idx].Name = cmd.Name
			return []Event{{Type: EvtPlayerRenamed, ConnID: cmd.ConnID, Seat: idx + 1}}, newState, nil
		}

		free := s.freeSeat()
		if free < 0 {
			return nil, s, ErrRoomFull
		}
		newState.Seats[free] = Seat{ConnID: cmd.ConnID, Name: cmd.Name}
		total := newState.Seated()

		events := []Event{{Type: EvtPlayerSeated, ConnID: cmd.ConnID, Seat: free + 1, Total: total}}
		if total < MaxSeats {
			events = append(events, Event{Type: EvtWaitingForPlayer, ConnID: cmd.ConnID, Total: total})
			return events, newState, nil
		}

		// Room is full: the next round starts clean. A finished match is not carried over to a new opponent.
		if newState.MatchOver {
			newState.restartMatch(cmd.At)
		}
		newState.clearPending()
		newState.AwaitingReset = false
		events = append(events, Event{Type: EvtGameReady, Total: total})
		return events, newState, nil

	case CmdSelectAction:
		idx := s.SeatOf(cmd.ConnID)
		if idx < 0 {
			return nil, s, ErrNotSeated
		}
		if !cmd.Action.Valid() {
			return nil, s, ErrInvalidAction
		}
		if s.MatchOver {
			return nil, s, ErrMatchOver
		}
		if s.Seated() < MaxSeats {
			return nil, s, ErrGameNotReady
		}
		if s.AwaitingReset {
			return nil, s, ErrRoundNotStarted
		}

		action := cmd.Action
		newState.Seats[idx].Pending = &action

		if !newState.allActed() {
			return []Event{{Type: EvtWaitingForOpponent, ConnID: cmd.ConnID, Seat: idx + 1}}, newState, nil
		}

		result := newState.resolveRound(cmd.At)
		return []Event{{Type: EvtRoundResolved, Result: result, Total: MaxSeats}}, newState, nil

	case CmdNewRound:
		if s.SeatOf(cmd.ConnID) < 0 {
			return nil, s, ErrNotSeated
		}
		reset := s.MatchOver
		if reset {
			newState.restartMatch(cmd.At)
		}
		newState.clearPending()
		newState.AwaitingReset = false
		return []Event{{Type: EvtRoundReset, ConnID: cmd.ConnID, Reset: reset, Total: newState.Seated()}}, newState, nil

	case CmdLeave:
		idx := s.SeatOf(cmd.ConnID)
		if idx < 0 {
			// Bound but never seated: nothing to vacate.
			return nil, s, nil
		}
		newState.Seats[idx] = Seat{}
		// The interrupted round is void for whoever stays; score and round are kept.
		newState.clearPending()
		return []Event{{Type: EvtPlayerLeft, ConnID: cmd.ConnID, Seat: idx + 1, Total: newState.Seated()}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// resolveRound scores the round, evaluates match progress and advances the round counter once.
func (s *State) resolveRound(at time.Time) *RoundResult {
	a1, a2 := *s.Seats[0].Pending, *s.Seats[1].Pending
	verdict := Resolve(a1, a2)
	switch verdict.Winner {
	case Side1:
		s.Seats[0].Score++
	case Side2:
		s.Seats[1].Score++
	}

	progress := MatchProgress(s.Round, s.BestOf, s.Seats[0].Score, s.Seats[1].Score)
	result := &RoundResult{
		Round:       s.Round,
		Actions:     [MaxSeats]Action{a1, a2},
		Scores:      [MaxSeats]int{s.Seats[0].Score, s.Seats[1].Score},
		Names:       [MaxSeats]string{s.Seats[0].Name, s.Seats[1].Name},
		Verdict:     verdict,
		BestOf:      s.BestOf,
		MatchOver:   progress.Over,
		MatchWinner: progress.Winner,
	}
	if progress.Over {
		s.MatchOver = true
		result.MatchDurationSec = MatchDuration(s.StartedAt, at)
	}

	s.Round++
	s.AwaitingReset = true
	return result
}

func (s *State) restartMatch(at time.Time) {
	for i := range s.Seats {
		s.Seats[i].Score = 0
	}
	s.Round = 1
	s.MatchOver = false
	s.StartedAt = at
}

func (s *State) clearPending() {
	for i := range s.Seats {
		s.Seats[i].Pending = nil
	}
}

func (s State) allActed() bool {
	for _, seat := range s.Seats {
		if seat.Empty() || seat.Pending == nil {
			return false
		}
	}
	return true
}

func (s State) freeSeat() int {
	for i, seat := range s.Seats {
		if seat.Empty() {
			return i
		}
	}
	return -1
}
