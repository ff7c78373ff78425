package room

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/rpsls-backend/internal/engine"
	"github.com/DoyleJ11/rpsls-backend/internal/history"
	"github.com/DoyleJ11/rpsls-backend/pkg/protocol"
)

// publish turns engine events into outbound messages. Called with r.state already updated.
func (r *Room) publish(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtPlayerSeated:
			r.log.Info("player seated", zap.String("conn", ev.ConnID), zap.Int("seat", ev.Seat))
			r.sendTo(ev.ConnID, protocol.New(protocol.EvtPlayerJoined, protocol.PlayerJoined{
				PlayerNumber: ev.Seat,
				TotalPlayers: ev.Total,
			}))

		case engine.EvtWaitingForPlayer:
			r.sendTo(ev.ConnID, protocol.New(protocol.EvtWaitingForPlayer, nil))

		case engine.EvtGameReady:
			r.log.Info("game ready")
			r.broadcast(protocol.New(protocol.EvtGameReady, protocol.GameReady{
				Players:     ev.Total,
				Player1Name: r.state.Seats[0].Name,
				Player2Name: r.state.Seats[1].Name,
			}))

		case engine.EvtWaitingForOpponent:
			r.sendTo(ev.ConnID, protocol.New(protocol.EvtWaitingForOpponent, nil))

		case engine.EvtRoundResolved:
			r.publishResult(ev.Result)

		case engine.EvtRoundReset:
			r.broadcast(protocol.New(protocol.EvtRoundReset, protocol.RoundReset{
				Player1Score: r.state.Seats[0].Score,
				Player2Score: r.state.Seats[1].Score,
				RoundNumber:  r.state.Round,
			}))

		case engine.EvtPlayerLeft:
			r.broadcast(protocol.New(protocol.EvtPlayerDisconnected, nil))

		case engine.EvtPlayerRenamed:
			r.log.Debug("player renamed", zap.String("conn", ev.ConnID), zap.Int("seat", ev.Seat))
		}
	}
}

func (r *Room) publishResult(res *engine.RoundResult) {
	r.log.Info("round resolved",
		zap.Int("round", res.Round),
		zap.Stringer("winner", res.Verdict.Winner),
		zap.Ints("score", res.Scores[:]),
		zap.Bool("match_over", res.MatchOver))

	for i, seat := range r.state.Seats {
		if seat.Empty() {
			continue
		}
		r.sendTo(seat.ConnID, protocol.New(protocol.EvtRoundResult, resultFor(res, i)))
	}

	if res.MatchOver && r.sink != nil {
		r.sink.Enqueue(r.matchRecord(res))
	}
}

// resultFor renders the shared round record from one seat's perspective.
func resultFor(res *engine.RoundResult, seat int) protocol.RoundResult {
	out := protocol.RoundResult{
		Player1Action: string(res.Actions[0]),
		Player2Action: string(res.Actions[1]),
		IsPlayer1:     seat == 0,
		Winner:        res.Verdict.Winner.String(),
		Rule:          res.Verdict.Rule,
		Outcome:       outcome(res.Verdict.Winner, seat),
		Player1Score:  res.Scores[0],
		Player2Score:  res.Scores[1],
		RoundNumber:   res.Round,
		MatchOver:     res.MatchOver,
		BestOf:        int(res.BestOf),
		Player1Name:   res.Names[0],
		Player2Name:   res.Names[1],
	}
	if res.MatchOver {
		out.MatchWinner = res.MatchWinner.String()
		d := res.MatchDurationSec
		out.MatchDuration = &d
	}
	return out
}

func outcome(winner engine.Side, seat int) string {
	switch {
	case winner == engine.SideNone:
		return "draw"
	case int(winner) == seat+1:
		return "win"
	default:
		return "lose"
	}
}

func (r *Room) matchRecord(res *engine.RoundResult) history.MatchRecord {
	w := int(res.MatchWinner) - 1
	l := 1 - w
	return history.MatchRecord{
		ID:          uuid.NewString(),
		RoomCode:    r.code,
		Winner:      displayName(w, res.Names[w]),
		Loser:       displayName(l, res.Names[l]),
		WinnerScore: res.Scores[w],
		LoserScore:  res.Scores[l],
		BestOf:      int(res.BestOf),
		DurationSec: res.MatchDurationSec,
		FinishedAt:  r.now(),
	}
}

func displayName(seat int, name string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("Player %d", seat+1)
}
