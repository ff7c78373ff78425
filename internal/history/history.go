// Package history archives finished matches and answers head-to-head questions about them.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidRecord = errors.New("invalid match record")

type MatchRecord struct {
	ID          string    `json:"id"`
	RoomCode    string    `json:"roomCode"`
	Winner      string    `json:"winner"`
	Loser       string    `json:"loser"`
	WinnerScore int       `json:"winnerScore"`
	LoserScore  int       `json:"loserScore"`
	BestOf      int       `json:"bestOf"`
	DurationSec int       `json:"duration"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// FinalScore renders the score the way players read it, winner first ("3-1").
func (m MatchRecord) FinalScore() string {
	return fmt.Sprintf("%d-%d", m.WinnerScore, m.LoserScore)
}

func (m MatchRecord) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	case m.Winner == "" || m.Loser == "":
		return fmt.Errorf("%w: missing player name", ErrInvalidRecord)
	case m.WinnerScore < m.LoserScore:
		return fmt.Errorf("%w: winner score below loser score", ErrInvalidRecord)
	}
	return nil
}

type RivalryStats struct {
	Player1      string        `json:"player1"`
	Player2      string        `json:"player2"`
	Player1Wins  int           `json:"player1Wins"`
	Player2Wins  int           `json:"player2Wins"`
	TotalMatches int           `json:"totalMatches"`
	LastPlayed   *time.Time    `json:"lastPlayed,omitempty"`
	Matches      []MatchRecord `json:"matchHistory"`
}

type Store interface {
	// Save archives a record. Saving an already known ID is not an error.
	Save(ctx context.Context, rec MatchRecord) error
	// Rivalry returns head-to-head stats, newest match first.
	Rivalry(ctx context.Context, a, b string) (RivalryStats, error)
	Close() error
}

// RivalryKey orders the pair alphabetically so (a, b) and (b, a) share stats.
func RivalryKey(a, b string) string {
	p := []string{a, b}
	sort.Strings(p)
	return p[0] + "_vs_" + p[1]
}

// buildRivalry folds records (any order) into stats for the ordered pair.
func buildRivalry(a, b string, recs []MatchRecord) RivalryStats {
	p := []string{a, b}
	sort.Strings(p)
	stats := RivalryStats{Player1: p[0], Player2: p[1], Matches: []MatchRecord{}}

	sorted := append([]MatchRecord(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FinishedAt.After(sorted[j].FinishedAt) })

	for _, r := range sorted {
		switch r.Winner {
		case stats.Player1:
			stats.Player1Wins++
		case stats.Player2:
			stats.Player2Wins++
		}
		stats.Matches = append(stats.Matches, r)
	}
	stats.TotalMatches = len(sorted)
	if len(sorted) > 0 {
		last := sorted[0].FinishedAt
		stats.LastPlayed = &last
	}
	return stats
}
