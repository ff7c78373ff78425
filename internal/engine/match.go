package engine

import (
	"fmt"
	"time"
)

type BestOf int

const (
	BestOf3 BestOf = 3
	BestOf5 BestOf = 5
)

// MinMargin is the score gap required to close a match once BestOf rounds were played.
const MinMargin = 2

// ParseBestOf maps a requested mode to a BestOf. Zero means "not specified" and falls back to 3.
func ParseBestOf(n int) (BestOf, error) {
	switch n {
	case 0, 3:
		return BestOf3, nil
	case 5:
		return BestOf5, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidBestOf, n)
	}
}

type Progress struct {
	Over   bool
	Winner Side
}

// MatchProgress evaluates the best-of-with-margin rule after `round` has been scored.
// A match can run past bestOf rounds while the margin is not met.
func MatchProgress(round int, bestOf BestOf, score1, score2 int) Progress {
	diff := score1 - score2
	if diff < 0 {
		diff = -diff
	}
	if round < int(bestOf) || diff < MinMargin {
		return Progress{}
	}
	winner := Side1
	if score2 > score1 {
		winner = Side2
	}
	return Progress{Over: true, Winner: winner}
}

// MatchDuration returns whole seconds elapsed since startedAt.
func MatchDuration(startedAt, now time.Time) int {
	if now.Before(startedAt) {
		return 0
	}
	return int(now.Sub(startedAt) / time.Second)
}
