package main

import (
	"encoding/json"
)

// Winner is the result of a round: either a single username or the set of
// tied usernames. It marshals as a bare string or a list, matching the
// roundWinner payload clients expect.
type Winner struct {
	Single string
	Tied   []string
}

func (w Winner) MarshalJSON() ([]byte, error) {
	if w.Single != "" {
		return json.Marshal(w.Single)
	}

	return json.Marshal(w.Tied)
}

// tallyVotes counts each voted username and returns the one with the most
// votes, or the tied set. Callers never pass an empty map; the zero-votes
// case is handled separately by declaring all current members tied.
func tallyVotes(votes map[string]string) Winner {
	counts := make(map[string]int, len(votes))
	for _, voted := range votes {
		counts[voted]++
	}

	var winners []string
	maxVotes := 0

	for user, n := range counts {
		switch {
		case n > maxVotes:
			maxVotes = n
			winners = []string{user}
		case n == maxVotes:
			winners = append(winners, user)
		}
	}

	if len(winners) == 1 {
		return Winner{Single: winners[0]}
	}

	return Winner{Tied: winners}
}
