package nat

import (
	"errors"

	"github.com/google/uuid"
)

// ErrMismatchedInputs is returned when qualities and ids have
// different lengths.
var ErrMismatchedInputs = errors.New("nat: qualities and ids must be the same length")

// ElectFutureHost picks the candidate best suited to become the next
// host: each candidate is compared pairwise against every other
// candidate with we_initiated=false (so
// the result is symmetric and the outcome does not depend on input
// order), and the candidate with the most wins is elected. Ties are
// broken by lexicographically smallest UUID. A single candidate is
// chosen unconditionally.
func ElectFutureHost(qualities []Quality, ids []uuid.UUID) (uuid.UUID, error) {
	if len(qualities) != len(ids) {
		return uuid.Nil, ErrMismatchedInputs
	}
	if len(ids) == 0 {
		return uuid.Nil, errors.New("nat: no candidates")
	}
	if len(ids) == 1 {
		return ids[0], nil
	}

	wins := make([]int, len(ids))
	for i := range ids {
		for j := range ids {
			if i == j {
				continue
			}
			if CompareQuality(qualities[i], qualities[j], false) == Greater {
				wins[i]++
			}
		}
	}

	best := 0
	for i := 1; i < len(ids); i++ {
		if wins[i] > wins[best] || (wins[i] == wins[best] && ids[i].String() < ids[best].String()) {
			best = i
		}
	}
	return ids[best], nil
}
