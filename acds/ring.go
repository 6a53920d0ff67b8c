package acds

import (
	"sort"

	"github.com/google/uuid"
)

// MaxRingSize bounds the ring topology to 64 members. It is larger than
// the registry's per-session MaxParticipantsCeiling.
const MaxRingSize = 64

// Ring is the lexicographically sorted view of a session's participant
// UUIDs used for ring-topology overlays: each participant's position,
// predecessor, and successor fall out of its index in this slice, and
// the last entry is the ring's leader.
type Ring struct {
	members []uuid.UUID
}

// NewRing builds a Ring from a session's participant UUIDs plus the
// local participant, sorted lexicographically by string form. members
// beyond MaxRingSize are dropped, keeping the lowest UUIDs.
func NewRing(participants []uuid.UUID, local uuid.UUID) Ring {
	all := make([]uuid.UUID, 0, len(participants)+1)
	all = append(all, participants...)
	all = append(all, local)

	sort.Slice(all, func(i, j int) bool {
		return all[i].String() < all[j].String()
	})

	if len(all) > MaxRingSize {
		all = all[:MaxRingSize]
	}
	return Ring{members: all}
}

// Position returns id's index in the ring and whether it's present.
func (r Ring) Position(id uuid.UUID) (int, bool) {
	for i, m := range r.members {
		if m == id {
			return i, true
		}
	}
	return -1, false
}

// Predecessor returns the ring member immediately before id, wrapping
// around from position 0 to the leader.
func (r Ring) Predecessor(id uuid.UUID) (uuid.UUID, bool) {
	pos, ok := r.Position(id)
	if !ok || len(r.members) == 0 {
		return uuid.Nil, false
	}
	prev := (pos - 1 + len(r.members)) % len(r.members)
	return r.members[prev], true
}

// Successor returns the ring member immediately after id, wrapping
// around from the leader back to position 0.
func (r Ring) Successor(id uuid.UUID) (uuid.UUID, bool) {
	pos, ok := r.Position(id)
	if !ok || len(r.members) == 0 {
		return uuid.Nil, false
	}
	next := (pos + 1) % len(r.members)
	return r.members[next], true
}

// Leader is the last position in the ring.
func (r Ring) Leader() (uuid.UUID, bool) {
	if len(r.members) == 0 {
		return uuid.Nil, false
	}
	return r.members[len(r.members)-1], true
}

// Members returns the ring's sorted participant list.
func (r Ring) Members() []uuid.UUID {
	return r.members
}
