package acds

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRingOrdersAndWraps(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	c := uuid.MustParse("00000000-0000-0000-0000-000000000003")

	ring := NewRing([]uuid.UUID{c, a}, b)
	require.Equal(t, []uuid.UUID{a, b, c}, ring.Members())

	pos, ok := ring.Position(b)
	require.True(t, ok)
	require.Equal(t, 1, pos)

	leader, ok := ring.Leader()
	require.True(t, ok)
	require.Equal(t, c, leader)

	succ, ok := ring.Successor(c)
	require.True(t, ok)
	require.Equal(t, a, succ)

	pred, ok := ring.Predecessor(a)
	require.True(t, ok)
	require.Equal(t, c, pred)
}

func TestRingUnknownMember(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	ring := NewRing(nil, a)

	_, ok := ring.Position(uuid.New())
	require.False(t, ok)
}
