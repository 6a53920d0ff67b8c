package nat

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCompareQualityTenfoldUploadWinsAtEqualTier(t *testing.T) {
	a := Quality{Tier: 1, UploadBps: 100e6}
	c := Quality{Tier: 1, UploadBps: 10e6}
	require.Equal(t, Greater, CompareQuality(a, c, false))
	require.Equal(t, Less, CompareQuality(c, a, false))
}

func TestCompareQualityBandwidthOverride(t *testing.T) {
	low := Quality{Tier: 0, UploadBps: 1e6}
	high := Quality{Tier: 4, UploadBps: 20e6}
	require.Equal(t, Greater, CompareQuality(high, low, false))
}

func TestCompareQualityInitiatorTiebreak(t *testing.T) {
	mine := Quality{Tier: 2, UploadBps: 10e6, ACDSRTT: 50 * time.Millisecond}
	theirs := Quality{Tier: 2, UploadBps: 10e6, ACDSRTT: 50 * time.Millisecond}
	require.Equal(t, Greater, CompareQuality(mine, theirs, true))
	require.Equal(t, Less, CompareQuality(mine, theirs, false))
}

func TestElectFutureHostWorkedExample(t *testing.T) {
	idA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	idC := uuid.MustParse("00000000-0000-0000-0000-00000000000c")

	qualities := []Quality{
		{Tier: 1, UploadBps: 100e6}, // A
		{Tier: 2, UploadBps: 50e6},  // B
		{Tier: 1, UploadBps: 10e6},  // C
	}
	ids := []uuid.UUID{idA, idB, idC}

	winner, err := ElectFutureHost(qualities, ids)
	require.NoError(t, err)
	require.Equal(t, idA, winner)
}

func TestElectFutureHostDeterministicUnderPermutation(t *testing.T) {
	idA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	idC := uuid.MustParse("00000000-0000-0000-0000-00000000000c")

	qualities := []Quality{{Tier: 1, UploadBps: 100e6}, {Tier: 2, UploadBps: 50e6}, {Tier: 1, UploadBps: 10e6}}
	ids := []uuid.UUID{idA, idB, idC}
	winner1, err := ElectFutureHost(qualities, ids)
	require.NoError(t, err)

	permQualities := []Quality{qualities[2], qualities[0], qualities[1]}
	permIDs := []uuid.UUID{ids[2], ids[0], ids[1]}
	winner2, err := ElectFutureHost(permQualities, permIDs)
	require.NoError(t, err)

	require.Equal(t, winner1, winner2)
}

func TestElectFutureHostSingleCandidate(t *testing.T) {
	id := uuid.New()
	winner, err := ElectFutureHost([]Quality{{Tier: 4}}, []uuid.UUID{id})
	require.NoError(t, err)
	require.Equal(t, id, winner)
}

func TestElectFutureHostTieBreaksByUUID(t *testing.T) {
	idLow := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	idHigh := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

	qualities := []Quality{{Tier: 2, UploadBps: 10e6}, {Tier: 2, UploadBps: 10e6}}
	winner, err := ElectFutureHost(qualities, []uuid.UUID{idHigh, idLow})
	require.NoError(t, err)
	require.Equal(t, idLow, winner)
}

func TestComputeTierPrecedence(t *testing.T) {
	q := &Quality{LANReachable: true, PublicIP: true, UPnPAvailable: true, NATType: TypeSymmetric}
	q.computeTier()
	require.Equal(t, 0, q.Tier)

	q = &Quality{PublicIP: true, UPnPAvailable: true, NATType: TypeSymmetric}
	q.computeTier()
	require.Equal(t, 1, q.Tier)

	q = &Quality{UPnPAvailable: true, NATType: TypeSymmetric}
	q.computeTier()
	require.Equal(t, 2, q.Tier)

	q = &Quality{NATType: TypeRestricted}
	q.computeTier()
	require.Equal(t, 3, q.Tier)

	q = &Quality{NATType: TypeSymmetric}
	q.computeTier()
	require.Equal(t, 4, q.Tier)
}

func TestIsPrivateIPRanges(t *testing.T) {
	require.True(t, isPrivateIP(net.ParseIP("10.1.2.3")))
	require.True(t, isPrivateIP(net.ParseIP("192.168.1.1")))
	require.False(t, isPrivateIP(net.ParseIP("8.8.8.8")))
}
