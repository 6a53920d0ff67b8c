package nat

// Ordering is the three-way result of CompareQuality: Greater means
// mine outranks theirs as the future host.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// bandwidthOverrideRatio is the multiple at which one side's upload
// bandwidth wins regardless of tier.
const bandwidthOverrideRatio = 10

// CompareQuality ranks mine against theirs for future-host election:
// bandwidth override first, then tier, then upload bandwidth, then
// ACDS RTT, then the initiator flag.
func CompareQuality(mine, theirs Quality, weInitiated bool) Ordering {
	if mine.UploadBps >= theirs.UploadBps*bandwidthOverrideRatio && theirs.UploadBps > 0 {
		return Greater
	}
	if theirs.UploadBps >= mine.UploadBps*bandwidthOverrideRatio && mine.UploadBps > 0 {
		return Less
	}

	if mine.Tier != theirs.Tier {
		if mine.Tier < theirs.Tier {
			return Greater
		}
		return Less
	}

	if mine.UploadBps != theirs.UploadBps {
		if mine.UploadBps > theirs.UploadBps {
			return Greater
		}
		return Less
	}

	if mine.ACDSRTT != theirs.ACDSRTT {
		if mine.ACDSRTT < theirs.ACDSRTT {
			return Greater
		}
		return Less
	}

	if weInitiated {
		return Greater
	}
	return Less
}
