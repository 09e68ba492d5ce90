package consensus

// Opinion is a node's binary belief about a block: accept or reject.
type Opinion int

// The two possible opinions.
const (
	Reject Opinion = 0
	Accept Opinion = 1
)

// String implements the fmt.Stringer interface for logging.
func (o Opinion) String() string {
	if o == Accept {
		return "accept"
	}
	return "reject"
}

// =============================================================================

// State tracks one node's progress through the consensus phases for a
// single block. A State is owned exclusively by one node and is only read
// or written under that node's lock.
type State struct {
	Preference       Opinion // Current binary opinion.
	ConsecutiveCount int     // Rounds the sampled majority matched Preference without interruption.
	Tally            [2]int  // Lifetime counts of strong samples favoring reject [0] and accept [1].
	Confidence       int     // Rounds processed since snowball tracking began.
	Finalized        bool    // Terminal flag. Once set, Preference is immutable.
}
