package homa

import "math"

// Cycles is an abstract monotonic timestamp, analogous to the original
// implementation's Cycles::rdtsc() ticks. The unit is left to the caller
// (wall-clock nanoseconds work fine); only relative comparisons matter to
// the core.
type Cycles uint64

// Clock returns the current time as Cycles — the Go-idiomatic rendition of
// the original's mockable Cycles::rdtsc static (see SPEC_FULL.md section
// 5). NewTransport stores it, but the core reads the time only from the
// now argument of Transport.Poll, which is how tests drive time explicitly.
type Clock func() Cycles

// Config carries every tunable spec.md section 6 names. DefaultConfig
// fills every field; NewTransport uses a Config as given and does not
// replace zero-valued fields.
type Config struct {
	// RoundTripBytes: initial unscheduled allowance per message and the
	// receiver's grant window.
	RoundTripBytes uint32

	// GrantIncrement: bytes added to grantOffset per GRANT. Defaults to
	// RoundTripBytes per spec.md section 9's stated safe default.
	GrantIncrement uint32

	// MaxGrantedMessages (D): overcommitment degree. DefaultConfig's
	// heuristic scales it with NumSchedPrio.
	MaxGrantedMessages uint32

	// MessageZeroCopyThreshold: max bytes of a message kept zero-copy
	// before the accumulator starts copying fragments out immediately.
	MessageZeroCopyThreshold uint32

	// SmallMessageThreshold: messages at or below this size are kept out
	// of the SRPT top-K list; tryToTransmitData's full scan finds them, and
	// they go out from Poll like any other message, one DATA packet per
	// call. SendRequest and the respond callback do not send them inline.
	SmallMessageThreshold uint32

	// HighestAvailablePriority mirrors Driver.HighestAvailablePriority;
	// duplicated here so priority-policy helpers do not need the driver.
	HighestAvailablePriority int

	// NumSchedPrio: number of priority levels reserved for scheduled
	// traffic; the remainder (HighestAvailablePriority+1-NumSchedPrio)
	// is available for unscheduled traffic.
	NumSchedPrio int

	// UnschedPrioCutoffs: size brackets for unscheduled priority
	// selection, monotone increasing, sentinel math.MaxUint32 last.
	UnschedPrioCutoffs []uint32

	// TimeoutIntervals: consecutive silent timer ticks before an RPC is
	// aborted.
	TimeoutIntervals uint32

	// PingIntervals: consecutive silent timer ticks before a RESEND/BUSY
	// probe is sent.
	PingIntervals uint32

	// TimerInterval: minimum spacing, in Cycles, between checkTimeouts
	// invocations.
	TimerInterval Cycles

	// ResendLimit bounds how many bytes a single RESEND asks for, so a
	// huge gap does not generate an unbounded retransmission burst.
	ResendLimit uint32
}

// DefaultConfig returns a Config with every field populated by the
// heuristics spec.md section 6 describes. Callers typically start here and
// override individual fields.
func DefaultConfig(highestAvailPriority int) Config {
	c := Config{
		RoundTripBytes:           10000,
		MessageZeroCopyThreshold: 500000,
		SmallMessageThreshold:    1000,
		HighestAvailablePriority: highestAvailPriority,
		TimeoutIntervals:         6,
		PingIntervals:            3,
		TimerInterval:            Cycles(2000000), // ~2ms of 1GHz-equivalent ticks
		ResendLimit:              10000,
	}
	c.GrantIncrement = c.RoundTripBytes
	c.NumSchedPrio = numSchedPrioDefault(highestAvailPriority)
	c.MaxGrantedMessages = overcommitmentDegreeDefault(c.NumSchedPrio)
	c.UnschedPrioCutoffs = defaultUnschedPrioCutoffs(highestAvailPriority - c.NumSchedPrio + 1)
	return c
}

// numSchedPrioDefault reserves roughly half the available priorities for
// scheduled traffic, at least one and at most highestAvailPriority+1,
// matching the original implementation's getUnschedPriorities heuristic.
func numSchedPrioDefault(highestAvailPriority int) int {
	total := highestAvailPriority + 1
	if total <= 1 {
		return total
	}
	n := total / 2
	if n < 1 {
		n = 1
	}
	return n
}

// overcommitmentDegreeDefault scales the grant-engine's overcommitment
// degree with the number of scheduled priorities available, per spec.md
// section 6 ("default heuristic scales with numSchedPrio").
func overcommitmentDegreeDefault(numSchedPrio int) uint32 {
	if numSchedPrio < 1 {
		numSchedPrio = 1
	}
	return uint32(numSchedPrio)
}

// defaultUnschedPrioCutoffs builds an evenly-spaced cutoff vector with
// numUnschedPrio brackets and a math.MaxUint32 sentinel, per spec.md
// section 4.5.
func defaultUnschedPrioCutoffs(numUnschedPrio int) []uint32 {
	if numUnschedPrio < 1 {
		numUnschedPrio = 1
	}
	cutoffs := make([]uint32, numUnschedPrio)
	step := uint32(1400) // ~ one MTU per bracket by default
	for i := 0; i < numUnschedPrio-1; i++ {
		cutoffs[i] = step * uint32(i+1)
	}
	cutoffs[numUnschedPrio-1] = math.MaxUint32
	return cutoffs
}

// lowestUnschedPrio and highestSchedPriority implement spec.md section 4.5:
// the two bands [0, highestSchedPriority] and [lowestUnschedPrio,
// HighestAvailablePriority] are disjoint, collapsing to a single priority
// when only one is available.
func (c Config) highestSchedPriority() int {
	return c.NumSchedPrio - 1
}

func (c Config) lowestUnschedPrio() int {
	if c.HighestAvailablePriority < 1 {
		return 0
	}
	return c.highestSchedPriority() + 1
}

// unschedPriorityFor returns the packet priority to use for the
// unscheduled portion of a message of size messageSize, per spec.md
// section 4.5: the smallest cutoff bracket that fits messageSize maps to
// HighestAvailablePriority - i.
func (c Config) unschedPriorityFor(messageSize uint32) int {
	i := 0
	for ; i < len(c.UnschedPrioCutoffs); i++ {
		if c.UnschedPrioCutoffs[i] >= messageSize {
			break
		}
	}
	prio := c.HighestAvailablePriority - i
	if prio < c.lowestUnschedPrio() {
		prio = c.lowestUnschedPrio()
	}
	return prio
}
