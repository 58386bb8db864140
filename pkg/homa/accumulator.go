package homa

// messageFragment describes one out-of-order chunk of an incoming message
// that cannot yet be appended to MessageAccumulator.buffer because a
// preceding byte range has not arrived. Modeled as owned bytes rather than
// the C++ original's Borrowed(driverHandle)|Owned(bytes) variant: whether
// the bytes were zero-copy-stolen from the driver or freshly copied is
// decided once, in retain, and is invisible past that point (see
// SPEC_FULL.md section 4.2 / spec.md section 9).
type messageFragment struct {
	data []byte
}

// MessageAccumulator reassembles a multi-packet inbound message into a
// contiguous logical buffer. It is used for both request messages on the
// server and response messages on the client; single-packet (ALL_DATA)
// messages never allocate one.
type MessageAccumulator struct {
	buffer      []byte
	fragments   map[uint32]messageFragment
	TotalLength uint32

	zeroCopyThreshold uint32
	zeroCopyBytes     uint32
}

// NewMessageAccumulator creates an accumulator for a message of the given
// total length. zeroCopyThreshold is Config.MessageZeroCopyThreshold.
func NewMessageAccumulator(totalLength uint32, zeroCopyThreshold uint32) *MessageAccumulator {
	return &MessageAccumulator{
		buffer:            make([]byte, 0, min32(totalLength, 4096)),
		fragments:         make(map[uint32]messageFragment),
		TotalLength:       totalLength,
		zeroCopyThreshold: zeroCopyThreshold,
	}
}

// Size returns the number of contiguous bytes received so far, i.e. the
// offset of the lowest missing byte.
func (a *MessageAccumulator) Size() uint32 { return uint32(len(a.buffer)) }

// Buffer returns the contiguous prefix received so far. Only valid to read
// once Size() == TotalLength.
func (a *MessageAccumulator) Buffer() []byte { return a.buffer }

// Complete reports whether the entire message has been received.
func (a *MessageAccumulator) Complete() bool { return a.Size() == a.TotalLength }

// retain decides whether to keep payload zero-copy (by calling steal, which
// transfers ownership of the driver's buffer to us) or to copy it into
// freshly allocated memory, per the messageZeroCopyThreshold cap described
// in spec.md section 5: beyond the cap we copy rather than steal, so a
// stalled message cannot pin an unbounded number of driver buffers.
func (a *MessageAccumulator) retain(payload []byte, steal func() []byte) []byte {
	if steal != nil && a.zeroCopyBytes+uint32(len(payload)) <= a.zeroCopyThreshold {
		data := steal()
		a.zeroCopyBytes += uint32(len(data))
		return data
	}
	owned := make([]byte, len(payload))
	copy(owned, payload)
	return owned
}

// AddPacket absorbs one DATA/ALL_DATA fragment. It returns true iff this
// call advanced Size() (spec.md section 4.2): a false return means either a
// duplicate or an out-of-order fragment that is now buffered awaiting its
// predecessor.
func (a *MessageAccumulator) AddPacket(offset uint32, payload []byte, steal func() []byte) bool {
	size := a.Size()
	switch {
	case offset < size:
		// Duplicate of already-consumed data: drop without retaining.
		return false

	case offset == size:
		data := a.retain(payload, steal)
		a.buffer = append(a.buffer, data...)
		for {
			key := a.Size()
			frag, ok := a.fragments[key]
			if !ok {
				break
			}
			delete(a.fragments, key)
			a.buffer = append(a.buffer, frag.data...)
		}
		return true

	default: // offset > size
		if _, exists := a.fragments[offset]; exists {
			return false // duplicate out-of-order fragment
		}
		data := a.retain(payload, steal)
		a.fragments[offset] = messageFragment{data: data}
		return false
	}
}

// RetransmitRange computes the byte range a RESEND should ask for, per
// spec.md section 4.2: the lowest missing byte through
// min(grantOffset, size()+resendLimit). Returns length == 0 if there is
// nothing to (re)request.
func (a *MessageAccumulator) RetransmitRange(grantOffset, resendLimit uint32) (offset, length uint32) {
	offset = a.Size()
	end := grantOffset
	if offset+resendLimit < end {
		end = offset + resendLimit
	}
	if end < offset {
		end = offset
	}
	return offset, end - offset
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
