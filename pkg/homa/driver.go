package homa

// Address is an opaque, driver-resolved network address. Drivers are free
// to embed whatever addressing scheme (UDP socket, InfiniBand QP, ...) they
// need; the core only ever compares addresses for equality and formats them
// for logging.
type Address interface {
	String() string
}

// Received describes one packet handed back by Driver.Receive. Payload is
// the packet's bytes after CommonHeader (and after any opcode-specific
// extra fields the caller has already decoded). Steal transfers ownership
// of the backing storage of Payload to the caller (the accumulator uses
// this to avoid copying message bytes); a Received that is not Stolen is
// implicitly released back to the driver's buffer pool once handlePacket
// returns.
type Received struct {
	Address Address
	Opcode  Opcode
	Header  []byte // encoded header: CommonHeader plus opcode-specific fields
	Payload []byte
	Steal   func() []byte
}

// Driver is the packet I/O collaborator the Homa transport core delegates
// to. It is deliberately narrow: address resolution, non-blocking
// send/receive, priority selection, zero-copy buffer stealing, and MTU
// discovery are all a real driver (DMA, UDP, InfiniBand) needs to expose.
// Driver methods are called from Transport.Poll and from the Transport
// methods that resolve a session's address or send an ABORT, all with the
// Transport's mutex held; GetServiceLocator and RegisterMemory pass through
// to the driver without it.
type Driver interface {
	// Send transmits one packet to address at the given priority
	// (0..HighestAvailablePriority). packet is the fully encoded wire
	// packet (header + payload).
	Send(address Address, packet []byte, priority int) error

	// Receive returns any packets currently available without blocking.
	// An empty, nil-error result means "nothing to do this tick".
	Receive() ([]Received, error)

	// ResolveAddress turns a driver-specific locator string (e.g.
	// "udp:host:port") into an Address usable with Send.
	ResolveAddress(locator string) (Address, error)

	// RegisterMemory is a passthrough for RDMA-capable drivers that need
	// to pin application-supplied buffers before they can be used for
	// zero-copy sends.
	RegisterMemory(base []byte) error

	// MaxDataPerPacket is the maximum number of message-data bytes that
	// fit in one DATA/ALL_DATA packet after headers.
	MaxDataPerPacket() int

	// HighestAvailablePriority is the top of the priority range
	// [0..HighestAvailablePriority] this driver's underlying fabric
	// supports.
	HighestAvailablePriority() int

	// ServiceLocator identifies this driver's local endpoint, for
	// diagnostics and Transport.ServiceLocator.
	ServiceLocator() string
}
