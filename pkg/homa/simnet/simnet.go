// Package simnet is an in-process homa.Driver used for tests and the
// homaecho demo: it moves packets over Go channels instead of real
// sockets, applying configurable latency, independent per-packet loss,
// and a shared bandwidth cap, in place of a NIC.
package simnet

import (
	"context"
	"math/rand"
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/skycoin/homatransport/pkg/homa"
)

// Addr identifies a Network endpoint by name.
type Addr struct {
	name string
}

// String implements homa.Address.
func (a Addr) String() string { return a.name }

// Network is a shared medium a set of Drivers register onto, analogous to
// a LAN segment. It schedules every packet's delivery itself (one
// time.AfterFunc per packet) so that latency and loss are applied
// uniformly regardless of which Driver sent a packet.
type Network struct {
	mu       sync.Mutex
	nodes    map[string]*Driver
	latency  time.Duration
	jitter   time.Duration
	lossProb float64
	rng      *rand.Rand
}

// NewNetwork constructs a Network with the given one-way latency (plus up
// to jitter of additional random delay) and independent per-packet loss
// probability in [0, 1).
func NewNetwork(latency, jitter time.Duration, lossProb float64) *Network {
	return &Network{
		nodes:    make(map[string]*Driver),
		latency:  latency,
		jitter:   jitter,
		lossProb: lossProb,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// NewDriver attaches a new Driver named name to the network, with its send
// bandwidth capped at bytesPerSecond (via golang.org/x/time/rate, the same
// limiter the teacher pack uses for outbound throttling).
func (n *Network) NewDriver(name string, mtu int, highestPriority int, bytesPerSecond float64) *Driver {
	n.mu.Lock()
	defer n.mu.Unlock()
	d := &Driver{
		network:  n,
		self:     Addr{name: name},
		mtu:      mtu,
		highest:  highestPriority,
		inbox:    make(chan homa.Received, 256),
		limiter:  rate.NewLimiter(rate.Limit(bytesPerSecond), mtu*4),
		memory:   make(map[uintptr][]byte),
	}
	n.nodes[name] = d
	return d
}

func (n *Network) deliver(from, to Addr, opcode homa.Opcode, header, payload []byte) {
	n.mu.Lock()
	dst, ok := n.nodes[to.name]
	dropRoll := n.rng.Float64()
	delay := n.latency
	if n.jitter > 0 {
		delay += time.Duration(n.rng.Int63n(int64(n.jitter)))
	}
	n.mu.Unlock()
	if !ok || dropRoll < n.lossProb {
		return
	}
	time.AfterFunc(delay, func() {
		select {
		case dst.inbox <- homa.Received{Address: from, Opcode: opcode, Header: header, Payload: payload}:
		default:
			// Receiver's inbox is full: drop, same as an overrun NIC ring
			// buffer would. Homa's loss-recovery timers cover this.
		}
	})
}

// Driver is a Network-attached homa.Driver.
type Driver struct {
	network *Network
	self    Addr
	mtu     int
	highest int

	inbox   chan homa.Received
	limiter *rate.Limiter

	memMu  sync.Mutex
	memory map[uintptr][]byte
}

// Send implements homa.Driver.
func (d *Driver) Send(address homa.Address, packet []byte, priority int) error {
	to, ok := address.(Addr)
	if !ok {
		return errors.Errorf("simnet: address %v is not a simnet.Addr", address)
	}
	if err := d.limiter.WaitN(context.Background(), len(packet)); err != nil {
		return errors.Wrap(err, "simnet: bandwidth limiter")
	}
	if len(packet) == 0 {
		return errors.New("simnet: empty packet")
	}
	opcode := homa.Opcode(packet[0])
	header, payload := splitHeader(opcode, packet)
	d.network.deliver(d.self, to, opcode, header, payload)
	return nil
}

// splitHeader separates the fixed-size header from the variable-length
// payload for opcodes that carry one; the header sizes here mirror
// pkg/homa/packet.go's Encode layouts exactly.
func splitHeader(opcode homa.Opcode, packet []byte) (header, payload []byte) {
	const common = homa.CommonHeaderSize
	switch opcode {
	case homa.OpAllData:
		n := common + 2
		if len(packet) < n {
			return packet, nil
		}
		return packet[:n], packet[n:]
	case homa.OpData:
		n := common + 12
		if len(packet) < n {
			return packet, nil
		}
		return packet[:n], packet[n:]
	default:
		return packet, nil
	}
}

// Receive implements homa.Driver.
func (d *Driver) Receive() ([]homa.Received, error) {
	var out []homa.Received
	for {
		select {
		case r := <-d.inbox:
			out = append(out, r)
		default:
			return out, nil
		}
	}
}

// ResolveAddress implements homa.Driver: locators are node names.
func (d *Driver) ResolveAddress(locator string) (homa.Address, error) {
	d.network.mu.Lock()
	defer d.network.mu.Unlock()
	if _, ok := d.network.nodes[locator]; !ok {
		return nil, errors.Errorf("simnet: no node named %q", locator)
	}
	return Addr{name: locator}, nil
}

// RegisterMemory implements homa.Driver. simnet never steals buffers
// across a real memory-registration boundary, so this only records the
// base pointer for bookkeeping/diagnostics.
func (d *Driver) RegisterMemory(base []byte) error {
	if len(base) == 0 {
		return nil
	}
	d.memMu.Lock()
	defer d.memMu.Unlock()
	d.memory[uintptrOf(base)] = base
	return nil
}

// MaxDataPerPacket implements homa.Driver.
func (d *Driver) MaxDataPerPacket() int { return d.mtu }

// HighestAvailablePriority implements homa.Driver.
func (d *Driver) HighestAvailablePriority() int { return d.highest }

// ServiceLocator implements homa.Driver.
func (d *Driver) ServiceLocator() string { return d.self.name }

func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
