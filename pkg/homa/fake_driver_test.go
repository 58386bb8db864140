package homa

import "sync"

// fakeAddr is a trivial Address for unit tests that never actually route
// packets anywhere; only sentPacket recording matters.
type fakeAddr string

func (a fakeAddr) String() string { return string(a) }

// fakeDriver is an in-memory Driver double for exercising scheduler.go,
// transmit.go, and timer.go without a real network, mirroring the teacher
// pack's habit of stubbing narrow collaborator interfaces in unit tests
// rather than standing up a full fake service.
type fakeDriver struct {
	mu      sync.Mutex
	sent    []sentPacket
	mtu     int
	highest int
	local   string
}

type sentPacket struct {
	To       Address
	Opcode   Opcode
	Priority int
	Packet   []byte
}

func newFakeDriver(local string, mtu, highest int) *fakeDriver {
	return &fakeDriver{mtu: mtu, highest: highest, local: local}
}

func (d *fakeDriver) Send(address Address, packet []byte, priority int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentPacket{To: address, Opcode: Opcode(packet[0]), Priority: priority, Packet: append([]byte(nil), packet...)})
	return nil
}

func (d *fakeDriver) Receive() ([]Received, error) { return nil, nil }

func (d *fakeDriver) ResolveAddress(locator string) (Address, error) {
	return fakeAddr(locator), nil
}

func (d *fakeDriver) RegisterMemory(base []byte) error { return nil }

func (d *fakeDriver) MaxDataPerPacket() int { return d.mtu }

func (d *fakeDriver) HighestAvailablePriority() int { return d.highest }

func (d *fakeDriver) ServiceLocator() string { return d.local }

func (d *fakeDriver) packetsWithOpcode(op Opcode) []sentPacket {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []sentPacket
	for _, p := range d.sent {
		if p.Opcode == op {
			out = append(out, p)
		}
	}
	return out
}

func fixedClock(now Cycles) Clock {
	return func() Cycles { return now }
}
