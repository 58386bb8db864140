package homa

import "fmt"

// RpcId uniquely identifies an RPC across the cluster. ClientID
// distinguishes the initiating peer; Sequence is monotonically increasing
// per client.
type RpcId struct {
	ClientID uint64
	Sequence uint64
}

// Less orders RpcIds lexicographically by (ClientID, Sequence). Used as the
// deterministic tie-break in ScheduledMessage.CompareTo when two messages
// have equal BytesRemaining (spec.md Open Question #1).
func (id RpcId) Less(other RpcId) bool {
	if id.ClientID != other.ClientID {
		return id.ClientID < other.ClientID
	}
	return id.Sequence < other.Sequence
}

func (id RpcId) String() string {
	return fmt.Sprintf("%d.%d", id.ClientID, id.Sequence)
}
