package types

import "fmt"

// MaxNodes bounds the size of a Membership, mirroring the fixed
// SD_MAX_NODES array the original driver carried.
const MaxNodes = 256

// NodeId identifies a process instance inside the group. It is the pair
// (transport-assigned numeric id, process identifier); both halves are
// stable for the life of the process and together form the originator
// key used on every event and envelope.
type NodeId struct {
	ID  uint32
	PID uint32
}

// Equal reports whether two NodeIds name the same process instance.
func (n NodeId) Equal(o NodeId) bool {
	return n.ID == o.ID && n.PID == o.PID
}

func (n NodeId) String() string {
	return fmt.Sprintf("%d/%d", n.ID, n.PID)
}

// NodeDescriptor is the opaque upper-layer identity (address, role
// flags, ...) attached to a NodeId once the node participates. The core
// never interprets it.
type NodeDescriptor []byte

// ClusterNode is a NodeId paired with its NodeDescriptor and the `gone`
// mark used to depose a dead master before its LEAVE has been dispatched.
type ClusterNode struct {
	Id         NodeId
	Descriptor NodeDescriptor

	// Gone is set the instant a node holding mastership is observed to
	// have left (via on_confchg or a LEAVE envelope), before the LEAVE
	// event itself works its way through the EventQueue. This is the
	// two-phase deposition: mastership visibility changes instantly,
	// membership structure changes only when the LEAVE is dispatched.
	Gone bool
}
