// Package join implements the staged join protocol: the pre-join/
// post-join distinction, self-election, and the promotion rules the
// Dispatcher applies while a node has not yet joined.
package join

import "github.com/cpgdrv/cluster/pkg/cluster/types"

// State is the JoinCoordinator's own state machine. Transitions are
// monotonic: once Joined, there is no return to Pending or SelfElected.
type State uint8

const (
	// Pending: this node has sent its JOIN_REQUEST but has not yet
	// determined whether it is the first node in a fresh partition.
	Pending State = iota
	// SelfElected: the first confchg after entering the group showed
	// every member already had a queued JOIN_REQUEST, so this node will
	// promote itself the next time the Dispatcher pops its own
	// JOIN_REQUEST event, without waiting for an external JOIN_RESPONSE.
	SelfElected
	// Joined: this node has a confirmed membership view and the
	// Dispatcher now processes ordinary events.
	Joined
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case SelfElected:
		return "self-elected"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// Coordinator owns JoinState and the self-election decision for a single
// local node.
type Coordinator struct {
	local types.NodeId
	state State
}

// New returns a Coordinator in the Pending state for the given local
// node id.
func New(local types.NodeId) *Coordinator {
	return &Coordinator{local: local, state: Pending}
}

// State reports the current JoinState.
func (c *Coordinator) State() State {
	return c.state
}

// Joined reports whether this node has completed joining.
func (c *Coordinator) Joined() bool {
	return c.state == Joined
}

// SelfElect marks this node as the sole self-electing node of a fresh
// partition. It is a no-op once the coordinator has left the Pending
// state, preserving "self-election sets self_elect for exactly one node
// per freshly formed partition" even if on_confchg is (incorrectly)
// invoked more than once while still Pending.
func (c *Coordinator) SelfElect() {
	if c.state == Pending {
		c.state = SelfElected
	}
}

// PromoteSelfElected transitions a SelfElected coordinator to Joined
// with an empty membership, used when the Dispatcher pops this node's
// own JOIN_REQUEST event while self-elected. It reports whether the
// promotion applied (false if the coordinator was not in SelfElected
// state, e.g. already Joined or still plain Pending).
func (c *Coordinator) PromoteSelfElected() bool {
	if c.state != SelfElected {
		return false
	}
	c.state = Joined
	return true
}

// PromoteFromResponse transitions to Joined when the Dispatcher pops a
// JOIN_RESPONSE event whose sender is this node, reporting whether the
// sender matched and the coordinator was not already Joined.
func (c *Coordinator) PromoteFromResponse(sender types.NodeId) bool {
	if c.state == Joined {
		return false
	}
	if !sender.Equal(c.local) {
		return false
	}
	c.state = Joined
	return true
}

// Local returns the local node id this coordinator was created for.
func (c *Coordinator) Local() types.NodeId {
	return c.local
}
