package dispatch

import "github.com/cpgdrv/cluster/pkg/cluster/types"

// Callbacks is the set of upward handlers the daemon core must supply
// (SPEC_FULL.md §6). It replaces the original table-of-function-pointers
// cluster-driver registration with a plain Go interface.
type Callbacks interface {
	// CheckJoin is the master-side admission decision for a joining
	// sender carrying opaque payload. Invoked at most once per
	// JOIN_REQUEST instance.
	CheckJoin(sender types.NodeId, payload []byte) types.JoinResult

	// JoinHandler fires once a JOIN_RESPONSE is dispatched, regardless
	// of result (including FAIL).
	JoinHandler(sender types.NodeId, membership []types.ClusterNode, result types.JoinResult, payload []byte)

	// LeaveHandler fires once a LEAVE is dispatched for sender.
	LeaveHandler(sender types.NodeId, membership []types.ClusterNode)

	// BlockHandler fires when a BLOCK event for sender is first
	// serviced; returning true requests a global pause until the
	// matching UNBLOCK arrives.
	BlockHandler(sender types.NodeId) bool

	// NotifyHandler fires for every dispatched NOTIFY (including the
	// implicit NOTIFY an UNBLOCK carries).
	NotifyHandler(sender types.NodeId, payload []byte)
}
