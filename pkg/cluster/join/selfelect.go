package join

import (
	"github.com/cpgdrv/cluster/pkg/cluster/queue"
	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// EveryMemberHasJoinRequest reports whether q already holds a
// (possibly still-incomplete) JOIN_REQUEST event for every id in
// members. Total-order delivery guarantees at most one node observes
// this true on the first confchg after a fresh partition forms, which is
// what makes self-election safe without a tie-break round.
func EveryMemberHasJoinRequest(q *queue.EventQueue, members []types.NodeId) bool {
	for _, id := range members {
		if q.Find(types.EventJoinRequest, id) == nil {
			return false
		}
	}
	return true
}
