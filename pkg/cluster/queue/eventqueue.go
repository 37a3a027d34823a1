// Package queue implements the pair of FIFOs the Dispatcher drains: one
// for BLOCK events and one for everything else. It mirrors the teacher's
// rqueue/PreviousSet role in go-mcast/pkg/mcast/core: a small, explicit
// ordered structure owned and mutated only by the single dispatch loop.
package queue

import (
	"container/list"
	"errors"

	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// ErrMissingJoinSkeleton is returned when an envelope tries to complete
// a JOIN_REQUEST or morph it into a JOIN_RESPONSE but no skeleton event
// exists for that sender. Under ordered delivery this should not occur;
// callers treat it as an invariant violation to diagnose, not a case to
// silently swallow (see SPEC_FULL.md §9).
var ErrMissingJoinSkeleton = errors.New("queue: no JOIN_REQUEST skeleton for sender")

// EventQueue holds the blocking and non-blocking FIFOs plus the
// (kind, sender) lookup the Dispatcher and ingestion paths need.
type EventQueue struct {
	blocking    *list.List
	nonBlocking *list.List
}

// New returns an empty EventQueue.
func New() *EventQueue {
	return &EventQueue{
		blocking:    list.New(),
		nonBlocking: list.New(),
	}
}

func (q *EventQueue) fifoFor(kind types.EventKind) *list.List {
	if kind == types.EventBlock {
		return q.blocking
	}
	return q.nonBlocking
}

// Find returns the first event of the given kind from the given sender,
// in FIFO order, or nil.
func (q *EventQueue) Find(kind types.EventKind, sender types.NodeId) *types.Event {
	el := q.findElement(kind, sender)
	if el == nil {
		return nil
	}
	return el.Value.(*types.Event)
}

func (q *EventQueue) findElement(kind types.EventKind, sender types.NodeId) *list.Element {
	fifo := q.fifoFor(kind)
	for e := fifo.Front(); e != nil; e = e.Next() {
		ev := e.Value.(*types.Event)
		if ev.Kind == kind && ev.Sender.Equal(sender) {
			return e
		}
	}
	return nil
}

// Enqueue appends ev to the blocking FIFO if its kind is BLOCK, else to
// the non-blocking FIFO.
func (q *EventQueue) Enqueue(ev *types.Event) {
	q.fifoFor(ev.Kind).PushBack(ev)
}

// Remove unlinks ev from whichever FIFO holds it. It is a no-op if ev is
// not queued (or already removed).
func (q *EventQueue) Remove(ev *types.Event) {
	for _, fifo := range []*list.List{q.blocking, q.nonBlocking} {
		for e := fifo.Front(); e != nil; e = e.Next() {
			if e.Value.(*types.Event) == ev {
				fifo.Remove(e)
				return
			}
		}
	}
}

// PopHead returns the head event to dispatch next: the non-blocking
// FIFO's head if non-empty, otherwise the blocking FIFO's head. This
// ordering guarantees a pending BLOCK never starves arriving LEAVE/
// NOTIFY events, without ever letting it starve out entirely once
// non-blocking work is drained. It returns nil if both FIFOs are empty.
func (q *EventQueue) PopHead() *types.Event {
	if front := q.nonBlocking.Front(); front != nil {
		return front.Value.(*types.Event)
	}
	if front := q.blocking.Front(); front != nil {
		return front.Value.(*types.Event)
	}
	return nil
}

// Empty reports whether both FIFOs are empty.
func (q *EventQueue) Empty() bool {
	return q.blocking.Len() == 0 && q.nonBlocking.Len() == 0
}

// Depth returns (non-blocking length, blocking length), exported for the
// metrics package to turn into gauges.
func (q *EventQueue) Depth() (int, int) {
	return q.nonBlocking.Len(), q.blocking.Len()
}

// CompleteJoinRequest attaches descriptor and payload to the queued
// skeleton JOIN_REQUEST event for sender. It returns
// ErrMissingJoinSkeleton if no skeleton exists — the sender left before
// this node joined, or (per SPEC_FULL.md §9) the envelope arrived out
// of the order ordered delivery is supposed to guarantee.
func (q *EventQueue) CompleteJoinRequest(sender types.NodeId, descriptor types.NodeDescriptor, payload []byte) error {
	ev := q.Find(types.EventJoinRequest, sender)
	if ev == nil {
		return ErrMissingJoinSkeleton
	}
	ev.Descriptor = descriptor
	ev.Payload = payload
	ev.HasPayload = true
	return nil
}

// MorphToJoinResponse turns the queued JOIN_REQUEST skeleton for sender
// into a JOIN_RESPONSE event carrying result and the membership
// snapshot, in place (same FIFO slot — JOIN_RESPONSE is non-blocking
// just like JOIN_REQUEST so no FIFO move is needed). Returns
// ErrMissingJoinSkeleton if absent.
func (q *EventQueue) MorphToJoinResponse(sender types.NodeId, result types.JoinResult, nodes []types.ClusterNode, payload []byte) error {
	ev := q.Find(types.EventJoinRequest, sender)
	if ev == nil {
		return ErrMissingJoinSkeleton
	}
	ev.Kind = types.EventJoinResponse
	ev.Result = result
	ev.Membership = nodes
	ev.Payload = payload
	ev.HasPayload = true
	return nil
}

// RemoveBlock unconditionally removes the pending BLOCK event for
// sender, if any, and reports whether one was found. Used by UNBLOCK
// ingestion, which bypasses the paused dispatcher by construction.
func (q *EventQueue) RemoveBlock(sender types.NodeId) bool {
	el := q.findElement(types.EventBlock, sender)
	if el == nil {
		return false
	}
	q.blocking.Remove(el)
	return true
}

// DiscardJoinRequest removes any queued JOIN_REQUEST skeleton for
// sender (complete or not), reporting whether one was found. Used when a
// node leaves before completing its join.
func (q *EventQueue) DiscardJoinRequest(sender types.NodeId) bool {
	el := q.findElement(types.EventJoinRequest, sender)
	if el == nil {
		return false
	}
	q.nonBlocking.Remove(el)
	return true
}
