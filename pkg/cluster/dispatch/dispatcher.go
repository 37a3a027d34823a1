// Package dispatch implements the event-dispatch state machine:
// SPEC_FULL.md §4.4's Dispatcher, the hard part of this driver. It
// consumes events from the EventQueue, invokes upper-layer Callbacks,
// and enforces the block pause and the staged join transitions.
package dispatch

import (
	"github.com/cpgdrv/cluster/pkg/cluster/codec"
	"github.com/cpgdrv/cluster/pkg/cluster/join"
	"github.com/cpgdrv/cluster/pkg/cluster/partition"
	"github.com/cpgdrv/cluster/pkg/cluster/queue"
	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// Readiness is the subset of GroupTransport the Dispatcher needs to
// implement the quiescence rule.
type Readiness interface {
	Ready() bool
}

// FailStopper aborts the process. In production it is os.Exit(1) after
// flushing logs; tests inject a recorder instead so a fail-stop can be
// observed without killing the test binary.
type FailStopper interface {
	FailStop(reason string)
}

// Dispatcher is the control hub described in SPEC_FULL.md §4.4. All of
// its state is owned and mutated by a single logical flow — it is never
// safe to call Dispatch concurrently with itself or with the ingestion
// methods in the driver package (see SPEC_FULL.md §5).
type Dispatcher struct {
	queue     *queue.EventQueue
	members   *types.Membership
	joinCoord *join.Coordinator
	detector  *partition.Detector
	callbacks Callbacks
	codec     *codec.Codec
	transport Readiness
	fail      FailStopper
	log       types.Logger
}

// New wires a Dispatcher from its collaborators.
func New(q *queue.EventQueue, members *types.Membership, jc *join.Coordinator,
	detector *partition.Detector, callbacks Callbacks, c *codec.Codec,
	trans Readiness, fail FailStopper, log types.Logger) *Dispatcher {
	return &Dispatcher{
		queue: q, members: members, joinCoord: jc, detector: detector,
		callbacks: callbacks, codec: c, transport: trans, fail: fail, log: log,
	}
}

// Detector exposes the shared PartitionDetector so the driver's
// confchg-ingestion path can run its threshold check against the same
// instance the Dispatcher resets.
func (d *Dispatcher) Detector() *partition.Detector { return d.detector }

// Dispatch runs one pass of the control loop (SPEC_FULL.md §4.4),
// invoked after every delivered envelope and after every confchg.
//
// The quiescence rule is checked first: if the transport reports more
// work already pending, Dispatch returns immediately without touching
// the queue or the partition threshold, postponing everything until the
// batched burst drains — this is what lets a one-by-one LEAVE storm be
// seen, and quorum-checked, as a single unit (SPEC_FULL.md §9).
func (d *Dispatcher) Dispatch() {
	if d.transport.Ready() {
		return
	}
	d.detector.Reset()

	for {
		ev := d.queue.PopHead()
		if ev == nil {
			return
		}

		if !d.joinCoord.Joined() {
			transitioned := d.applyJoinTransition(ev)
			if !transitioned {
				if ev.Kind == types.EventJoinRequest || ev.Kind == types.EventBlock {
					// Stall: leave at head, stop the whole loop until
					// a later envelope changes this node's JoinState
					// or removes the blocking event (UNBLOCK).
					return
				}
				// Not yet joined and this event isn't what promotes
				// us: a node that hasn't joined has no membership view
				// to hand its upper layer, so LEAVE/NOTIFY/unrelated
				// JOIN_RESPONSE events are silently discarded here —
				// the eventual JOIN_RESPONSE snapshot this node adopts
				// already reflects their effect.
				d.queue.Remove(ev)
				continue
			}
		}

		complete := d.dispatchOne(ev)
		if !complete {
			return
		}
		d.queue.Remove(ev)
	}
}

// applyJoinTransition implements SPEC_FULL.md §4.3 point 4: the
// promotion rules the Dispatcher checks before a node's own JoinState
// has reached Joined. It returns whether ev is what promoted this node
// (in which case processing falls through to dispatchOne for ev in the
// same iteration — e.g. the self-elected master still needs to service
// the very JOIN_REQUEST that triggered its promotion).
func (d *Dispatcher) applyJoinTransition(ev *types.Event) bool {
	switch ev.Kind {
	case types.EventJoinRequest:
		if d.joinCoord.PromoteSelfElected() {
			d.members.Reset()
			return true
		}
		return false
	case types.EventJoinResponse:
		if d.joinCoord.PromoteFromResponse(ev.Sender) {
			d.members.ReplaceWith(ev.Membership)
			return true
		}
		return false
	default:
		return false
	}
}

// isMaster implements the master rule (SPEC_FULL.md §4.4): the master
// is the first ClusterNode in membership whose Gone flag is clear; when
// membership is empty, the local node is master by convention (it must
// be the one that just self-elected).
func (d *Dispatcher) isMaster(id types.NodeId) bool {
	if d.members.Len() == 0 {
		return id.Equal(d.joinCoord.Local())
	}
	return d.members.IsMaster(id)
}

// dispatchOne processes a single event per the action table in
// SPEC_FULL.md §4.4, returning whether it is now complete (should be
// removed from the queue).
func (d *Dispatcher) dispatchOne(ev *types.Event) bool {
	switch ev.Kind {
	case types.EventJoinRequest:
		return d.dispatchJoinRequest(ev)
	case types.EventJoinResponse:
		return d.dispatchJoinResponse(ev)
	case types.EventLeave:
		return d.dispatchLeave(ev)
	case types.EventBlock:
		return d.dispatchBlock(ev)
	case types.EventNotify:
		d.callbacks.NotifyHandler(ev.Sender, ev.Payload)
		return true
	default:
		d.log.Errorf("dispatch: unknown event kind %v", ev.Kind)
		return true
	}
}

func (d *Dispatcher) dispatchJoinRequest(ev *types.Event) bool {
	if !d.isMaster(d.joinCoord.Local()) {
		return false
	}
	if !ev.HasPayload {
		return false
	}
	if ev.Callbacked {
		return false
	}

	result := d.callbacks.CheckJoin(ev.Sender, ev.Payload)
	if result == types.JoinMasterTransfer {
		d.members.Reset()
	}

	snapshot := d.members.Snapshot()
	if err := d.codec.Send(types.MsgJoinResponse, result, ev.Sender, nil, snapshot, ev.Payload); err != nil {
		d.log.Errorf("dispatch: failed sending JOIN_RESPONSE to %s: %v", ev.Sender, err)
	}

	if result == types.JoinMasterTransfer {
		d.fail.FailStop("master transferred mastership; this node cannot continue as master")
		return false
	}

	ev.Callbacked = true
	return false
}

func (d *Dispatcher) dispatchJoinResponse(ev *types.Event) bool {
	switch ev.Result {
	case types.JoinSuccess, types.JoinMasterTransfer, types.JoinLater:
		d.members.Append(types.ClusterNode{Id: ev.Sender, Descriptor: ev.Descriptor})
	case types.JoinFail:
		// no membership change
	}
	d.callbacks.JoinHandler(ev.Sender, d.members.Snapshot(), ev.Result, ev.Payload)
	return true
}

func (d *Dispatcher) dispatchLeave(ev *types.Event) bool {
	desc, ok := d.members.Remove(ev.Sender)
	if !ok {
		return true
	}
	ev.Descriptor = desc
	d.callbacks.LeaveHandler(ev.Sender, d.members.Snapshot())
	return true
}

func (d *Dispatcher) dispatchBlock(ev *types.Event) bool {
	if ev.Callbacked {
		return false
	}
	pause := d.callbacks.BlockHandler(ev.Sender)
	if pause {
		ev.Callbacked = true
		return false
	}
	return true
}
