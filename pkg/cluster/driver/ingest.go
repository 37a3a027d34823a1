package driver

import (
	"errors"

	"github.com/cpgdrv/cluster/pkg/cluster/codec"
	"github.com/cpgdrv/cluster/pkg/cluster/join"
	"github.com/cpgdrv/cluster/pkg/cluster/partition"
	"github.com/cpgdrv/cluster/pkg/cluster/transport"
	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// onDeliver implements envelope ingestion (SPEC_FULL.md §4.5): it maps
// a decoded Envelope onto EventQueue operations, then re-enters the
// Dispatcher.
func (d *Driver) onDeliver(wire []byte) {
	env, err := codec.Decode(wire)
	if err != nil {
		d.log.Errorf("driver: dropping undecodable envelope: %v", err)
		return
	}

	switch env.Type {
	case types.MsgJoinRequest:
		if err := d.queue.CompleteJoinRequest(env.Sender, env.Descriptor, env.Payload); err != nil {
			d.log.Errorf("driver: JOIN_REQUEST from %s: %v", env.Sender, err)
		}

	case types.MsgJoinResponse:
		if err := d.queue.MorphToJoinResponse(env.Sender, env.Result, env.Nodes, env.Payload); err != nil {
			d.log.Errorf("driver: JOIN_RESPONSE for %s: %v", env.Sender, err)
		}

	case types.MsgLeave:
		if d.isMaster(env.Sender) {
			d.members.MarkGone(env.Sender)
		}
		d.queue.Enqueue(&types.Event{Kind: types.EventLeave, Sender: env.Sender})

	case types.MsgBlock:
		d.queue.Enqueue(&types.Event{Kind: types.EventBlock, Sender: env.Sender})

	case types.MsgUnblock:
		d.queue.RemoveBlock(env.Sender)
		d.queue.Enqueue(&types.Event{
			Kind: types.EventNotify, Sender: env.Sender,
			Payload: env.Payload, HasPayload: true,
		})

	case types.MsgNotify:
		d.queue.Enqueue(&types.Event{
			Kind: types.EventNotify, Sender: env.Sender,
			Payload: env.Payload, HasPayload: true,
		})

	default:
		d.log.Errorf("driver: unknown envelope type %v from %s", env.Type, env.Sender)
		return
	}

	d.dispatch.Dispatch()
	d.reportQueueDepth()
}

func (d *Driver) reportQueueDepth() {
	nonBlocking, blocking := d.queue.Depth()
	d.metrics.QueueDepth(nonBlocking, blocking)
}

// isMaster mirrors dispatch.Dispatcher's master rule for the one call
// site ingestion itself needs (the LEAVE two-phase deposition).
func (d *Driver) isMaster(id types.NodeId) bool {
	if d.members.Len() == 0 {
		return id.Equal(d.joinCoord.Local())
	}
	return d.members.IsMaster(id)
}

// onConfChg implements configuration-change ingestion (SPEC_FULL.md
// §4.6): the partition check, per-left-node LEAVE synthesis, per-
// joined-node skeleton creation, and the self-election check, then
// re-enters the Dispatcher.
func (d *Driver) onConfChg(chg transport.ConfChg) {
	if err := d.detector.Check(len(chg.Members), len(chg.Left)); err != nil {
		var fse *partition.FailStopError
		if errors.As(err, &fse) {
			d.metrics.PartitionDetected()
			d.FailStop(fse.Error())
			return
		}
		d.log.Errorf("driver: unexpected partition check error: %v", err)
	}

	for _, id := range chg.Left {
		wasPendingJoiner := d.queue.DiscardJoinRequest(id)
		d.queue.RemoveBlock(id)

		if d.isMaster(id) {
			d.members.MarkGone(id)
		}
		if !wasPendingJoiner {
			d.queue.Enqueue(&types.Event{Kind: types.EventLeave, Sender: id})
		}
	}

	for _, id := range chg.Joined {
		d.queue.Enqueue(&types.Event{Kind: types.EventJoinRequest, Sender: id})
	}

	if d.joinCoord.State() == join.Pending {
		if join.EveryMemberHasJoinRequest(d.queue, chg.Members) {
			d.joinCoord.SelfElect()
		}
	}

	d.dispatch.Dispatch()
	d.reportQueueDepth()
}
