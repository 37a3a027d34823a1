package dispatch

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cpgdrv/cluster/pkg/cluster/codec"
	"github.com/cpgdrv/cluster/pkg/cluster/join"
	"github.com/cpgdrv/cluster/pkg/cluster/logging"
	"github.com/cpgdrv/cluster/pkg/cluster/partition"
	"github.com/cpgdrv/cluster/pkg/cluster/queue"
	"github.com/cpgdrv/cluster/pkg/cluster/transport"
	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// fakeTransport is a minimal transport.GroupTransport used both as the
// Codec's send target and as the Dispatcher's Readiness collaborator.
type fakeTransport struct {
	id    types.NodeId
	ready bool
	sent  [][]byte
}

func (f *fakeTransport) Init() error           { return nil }
func (f *fakeTransport) JoinGroup(string) error { return nil }
func (f *fakeTransport) LocalID() types.NodeId { return f.id }
func (f *fakeTransport) LocalAddr() (net.IP, error) {
	return net.IPv4(127, 0, 0, 1), nil
}
func (f *fakeTransport) Multicast(payload []byte) error {
	f.sent = append(f.sent, payload)
	return nil
}
func (f *fakeTransport) Deliver() <-chan []byte            { return nil }
func (f *fakeTransport) ConfChg() <-chan transport.ConfChg { return nil }
func (f *fakeTransport) Ready() bool                       { return f.ready }
func (f *fakeTransport) Close() error                      { return nil }

var _ transport.GroupTransport = (*fakeTransport)(nil)

// fakeCallbacks records every Callbacks invocation.
type fakeCallbacks struct {
	admit types.JoinResult

	checkJoinCalls int
	joinCalls      []types.JoinResult
	leaveCalls     int
	blockPause     bool
	blockCalls     int
	notifyCalls    []types.NodeId
}

func (f *fakeCallbacks) CheckJoin(types.NodeId, []byte) types.JoinResult {
	f.checkJoinCalls++
	return f.admit
}
func (f *fakeCallbacks) JoinHandler(_ types.NodeId, _ []types.ClusterNode, result types.JoinResult, _ []byte) {
	f.joinCalls = append(f.joinCalls, result)
}
func (f *fakeCallbacks) LeaveHandler(types.NodeId, []types.ClusterNode) { f.leaveCalls++ }
func (f *fakeCallbacks) BlockHandler(types.NodeId) bool {
	f.blockCalls++
	return f.blockPause
}
func (f *fakeCallbacks) NotifyHandler(sender types.NodeId, _ []byte) {
	f.notifyCalls = append(f.notifyCalls, sender)
}

// fakeFailStopper records fail-stop invocations instead of exiting.
type fakeFailStopper struct {
	calls   int
	reasons []string
}

func (f *fakeFailStopper) FailStop(reason string) {
	f.calls++
	f.reasons = append(f.reasons, reason)
}

func newHarness(t *testing.T, local types.NodeId, ready bool, admit types.JoinResult) (
	*Dispatcher, *queue.EventQueue, *types.Membership, *join.Coordinator, *fakeCallbacks, *fakeFailStopper) {
	t.Helper()
	q := queue.New()
	members := types.NewMembership()
	jc := join.New(local)
	detector := partition.New()
	cb := &fakeCallbacks{admit: admit}
	trans := &fakeTransport{id: local, ready: ready}
	c := codec.New(trans, time.Millisecond, logging.New(nil))
	fail := &fakeFailStopper{}
	d := New(q, members, jc, detector, cb, c, trans, fail, logging.New(nil))
	return d, q, members, jc, cb, fail
}

func TestDispatcher_SelfElectedNodeServicesOwnJoinRequest(t *testing.T) {
	local := types.NodeId{ID: 1}
	d, q, members, jc, cb, _ := newHarness(t, local, false, types.JoinSuccess)

	jc.SelfElect()
	ev := &types.Event{Kind: types.EventJoinRequest, Sender: local, HasPayload: true, Payload: []byte("p")}
	q.Enqueue(ev)

	d.Dispatch()

	require.True(t, jc.Joined())
	require.Equal(t, 0, members.Len(), "self-elected promotion starts with an empty membership")
	require.Equal(t, 1, cb.checkJoinCalls)
	require.True(t, ev.Callbacked)
	require.NotNil(t, q.Find(types.EventJoinRequest, local), "JOIN_REQUEST is never removed by dispatchOne itself")
}

func TestDispatcher_JoinRequestStallsWithoutPayload(t *testing.T) {
	local := types.NodeId{ID: 1}
	other := types.NodeId{ID: 2}
	d, q, _, jc, cb, _ := newHarness(t, local, false, types.JoinSuccess)

	ev := &types.Event{Kind: types.EventJoinRequest, Sender: other}
	q.Enqueue(ev)

	d.Dispatch()

	require.Equal(t, join.Pending, jc.State())
	require.Equal(t, 0, cb.checkJoinCalls)
	require.NotNil(t, q.Find(types.EventJoinRequest, other), "stalled event stays at the head")
}

func TestDispatcher_NonPromotingEventDiscardedWhilePending(t *testing.T) {
	local := types.NodeId{ID: 1}
	other := types.NodeId{ID: 2}
	d, q, _, jc, cb, _ := newHarness(t, local, false, types.JoinSuccess)

	q.Enqueue(&types.Event{Kind: types.EventLeave, Sender: other})

	d.Dispatch()

	require.Equal(t, join.Pending, jc.State(), "a LEAVE can't promote a still-Pending node")
	require.Equal(t, 0, cb.leaveCalls, "not-yet-joined node has no membership view to hand leave_handler")
	require.Nil(t, q.Find(types.EventLeave, other), "discarded, not left queued")
}

func TestDispatcher_MasterTransferResetsMembershipAndFailStops(t *testing.T) {
	local := types.NodeId{ID: 1}
	sender := types.NodeId{ID: 2}
	d, q, members, jc, cb, fail := newHarness(t, local, false, types.JoinMasterTransfer)
	jc.SelfElect()
	jc.PromoteSelfElected()
	members.Append(types.ClusterNode{Id: local})

	q.Enqueue(&types.Event{Kind: types.EventJoinRequest, Sender: sender, HasPayload: true, Payload: []byte("p")})

	d.Dispatch()

	require.Equal(t, 1, cb.checkJoinCalls)
	require.Equal(t, 0, members.Len(), "MASTER_TRANSFER resets membership before the response is sent")
	require.Equal(t, 1, fail.calls, "MASTER_TRANSFER is fatal to this node")
}

func TestDispatcher_BlockPausesUntilExternallyRemoved(t *testing.T) {
	local := types.NodeId{ID: 1}
	sender := types.NodeId{ID: 2}
	d, q, _, jc, cb, _ := newHarness(t, local, false, types.JoinSuccess)
	jc.SelfElect()
	jc.PromoteSelfElected()

	ev := &types.Event{Kind: types.EventBlock, Sender: sender}
	cb.blockPause = true
	q.Enqueue(ev)

	d.Dispatch()
	require.Equal(t, 1, cb.blockCalls)
	require.True(t, ev.Callbacked)
	require.NotNil(t, q.Find(types.EventBlock, sender))

	d.Dispatch() // a second pass must not re-invoke BlockHandler
	require.Equal(t, 1, cb.blockCalls)

	q.RemoveBlock(sender)
	q.Enqueue(&types.Event{Kind: types.EventNotify, Sender: sender, Payload: []byte("y"), HasPayload: true})
	d.Dispatch()
	require.Equal(t, []types.NodeId{sender}, cb.notifyCalls)
}

func TestDispatcher_LeaveForAbsentMemberCompletesSilently(t *testing.T) {
	local := types.NodeId{ID: 1}
	sender := types.NodeId{ID: 2}
	d, q, _, jc, cb, _ := newHarness(t, local, false, types.JoinSuccess)
	jc.SelfElect()
	jc.PromoteSelfElected()

	ev := &types.Event{Kind: types.EventLeave, Sender: sender}
	q.Enqueue(ev)

	d.Dispatch()

	require.Equal(t, 0, cb.leaveCalls, "sender was never a member, so leave_handler does not fire")
	require.Nil(t, q.Find(types.EventLeave, sender))
}

func TestDispatcher_ReadyPostponesWholePass(t *testing.T) {
	local := types.NodeId{ID: 1}
	sender := types.NodeId{ID: 2}
	d, q, _, jc, cb, _ := newHarness(t, local, true, types.JoinSuccess)
	jc.SelfElect()
	jc.PromoteSelfElected()

	q.Enqueue(&types.Event{Kind: types.EventNotify, Sender: sender, Payload: []byte("x"), HasPayload: true})

	d.Dispatch()

	require.Empty(t, cb.notifyCalls, "Ready()==true postpones the whole pass without touching the queue")
	require.NotNil(t, q.Find(types.EventNotify, sender))
}
