package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

func node(id uint32) types.NodeId {
	return types.NodeId{ID: id, PID: id}
}

func TestEventQueue_PopHeadPrefersNonBlocking(t *testing.T) {
	q := New()
	block := &types.Event{Kind: types.EventBlock, Sender: node(1)}
	notify := &types.Event{Kind: types.EventNotify, Sender: node(2)}

	q.Enqueue(block)
	require.Equal(t, block, q.PopHead())

	q.Enqueue(notify)
	require.Equal(t, notify, q.PopHead(), "non-blocking FIFO head takes priority over a pending BLOCK")
}

func TestEventQueue_FindByKindAndSender(t *testing.T) {
	q := New()
	req := &types.Event{Kind: types.EventJoinRequest, Sender: node(1)}
	q.Enqueue(req)

	require.Equal(t, req, q.Find(types.EventJoinRequest, node(1)))
	require.Nil(t, q.Find(types.EventJoinRequest, node(2)))
	require.Nil(t, q.Find(types.EventLeave, node(1)))
}

func TestEventQueue_RemoveUnlinks(t *testing.T) {
	q := New()
	ev := &types.Event{Kind: types.EventNotify, Sender: node(1)}
	q.Enqueue(ev)
	q.Remove(ev)
	require.True(t, q.Empty())
	require.Nil(t, q.PopHead())
}

func TestEventQueue_CompleteJoinRequest(t *testing.T) {
	q := New()
	skeleton := &types.Event{Kind: types.EventJoinRequest, Sender: node(1)}
	q.Enqueue(skeleton)

	require.NoError(t, q.CompleteJoinRequest(node(1), types.NodeDescriptor("desc-1"), []byte("payload")))
	require.Equal(t, types.NodeDescriptor("desc-1"), skeleton.Descriptor)
	require.Equal(t, []byte("payload"), skeleton.Payload)
	require.True(t, skeleton.HasPayload)
}

func TestEventQueue_CompleteJoinRequestMissingSkeleton(t *testing.T) {
	q := New()
	err := q.CompleteJoinRequest(node(99), nil, []byte("x"))
	require.True(t, errors.Is(err, ErrMissingJoinSkeleton))
}

func TestEventQueue_MorphToJoinResponseSameSlot(t *testing.T) {
	q := New()
	skeleton := &types.Event{Kind: types.EventJoinRequest, Sender: node(1)}
	q.Enqueue(skeleton)

	snapshot := []types.ClusterNode{{Id: node(1)}}
	require.NoError(t, q.MorphToJoinResponse(node(1), types.JoinSuccess, snapshot, []byte("p")))

	require.Equal(t, skeleton, q.PopHead(), "morph happens in place, same FIFO slot")
	require.Equal(t, types.EventJoinResponse, skeleton.Kind)
	require.Equal(t, types.JoinSuccess, skeleton.Result)
	require.Equal(t, snapshot, skeleton.Membership)
}

func TestEventQueue_RemoveBlockUnconditional(t *testing.T) {
	q := New()
	block := &types.Event{Kind: types.EventBlock, Sender: node(1), Callbacked: true}
	q.Enqueue(block)

	require.True(t, q.RemoveBlock(node(1)))
	require.False(t, q.RemoveBlock(node(1)), "second removal finds nothing")
	require.True(t, q.Empty())
}

func TestEventQueue_DiscardJoinRequest(t *testing.T) {
	q := New()
	skeleton := &types.Event{Kind: types.EventJoinRequest, Sender: node(1)}
	q.Enqueue(skeleton)

	require.True(t, q.DiscardJoinRequest(node(1)))
	require.Nil(t, q.Find(types.EventJoinRequest, node(1)))
}

func TestEventQueue_Depth(t *testing.T) {
	q := New()
	q.Enqueue(&types.Event{Kind: types.EventNotify, Sender: node(1)})
	q.Enqueue(&types.Event{Kind: types.EventBlock, Sender: node(2)})
	q.Enqueue(&types.Event{Kind: types.EventBlock, Sender: node(3)})

	nb, b := q.Depth()
	require.Equal(t, 1, nb)
	require.Equal(t, 2, b)
}
