package transport

import (
	"net"
	"sync"

	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// Cluster is an in-process GroupTransport hub used by tests: it gives every Local node a trivially total order
// (all multicasts are serialized through one mutex) and delivers
// confchg synchronously on Join/Leave, the way the teacher's
// TestInvoker + in-process core.Peer wiring stood in for a real
// transport in go-mcast's tests.
type Cluster struct {
	mu      sync.Mutex
	order   []types.NodeId
	nodes   map[types.NodeId]*Local
	nextID  uint32
}

// NewCluster returns an empty in-process hub.
func NewCluster() *Cluster {
	return &Cluster{nodes: make(map[types.NodeId]*Local)}
}

// Join admits a new Local node into the hub, synchronously delivering a
// confchg to every current member (including the new node) reflecting
// the updated roster.
func (c *Cluster) Join(pid uint32) *Local {
	c.mu.Lock()
	c.nextID++
	id := types.NodeId{ID: c.nextID, PID: pid}
	local := &Local{
		hub:       c,
		id:        id,
		deliverCh: make(chan []byte, 1024),
		confchgCh: make(chan ConfChg, 1024),
	}
	c.nodes[id] = local
	c.order = append(c.order, id)
	members := append([]types.NodeId(nil), c.order...)
	c.broadcastConfChgLocked(members, []types.NodeId{id}, nil)
	c.mu.Unlock()
	return local
}

// Leave removes a Local node from the hub and synchronously delivers a
// confchg reflecting the departure to every remaining member.
func (c *Cluster) Leave(id types.NodeId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[id]; !ok {
		return
	}
	delete(c.nodes, id)
	for i, o := range c.order {
		if o.Equal(id) {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	members := append([]types.NodeId(nil), c.order...)
	c.broadcastConfChgLocked(members, nil, []types.NodeId{id})
}

// broadcastConfChgLocked must be called with c.mu held.
func (c *Cluster) broadcastConfChgLocked(members, joined, left []types.NodeId) {
	chg := ConfChg{Members: members, Joined: joined, Left: left}
	for _, n := range c.nodes {
		select {
		case n.confchgCh <- chg:
		default:
		}
	}
}

func (c *Cluster) multicast(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := append([]byte(nil), payload...)
	for _, n := range c.nodes {
		select {
		case n.deliverCh <- buf:
		default:
		}
	}
}

// Local is the per-node GroupTransport handle into a Cluster.
type Local struct {
	hub       *Cluster
	id        types.NodeId
	deliverCh chan []byte
	confchgCh chan ConfChg
	closed    bool
}

func (l *Local) Init() error { return nil }

func (l *Local) JoinGroup(name string) error { return nil }

func (l *Local) LocalID() types.NodeId { return l.id }

func (l *Local) LocalAddr() (net.IP, error) {
	return net.IPv4(127, 0, 0, byte(l.id.ID)), nil
}

func (l *Local) Multicast(payload []byte) error {
	if l.closed {
		return net.ErrClosed
	}
	l.hub.multicast(payload)
	return nil
}

func (l *Local) Deliver() <-chan []byte { return l.deliverCh }

func (l *Local) ConfChg() <-chan ConfChg { return l.confchgCh }

func (l *Local) Ready() bool {
	return len(l.deliverCh) > 0 || len(l.confchgCh) > 0
}

func (l *Local) Close() error {
	l.hub.Leave(l.id)
	l.closed = true
	return nil
}

var _ GroupTransport = (*Local)(nil)
