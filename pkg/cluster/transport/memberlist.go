package transport

import (
	"encoding/binary"
	"hash/fnv"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"

	hml "github.com/hashicorp/memberlist"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// MemberlistConfig configures the Memberlist transport.
type MemberlistConfig struct {
	// NodeName must be unique within the mesh; it is what memberlist
	// gossips and what this transport hashes into a NodeId.
	NodeName string

	// BindAddr/BindPort is memberlist's own gossip/failure-detection
	// listener.
	BindAddr string
	BindPort int

	// RelayPort is the TCP port this node listens on to serve as the
	// ordered-multicast relay when elected (see doc comment on
	// Memberlist below). It must differ from BindPort.
	RelayPort int

	// Seeds are existing mesh members to contact on JoinGroup.
	Seeds []string
}

// Memberlist is a GroupTransport backed by hashicorp/memberlist for
// failure detection and membership dissemination, paired with a small
// TCP relay protocol that turns memberlist's eventually-consistent
// gossip into the agreed, totally-ordered multicast the Dispatcher
// assumes (SPEC_FULL.md §4.8): the mesh member whose name sorts first
// lexicographically acts as sequencer for the current "term" (the
// current memberlist view). Every other node keeps one long-lived,
// full-duplex TCP connection open to the relay: it submits envelopes on
// that connection and receives the relay's sequence-numbered broadcast
// of every envelope (including, in sequence, its own) on the same
// connection. When the relay changes — detected via a confchg — peers
// reconnect and simply accept whatever sequence number the new relay
// starts counting from, since a relay change always coincides with a
// fresh confchg the Dispatcher's own accounting keys off of.
type Memberlist struct {
	cfg MemberlistConfig
	log types.Logger

	ml     *hml.Memberlist
	local  types.NodeId
	events *eventDelegate

	deliverCh chan []byte
	confchgCh chan ConfChg

	mu         sync.Mutex
	listener   net.Listener
	peerConns  map[string]net.Conn // relay-side: peer name -> conn
	relayConn  net.Conn            // non-relay side: our conn to the relay
	relayName  string
	seqCounter uint64
	lastSeq    map[string]uint64 // relayName -> last accepted seq
	closed     bool
}

// NewMemberlist constructs (but does not start) a Memberlist transport.
func NewMemberlist(cfg MemberlistConfig, log types.Logger) *Memberlist {
	return &Memberlist{
		cfg:       cfg,
		log:       log,
		deliverCh: make(chan []byte, 4096),
		confchgCh: make(chan ConfChg, 4096),
		peerConns: make(map[string]net.Conn),
		lastSeq:   make(map[string]uint64),
	}
}

func hashName(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// Init starts the memberlist mesh participant and the relay listener.
func (m *Memberlist) Init() error {
	conf := hml.DefaultLANConfig()
	conf.Name = m.cfg.NodeName
	conf.BindAddr = m.cfg.BindAddr
	conf.BindPort = m.cfg.BindPort
	conf.AdvertisePort = m.cfg.BindPort
	conf.LogOutput = io.Discard

	m.events = &eventDelegate{owner: m}
	conf.Events = m.events

	ml, err := hml.Create(conf)
	if err != nil {
		return errors.Wrap(err, "memberlist: create")
	}
	m.ml = ml
	// Must match eventDelegate.nodeID exactly: both sides derive a
	// node's identity from nothing but its memberlist name, so a
	// JOIN_REQUEST skeleton created from a confchg and the envelope
	// Sender that later completes it resolve to the same NodeId.
	m.local = types.NodeId{ID: hashName(m.cfg.NodeName), PID: 0}

	ln, err := net.Listen("tcp", net.JoinHostPort(m.cfg.BindAddr, strconv.Itoa(m.cfg.RelayPort)))
	if err != nil {
		return errors.Wrap(err, "memberlist: relay listen")
	}
	m.listener = ln
	go m.acceptLoop()

	return nil
}

func (m *Memberlist) JoinGroup(name string) error {
	if len(m.cfg.Seeds) == 0 {
		return nil
	}
	_, err := m.ml.Join(m.cfg.Seeds)
	if err != nil {
		return ErrTryAgain
	}
	return nil
}

func (m *Memberlist) LocalID() types.NodeId { return m.local }

func (m *Memberlist) LocalAddr() (net.IP, error) {
	node := m.ml.LocalNode()
	if node == nil {
		return nil, errors.New("memberlist: local node unknown")
	}
	ip := node.Addr.To4()
	if ip == nil {
		return node.Addr.To16(), nil
	}
	mapped := make(net.IP, 16)
	copy(mapped[12:], ip)
	return mapped, nil
}

// currentRelay returns the lexicographically-first member name in the
// current view, which every node computes identically off its own
// (eventually consistent) memberlist membership snapshot.
func (m *Memberlist) currentRelay() string {
	members := m.ml.Members()
	names := make([]string, 0, len(members))
	for _, n := range members {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return m.cfg.NodeName
	}
	return names[0]
}

func (m *Memberlist) relayAddr(name string) (string, bool) {
	for _, n := range m.ml.Members() {
		if n.Name == name {
			return net.JoinHostPort(n.Addr.String(), strconv.Itoa(m.cfg.RelayPort)), true
		}
	}
	return "", false
}

func (m *Memberlist) Multicast(payload []byte) error {
	relay := m.currentRelay()
	if relay == m.cfg.NodeName {
		return m.relayBroadcast(payload)
	}
	return m.submitToRelay(relay, payload)
}

// relayBroadcast runs on the elected relay: it assigns the next
// sequence number and fans the frame out to every connected peer plus
// its own Deliver() channel.
func (m *Memberlist) relayBroadcast(payload []byte) error {
	m.mu.Lock()
	m.seqCounter++
	seq := m.seqCounter
	frame := encodeFrame(seq, payload)
	conns := make([]net.Conn, 0, len(m.peerConns))
	for _, c := range m.peerConns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	var result *multierror.Error
	for _, c := range conns {
		if _, err := c.Write(frame); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "relay fan-out to %s", c.RemoteAddr()))
		}
	}
	select {
	case m.deliverCh <- payload:
	default:
		result = multierror.Append(result, errors.New("local deliver channel full"))
	}
	return result.ErrorOrNil()
}

func (m *Memberlist) submitToRelay(relay string, payload []byte) error {
	conn, err := m.ensureRelayConn(relay)
	if err != nil {
		return ErrTryAgain
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := conn.Write(buf); err != nil {
		m.mu.Lock()
		m.relayConn = nil
		m.mu.Unlock()
		return ErrTryAgain
	}
	return nil
}

func (m *Memberlist) ensureRelayConn(relay string) (net.Conn, error) {
	m.mu.Lock()
	if m.relayConn != nil && m.relayName == relay {
		c := m.relayConn
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	addr, ok := m.relayAddr(relay)
	if !ok {
		return nil, errors.Errorf("memberlist: no address for relay %q", relay)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.relayConn = conn
	m.relayName = relay
	m.mu.Unlock()

	go m.readRelayDeliveries(relay, conn)
	return conn, nil
}

// readRelayDeliveries reads the relay's sequence-numbered broadcast
// frames off conn and pushes their payloads onto deliverCh, rejecting
// any frame whose sequence number is not exactly one greater than the
// last one accepted from this relay term. A term starts with each new
// connection: its first frame is accepted whatever its number.
func (m *Memberlist) readRelayDeliveries(relay string, conn net.Conn) {
	m.mu.Lock()
	delete(m.lastSeq, relay)
	m.mu.Unlock()
	for {
		seq, payload, err := decodeFrame(conn)
		if err != nil {
			return
		}
		m.mu.Lock()
		last, seen := m.lastSeq[relay]
		if seen && seq != last+1 {
			m.log.Warnf("memberlist: relay %s sent out-of-order seq %d (expected %d), dropping", relay, seq, last+1)
			m.mu.Unlock()
			continue
		}
		m.lastSeq[relay] = seq
		m.mu.Unlock()

		select {
		case m.deliverCh <- payload:
		default:
			m.log.Errorf("memberlist: deliver channel full, dropping envelope from relay %s", relay)
		}
	}
}

func (m *Memberlist) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.serveInbound(conn)
	}
}

// serveInbound runs on the relay for each accepted peer connection: it
// reads raw submit frames (no sequence number yet — the relay assigns
// one) and re-enters relayBroadcast for each.
func (m *Memberlist) serveInbound(conn net.Conn) {
	defer conn.Close()
	peerName := conn.RemoteAddr().String()
	m.mu.Lock()
	m.peerConns[peerName] = conn
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.peerConns, peerName)
		m.mu.Unlock()
	}()

	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		_ = m.relayBroadcast(payload)
	}
}

func encodeFrame(seq uint64, payload []byte) []byte {
	buf := make([]byte, 4+8+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(8+len(payload)))
	binary.BigEndian.PutUint64(buf[4:], seq)
	copy(buf[12:], payload)
	return buf
}

func decodeFrame(r io.Reader) (uint64, []byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if n < 8 {
		return 0, nil, errors.New("memberlist: short frame")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	seq := binary.BigEndian.Uint64(body[:8])
	return seq, body[8:], nil
}

func (m *Memberlist) Deliver() <-chan []byte { return m.deliverCh }

func (m *Memberlist) ConfChg() <-chan ConfChg { return m.confchgCh }

func (m *Memberlist) Ready() bool {
	return len(m.deliverCh) > 0 || len(m.confchgCh) > 0
}

func (m *Memberlist) Close() error {
	m.mu.Lock()
	m.closed = true
	conns := make([]net.Conn, 0, len(m.peerConns)+1)
	for _, c := range m.peerConns {
		conns = append(conns, c)
	}
	if m.relayConn != nil {
		conns = append(conns, m.relayConn)
	}
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	if m.listener != nil {
		_ = m.listener.Close()
	}
	if m.ml != nil {
		return m.ml.Leave(0)
	}
	return nil
}

var _ GroupTransport = (*Memberlist)(nil)

// eventDelegate adapts memberlist's join/leave/update callbacks into
// ConfChg notifications. Each call emits one ConfChg snapshotting the
// current full membership with a single-element joined/left delta;
// the Dispatcher's own quiescence guard (backed by Ready(), which
// checks this channel's backlog) is what turns a fast burst of these
// into one batch, exactly as SPEC_FULL.md §4.4/§9 requires.
type eventDelegate struct {
	owner *Memberlist
}

func (e *eventDelegate) nodeID(n *hml.Node) types.NodeId {
	return types.NodeId{ID: hashName(n.Name), PID: 0}
}

func (e *eventDelegate) currentMembers() []types.NodeId {
	members := e.owner.ml.Members()
	ids := make([]types.NodeId, 0, len(members))
	for _, n := range members {
		ids = append(ids, e.nodeID(n))
	}
	return ids
}

func (e *eventDelegate) emit(joined, left []types.NodeId) {
	chg := ConfChg{Members: e.currentMembers(), Joined: joined, Left: left}
	select {
	case e.owner.confchgCh <- chg:
	default:
		e.owner.log.Errorf("memberlist: confchg channel full, dropping notification")
	}
}

func (e *eventDelegate) NotifyJoin(n *hml.Node) {
	e.emit([]types.NodeId{e.nodeID(n)}, nil)
}

func (e *eventDelegate) NotifyLeave(n *hml.Node) {
	e.emit(nil, []types.NodeId{e.nodeID(n)})
}

func (e *eventDelegate) NotifyUpdate(n *hml.Node) {
	// Role/address metadata changes don't affect membership; no confchg.
}

var _ hml.EventDelegate = (*eventDelegate)(nil)
