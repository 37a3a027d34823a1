package types

// Membership is the current confirmed member set, ordered by admission
// (the order JOIN_RESPONSE successes were observed in). NodeIds are
// unique within it. The head whose Gone flag is clear is, by definition,
// the current master.
type Membership struct {
	nodes []ClusterNode
}

// NewMembership returns an empty Membership.
func NewMembership() *Membership {
	return &Membership{}
}

// Snapshot returns a defensive copy of the current ordered node list,
// suitable for embedding into a JOIN_RESPONSE envelope.
func (m *Membership) Snapshot() []ClusterNode {
	out := make([]ClusterNode, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// Len returns the number of confirmed members.
func (m *Membership) Len() int {
	return len(m.nodes)
}

// Reset empties the membership, used when a MASTER_TRANSFER response
// means this node's view of the group must start over.
func (m *Membership) Reset() {
	m.nodes = nil
}

// ReplaceWith installs nodes as the entire membership, used when a
// pending node adopts the snapshot carried by its own JOIN_RESPONSE.
func (m *Membership) ReplaceWith(nodes []ClusterNode) {
	m.nodes = make([]ClusterNode, len(nodes))
	copy(m.nodes, nodes)
}

// Find returns the index of id in the membership, or -1.
func (m *Membership) Find(id NodeId) int {
	for i := range m.nodes {
		if m.nodes[i].Id.Equal(id) {
			return i
		}
	}
	return -1
}

// Append admits a new node at the tail of the membership.
func (m *Membership) Append(node ClusterNode) {
	m.nodes = append(m.nodes, node)
}

// Remove deletes the node with the given id, if present, and returns its
// descriptor and whether it was found.
func (m *Membership) Remove(id NodeId) (NodeDescriptor, bool) {
	idx := m.Find(id)
	if idx < 0 {
		return nil, false
	}
	desc := m.nodes[idx].Descriptor
	m.nodes = append(m.nodes[:idx], m.nodes[idx+1:]...)
	return desc, true
}

// MarkGone sets the Gone flag for id, if present, reporting whether a
// node was found.
func (m *Membership) MarkGone(id NodeId) bool {
	idx := m.Find(id)
	if idx < 0 {
		return false
	}
	m.nodes[idx].Gone = true
	return true
}

// MasterIndex returns the index of the first ClusterNode whose Gone flag
// is clear, or -1 if the membership is empty or every node is gone.
func (m *Membership) MasterIndex() int {
	for i := range m.nodes {
		if !m.nodes[i].Gone {
			return i
		}
	}
	return -1
}

// IsMaster reports whether id names the current master. When the
// membership is empty, the self-electing node is master by convention,
// so callers distinguish that case themselves (see
// dispatch.Dispatcher.isMaster and driver.Driver.isMaster).
func (m *Membership) IsMaster(id NodeId) bool {
	idx := m.MasterIndex()
	if idx < 0 {
		return false
	}
	return m.nodes[idx].Id.Equal(id)
}
