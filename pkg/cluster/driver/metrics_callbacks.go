package driver

import (
	"github.com/cpgdrv/cluster/pkg/cluster/dispatch"
	"github.com/cpgdrv/cluster/pkg/cluster/metrics"
	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// meteredCallbacks wraps the daemon-supplied dispatch.Callbacks,
// recording metrics around CheckJoin, LeaveHandler and BlockHandler
// (JoinHandler and NotifyHandler pass through unmetered) without
// altering behavior —
// metrics are purely an observer (SPEC_FULL.md §3 Metrics snapshot).
type meteredCallbacks struct {
	inner   dispatch.Callbacks
	metrics *metrics.Sink
}

func (m *meteredCallbacks) CheckJoin(sender types.NodeId, payload []byte) types.JoinResult {
	result := m.inner.CheckJoin(sender, payload)
	m.metrics.JoinResult(result == types.JoinSuccess)
	return result
}

func (m *meteredCallbacks) JoinHandler(sender types.NodeId, membership []types.ClusterNode, result types.JoinResult, payload []byte) {
	m.inner.JoinHandler(sender, membership, result, payload)
}

func (m *meteredCallbacks) LeaveHandler(sender types.NodeId, membership []types.ClusterNode) {
	m.metrics.Left()
	m.inner.LeaveHandler(sender, membership)
}

func (m *meteredCallbacks) BlockHandler(sender types.NodeId) bool {
	m.metrics.Blocked()
	return m.inner.BlockHandler(sender)
}

func (m *meteredCallbacks) NotifyHandler(sender types.NodeId, payload []byte) {
	m.inner.NotifyHandler(sender, payload)
}

var _ dispatch.Callbacks = (*meteredCallbacks)(nil)
