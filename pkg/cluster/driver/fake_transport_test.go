package driver

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cpgdrv/cluster/pkg/cluster/codec"
	"github.com/cpgdrv/cluster/pkg/cluster/transport"
	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// fakeGroupTransport is a minimal GroupTransport stand-in for tests that
// drive onDeliver/onConfChg directly and never exercise Run's channel
// select loop.
type fakeGroupTransport struct {
	id   types.NodeId
	sent [][]byte
}

func newFakeGroupTransport(id types.NodeId) *fakeGroupTransport {
	return &fakeGroupTransport{id: id}
}

func (f *fakeGroupTransport) Init() error             { return nil }
func (f *fakeGroupTransport) JoinGroup(string) error   { return nil }
func (f *fakeGroupTransport) LocalID() types.NodeId    { return f.id }
func (f *fakeGroupTransport) LocalAddr() (net.IP, error) {
	return net.IPv4(127, 0, 0, 1), nil
}
func (f *fakeGroupTransport) Multicast(payload []byte) error {
	f.sent = append(f.sent, payload)
	return nil
}
func (f *fakeGroupTransport) Deliver() <-chan []byte       { return nil }
func (f *fakeGroupTransport) ConfChg() <-chan transport.ConfChg { return nil }
func (f *fakeGroupTransport) Ready() bool                 { return false }
func (f *fakeGroupTransport) Close() error                 { return nil }

var _ transport.GroupTransport = (*fakeGroupTransport)(nil)

// envelopeWire encodes a minimal Envelope for feeding directly into
// Driver.onDeliver in tests that don't need a real transport round trip.
func envelopeWire(t *testing.T, msgType types.MessageType, sender types.NodeId, payload []byte) []byte {
	t.Helper()
	wire, err := codec.Encode(&types.Envelope{
		Type:    msgType,
		Sender:  sender,
		Payload: payload,
	})
	require.NoError(t, err)
	return wire
}
