// Package codec implements MessageCodec (SPEC_FULL.md §4.1): building
// and sending the driver's own Envelope atop a GroupTransport, with
// transparent retry on the substrate's transient try-again signal.
package codec

import (
	"time"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/pkg/errors"

	"github.com/cpgdrv/cluster/pkg/cluster/transport"
	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

var mh = &codec.MsgpackHandle{}

// Codec serializes/parses Envelopes and submits them to a
// GroupTransport, retrying transient failures with backoff.
type Codec struct {
	trans   transport.GroupTransport
	backoff time.Duration
	log     types.Logger

	// sleep is overridable in tests so retry paths don't actually sleep
	// wall-clock time.
	sleep func(time.Duration)
}

// New returns a Codec sending through trans, retrying transient
// failures after backoff (SPEC_FULL.md defaults to ~1s).
func New(trans transport.GroupTransport, backoff time.Duration, log types.Logger) *Codec {
	return &Codec{trans: trans, backoff: backoff, log: log, sleep: time.Sleep}
}

// Encode serializes an Envelope to its wire form.
func Encode(env *types.Envelope) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, mh)
	if err := enc.Encode(env); err != nil {
		return nil, errors.Wrap(err, "codec: encode envelope")
	}
	return buf, nil
}

// Decode parses an Envelope from its wire form.
func Decode(data []byte) (*types.Envelope, error) {
	var env types.Envelope
	dec := codec.NewDecoderBytes(data, mh)
	if err := dec.Decode(&env); err != nil {
		return nil, errors.Wrap(err, "codec: decode envelope")
	}
	return &env, nil
}

// Send builds an Envelope from its parts — the membership snapshot and
// payload are omitted from the wire form when empty — and submits it to
// the transport as a single logically atomic multicast. It retries
// indefinitely on transport.ErrTryAgain with the configured backoff and
// surfaces any other error as a hard failure; the codec never partially
// emits an envelope.
func (c *Codec) Send(msgType types.MessageType, result types.JoinResult, sender types.NodeId,
	descriptor types.NodeDescriptor, nodes []types.ClusterNode, payload []byte) error {
	env := &types.Envelope{
		Type:       msgType,
		Result:     result,
		Sender:     sender,
		Descriptor: descriptor,
		NrNodes:    uint32(len(nodes)),
		Nodes:      nodes,
		Payload:    payload,
	}

	wire, err := Encode(env)
	if err != nil {
		return err
	}

	for {
		err := c.trans.Multicast(wire)
		if err == nil {
			return nil
		}
		if errors.Is(err, transport.ErrTryAgain) {
			c.log.Warnf("codec: transient failure sending %s, retrying", msgType)
			c.sleep(c.backoff)
			continue
		}
		return errors.Wrapf(err, "codec: sending %s", msgType)
	}
}
