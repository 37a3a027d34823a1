// Package driver is the glue described in SPEC_FULL.md §2/§6: it wires
// GroupTransport, MessageCodec, EventQueue, Membership, JoinCoordinator,
// Dispatcher and PartitionDetector together and exposes the upward API
// (init/join/leave/notify/block/unblock) the daemon core calls, the way
// the teacher's mcast.Unity sits over core.Peer/core.Transport.
package driver

import (
	"context"
	"net"
	"os"
	"time"

	stderrors "errors"

	"github.com/pkg/errors"

	"github.com/cpgdrv/cluster/pkg/cluster/codec"
	"github.com/cpgdrv/cluster/pkg/cluster/config"
	"github.com/cpgdrv/cluster/pkg/cluster/dispatch"
	"github.com/cpgdrv/cluster/pkg/cluster/join"
	"github.com/cpgdrv/cluster/pkg/cluster/metrics"
	"github.com/cpgdrv/cluster/pkg/cluster/partition"
	"github.com/cpgdrv/cluster/pkg/cluster/queue"
	"github.com/cpgdrv/cluster/pkg/cluster/transport"
	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// noResult is the placeholder JoinResult attached to envelopes whose
// type doesn't carry a meaningful result code (everything but
// JOIN_RESPONSE, per SPEC_FULL.md §3 Envelope).
const noResult = types.JoinResult(0)

// ExitFunc terminates the process. Production wiring defaults to
// os.Exit(1); tests inject a recorder so fail-stop is observable
// without killing the test binary.
type ExitFunc func(code int)

// Driver owns every piece of mutable core state and is the single
// goroutine's worth of logic SPEC_FULL.md §5 requires: Run is the only
// thing that may call Dispatch, mutate the EventQueue, Membership, or
// JoinCoordinator.
type Driver struct {
	cfg       config.Config
	transport transport.GroupTransport
	codec     *codec.Codec
	queue     *queue.EventQueue
	members   *types.Membership
	joinCoord *join.Coordinator
	detector  *partition.Detector
	dispatch  *dispatch.Dispatcher
	metrics   *metrics.Sink
	log       types.Logger
	exit      ExitFunc
}

// New constructs a Driver. It performs GroupTransport.Init with the
// configured retry budget before returning, mirroring corosync_init's
// CPG_INIT_RETRY_CNT loop; any other failure from Init is fatal and
// returned wrapped, without further retries.
func New(cfg config.Config, callbacks dispatch.Callbacks, trans transport.GroupTransport,
	log types.Logger, sink *metrics.Sink) (*Driver, error) {
	if sink == nil {
		sink = metrics.New(nil, nil)
	}

	d := &Driver{
		cfg:       cfg,
		transport: trans,
		queue:     queue.New(),
		members:   types.NewMembership(),
		metrics:   sink,
		log:       log,
		exit:      os.Exit,
	}

	if err := d.retry("transport init", d.transport.Init); err != nil {
		return nil, errors.Wrap(err, "driver: transport init")
	}

	d.joinCoord = join.New(d.transport.LocalID())
	d.detector = partition.New()
	d.codec = codec.New(d.transport, cfg.SendBackoff, log)
	instrumented := &meteredCallbacks{inner: callbacks, metrics: sink}
	d.dispatch = dispatch.New(d.queue, d.members, d.joinCoord, d.detector,
		instrumented, d.codec, d.transport, d, log)

	return d, nil
}

// retry bounds a transient-failing operation to cfg.InitRetryBudget
// attempts with a ~200ms sleep between them (SPEC_FULL.md §7), stopping
// immediately on any error other than transport.ErrTryAgain.
func (d *Driver) retry(what string, op func() error) error {
	budget := d.cfg.InitRetryBudget
	if budget <= 0 {
		budget = 1
	}
	var lastErr error
	for attempt := 0; attempt < budget; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, transport.ErrTryAgain) {
			return err
		}
		lastErr = err
		d.log.Warnf("driver: %s transient failure (attempt %d/%d), retrying", what, attempt+1, budget)
		time.Sleep(200 * time.Millisecond)
	}
	return errors.Wrapf(lastErr, "driver: %s exhausted retry budget", what)
}

// SetExitFunc overrides the fail-stop termination call, defaulting to
// os.Exit(1). Tests use this to observe fail-stop without killing the
// test binary.
func (d *Driver) SetExitFunc(fn ExitFunc) {
	d.exit = fn
}

// LocalAddr implements the `get_local_addr` upward operation.
func (d *Driver) LocalAddr() (net.IP, error) {
	return d.transport.LocalAddr()
}

// Join implements the `join` upward operation (SPEC_FULL.md §4.3 point
// 1): admit this process into the named group, then multicast a
// JOIN_REQUEST carrying descriptor and the opaque payload. descriptor
// is carried by value on the envelope so every other node's membership
// entry for this process ends up with it attached (SPEC_FULL.md §3).
// The staged self-election/promotion itself happens later, inside Run,
// as confchg and the resulting JOIN_REQUEST/JOIN_RESPONSE envelopes
// arrive.
func (d *Driver) Join(descriptor types.NodeDescriptor, payload []byte) error {
	d.metrics.JoinAttempted()

	err := d.retry("join group", func() error { return d.transport.JoinGroup(d.cfg.GroupName) })
	if err != nil {
		if stderrors.Is(err, transport.ErrSecurity) {
			return errors.Wrap(err, "driver: join refused")
		}
		return err
	}

	return d.codec.Send(types.MsgJoinRequest, noResult, d.transport.LocalID(), descriptor, nil, payload)
}

// Leave implements the `leave` upward operation: it releases this
// node's transport connection. Surviving members observe the departure
// through their own confchg, the ordinary LEAVE path.
func (d *Driver) Leave() error {
	return d.transport.Close()
}

// Notify implements the `notify` upward operation.
func (d *Driver) Notify(payload []byte) error {
	return d.codec.Send(types.MsgNotify, noResult, d.transport.LocalID(), nil, nil, payload)
}

// Block implements the `block` upward operation: request a global
// cooperative pause.
func (d *Driver) Block() error {
	return d.codec.Send(types.MsgBlock, noResult, d.transport.LocalID(), nil, nil, nil)
}

// Unblock implements the `unblock` upward operation: release the pause
// and deliver payload to every node as an implicit NOTIFY.
func (d *Driver) Unblock(payload []byte) error {
	return d.codec.Send(types.MsgUnblock, noResult, d.transport.LocalID(), nil, nil, payload)
}

// FailStop implements dispatch.FailStopper (SPEC_FULL.md §7): it logs,
// releases the transport, and terminates the process. Higher-level
// orchestration is expected to restart it; this core has no internal
// recovery.
func (d *Driver) FailStop(reason string) {
	d.log.Errorf("driver: fail-stop: %s", reason)
	if err := d.transport.Close(); err != nil {
		d.log.Errorf("driver: error closing transport during fail-stop: %v", err)
	}
	d.exit(1)
}

// Run drains the transport's Deliver and ConfChg channels until either
// is closed or ctx is cancelled. It is the single goroutine SPEC_FULL.md
// §5 requires own all Dispatcher/Membership/EventQueue/JoinCoordinator
// state — callers must not invoke Join/Leave/Notify/Block/Unblock
// concurrently with Run beyond what the codec's own transport call
// already tolerates.
func (d *Driver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wire, ok := <-d.transport.Deliver():
			if !ok {
				return nil
			}
			d.onDeliver(wire)
		case chg, ok := <-d.transport.ConfChg():
			if !ok {
				return nil
			}
			d.onConfChg(chg)
		}
	}
}
