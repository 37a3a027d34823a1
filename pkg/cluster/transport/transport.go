// Package transport defines the GroupTransport contract the driver
// consumes (SPEC_FULL.md §2.1, §4.8) and the concrete backends that
// implement it.
package transport

import (
	"errors"
	"net"

	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

// ErrTryAgain is the transient "try again" signal a GroupTransport
// returns from Multicast or Init when the substrate is momentarily
// unable to accept the call. Callers (codec.Codec, the init path) retry
// on this and treat anything else as a hard failure.
var ErrTryAgain = errors.New("transport: try again")

// ErrSecurity is returned by JoinGroup when the substrate refuses
// admission for permission/security reasons. It is fatal to the caller
// (SPEC_FULL.md §7) and never retried.
var ErrSecurity = errors.New("transport: permission denied joining group")

// ConfChg is a single configuration-change notification: the full
// current membership plus the joined/left deltas relative to the
// previous view.
type ConfChg struct {
	Members []types.NodeId
	Joined  []types.NodeId
	Left    []types.NodeId
}

// GroupTransport is the external collaborator this core is built atop:
// ordered delivery of opaque payloads to all group members, confchg
// notifications, a pollable readiness handle, and this process's
// identity.
type GroupTransport interface {
	// Init performs any substrate-side initialization (e.g. opening a
	// control-plane handle). It returns ErrTryAgain on a transient
	// failure; the caller bounds the number of retries.
	Init() error

	// JoinGroup admits this process into the named group. It returns
	// ErrTryAgain on a transient failure (the driver retries it within
	// the same bounded budget as Init) or ErrSecurity on a fatal
	// permission failure.
	JoinGroup(name string) error

	// LocalID returns this process's transport-assigned identity.
	LocalID() types.NodeId

	// LocalAddr returns this node's address, IPv4 mapped into the low
	// 32 bits of a 16-byte buffer, or a native IPv6 address.
	LocalAddr() (net.IP, error)

	// Multicast submits payload as a single logically atomic ordered
	// multicast to the joined group. It returns ErrTryAgain on a
	// transient failure; any other error is a hard failure.
	Multicast(payload []byte) error

	// Deliver returns the channel of ordered, opaque payloads delivered
	// to this process. Driver.Run stops if it is closed; the Local and
	// Memberlist backends never close it, not even on Close.
	Deliver() <-chan []byte

	// ConfChg returns the channel of configuration-change
	// notifications. Driver.Run stops if it is closed; the Local and
	// Memberlist backends never close it, not even on Close.
	ConfChg() <-chan ConfChg

	// Ready reports whether another envelope or confchg is already
	// queued up behind the one just delivered. The Dispatcher uses this
	// to implement the quiescence rule (SPEC_FULL.md §4.4): if more
	// work is already pending, postpone processing until the batch
	// drains, so a burst of LEAVEs from a single partition event is
	// seen as a unit rather than one at a time.
	Ready() bool

	// Close releases the transport's connection. Called only as part
	// of fail-stop or orderly process exit.
	Close() error
}
