package types

// EventKind names the internal event record derived from an envelope or
// a confchg delta.
type EventKind uint8

const (
	EventJoinRequest EventKind = iota
	EventJoinResponse
	EventLeave
	EventBlock
	EventNotify
)

func (k EventKind) String() string {
	switch k {
	case EventJoinRequest:
		return "JOIN_REQUEST"
	case EventJoinResponse:
		return "JOIN_RESPONSE"
	case EventLeave:
		return "LEAVE"
	case EventBlock:
		return "BLOCK"
	case EventNotify:
		return "NOTIFY"
	default:
		return "UNKNOWN"
	}
}

// Event is an internal record awaiting dispatch. A JOIN_REQUEST event
// starts out as a skeleton (Payload == nil, HasPayload == false) created
// from a confchg "joined" delta and is completed in place when the
// corresponding JOIN_REQUEST envelope arrives; it can later be morphed
// into a JOIN_RESPONSE event in place (same queue slot) when the
// corresponding JOIN_RESPONSE envelope arrives.
type Event struct {
	Kind   EventKind
	Sender NodeId

	// Descriptor is filled in once known: at skeleton creation time for
	// JOIN_REQUEST it is empty; LEAVE copies it from the membership slot
	// being removed.
	Descriptor NodeDescriptor

	// Payload is nil until the triggering envelope (carrying it) has
	// been observed. HasPayload distinguishes "no payload arrived yet"
	// from "a payload of zero length arrived".
	Payload    []byte
	HasPayload bool

	// Result and Membership are meaningful only once Kind ==
	// EventJoinResponse.
	Result     JoinResult
	Membership []ClusterNode

	// Callbacked marks that the JOIN_REQUEST handler has fired once, or
	// that the BLOCK handler has already returned pause==true. It
	// prevents double invocation of check_join and of block_handler.
	Callbacked bool
}
