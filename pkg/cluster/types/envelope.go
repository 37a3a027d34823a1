package types

// MessageType is the wire-level discriminator for an Envelope.
type MessageType uint8

const (
	MsgJoinRequest MessageType = iota
	MsgJoinResponse
	MsgLeave
	MsgNotify
	MsgBlock
	MsgUnblock
)

func (t MessageType) String() string {
	switch t {
	case MsgJoinRequest:
		return "JOIN_REQUEST"
	case MsgJoinResponse:
		return "JOIN_RESPONSE"
	case MsgLeave:
		return "LEAVE"
	case MsgNotify:
		return "NOTIFY"
	case MsgBlock:
		return "BLOCK"
	case MsgUnblock:
		return "UNBLOCK"
	default:
		return "UNKNOWN"
	}
}

// JoinResult is the outcome of a master-side admission decision,
// meaningful only on a JOIN_RESPONSE envelope/event.
type JoinResult uint8

const (
	JoinSuccess JoinResult = iota
	JoinFail
	JoinMasterTransfer
	JoinLater
)

func (r JoinResult) String() string {
	switch r {
	case JoinSuccess:
		return "SUCCESS"
	case JoinFail:
		return "FAIL"
	case JoinMasterTransfer:
		return "MASTER_TRANSFER"
	case JoinLater:
		return "JOIN_LATER"
	default:
		return "UNKNOWN"
	}
}

// Envelope is the driver's own wire format, carried as the opaque
// payload of every GroupTransport multicast. The membership snapshot is
// only meaningful on a JOIN_RESPONSE; NrNodes is redundant with
// len(Nodes) but kept to match the historical bit-layout this format is
// compatible with.
type Envelope struct {
	Type       MessageType    `codec:"type"`
	Result     JoinResult     `codec:"result"`
	Sender     NodeId         `codec:"sender"`
	Descriptor NodeDescriptor `codec:"descriptor,omitempty"`
	NrNodes    uint32         `codec:"nr_nodes"`
	Nodes      []ClusterNode  `codec:"nodes,omitempty"`
	Payload    []byte         `codec:"payload,omitempty"`
}
