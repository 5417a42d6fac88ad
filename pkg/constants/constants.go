package constants

// Version is the protocol version written into document snapshots.
// Peers with a different non-development version only produce a warning.
const Version = "0.12.5"

const (
	// DefaultTitle is the title of a freshly created document.
	DefaultTitle = "Bokeh Application"

	// IDAttr is never part of a model's attribute map; it lives on the model itself.
	IDAttr = "id"
	// NameAttr is indexed by the document for name lookups.
	NameAttr = "name"
	// SubscribedEventsAttr lists the event names a model forwards to the remote peer.
	SubscribedEventsAttr = "subscribed_events"
)

// Patch event kinds as they appear on the wire.
const (
	KindModelChanged    = "ModelChanged"
	KindRootAdded       = "RootAdded"
	KindRootRemoved     = "RootRemoved"
	KindTitleChanged    = "TitleChanged"
	KindColumnsStreamed = "ColumnsStreamed"
	KindColumnsPatched  = "ColumnsPatched"
)

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
)

// Transport message types.
const (
	MsgTypeEvent    = "EVENT"
	MsgTypePatchDoc = "PATCH-DOC"
	MsgTypePullDoc  = "PULL-DOC-REPLY"
)

const (
	// MessageIDLength size of the id attached to every outbound message
	MessageIDLength = 16
	// CloseMessageCode identifier the message id for a close request
	CloseMessageCode = 1000
	// DefaultQueueSize is the number of outbound messages buffered by a transport.
	DefaultQueueSize = 64
)
