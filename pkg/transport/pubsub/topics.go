package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// DefaultTopic is the default topic prefix.
const DefaultTopic = "bridge"

// Metadata keys.
const (
	MetaKind   = "bridge_kind"
	MetaConn   = "bridge_conn"
	MetaWorker = "bridge_worker"
)

// Message kinds.
const (
	KindOpen   = "open"
	KindInput  = "input"
	KindClose  = "close"
	KindOpened = "opened"
	KindOutput = "output"
	KindError  = "error"
	KindClosed = "closed"
)

// InputTopic is the topic every client publishes to.
func InputTopic(prefix string) string {
	return prefix + ".in"
}

// OutputTopic is the topic one connection receives on.
func OutputTopic(prefix, connID string) string {
	return prefix + ".out." + connID
}

func newMessage(kind, connID string, payload []byte) *message.Message {
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(MetaKind, kind)
	msg.Metadata.Set(MetaConn, connID)
	return msg
}
