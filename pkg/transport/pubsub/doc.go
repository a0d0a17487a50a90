// Package pubsub carries bridge connections over a watermill message bus.
//
// A client Transport and a Server share a topic prefix. All connections
// publish to "<prefix>.in"; each connection receives on its own
// "<prefix>.out.<connID>" topic. Message metadata says what a message is:
//
//	bridge_kind    open | input | close          (client → server)
//	               opened | output | error | closed  (server → client)
//	bridge_conn    connection ID, chosen by the client
//	bridge_worker  worker name, on open only
//
// Input and output payloads are JSON. Error payloads use the wire package's
// ErrorMessage encoding.
//
// Any watermill Publisher/Subscriber pair works. NewRedis builds one on Redis
// Streams; tests use the in-memory gochannel with
// BlockPublishUntilSubscriberAck so delivery order matches publish order.
// Run one Server per topic prefix.
package pubsub
