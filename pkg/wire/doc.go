// Package wire implements the binary framing used between bridge clients and
// worker hosts over WebSocket.
//
// # Wire Format
//
// Every WebSocket binary message carries one frame with a 4-byte header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Reserved     │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (2 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameHello (0x00): handshake, client first, then server
//   - FrameInput (0x01): client → worker message
//   - FrameOutput (0x02): worker → client message
//   - FrameClose (0x03): orderly shutdown with a reason
//   - FrameError (0x04): error report, optionally fatal
//
// Input and Output payloads are opaque to this package; the transports put
// JSON there. Hello, Close and Error payloads use varint-length-prefixed
// strings and big-endian fixed-width integers.
//
// # Handshake
//
//	client                               host
//	  │── Hello{Version}  ──────────────────▶│
//	  │◀───────────── Hello{Version, ConnID} │  (or Error{Fatal})
//	  │── Input ... ────────────────────────▶│
//	  │◀─────────────────────────── Output...│
//	  │── Close{Normal} ────────────────────▶│
package wire
