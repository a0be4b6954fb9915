// Package protocol defines the messages exchanged between arena clients and
// the server.
//
// Every frame is a JSON envelope {"type": ..., "payload": {...}}. Inbound
// frames are decoded into one concrete variant per type and validated here,
// so the engine only ever sees well-formed requests. Outbound variants carry
// their own type tag and are encoded with Encode.
package protocol
