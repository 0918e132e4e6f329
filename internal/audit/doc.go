// Package audit implements async event dispatching for authentication and
// abuse-control outcomes.
//
// # Components
//
//   - [Sink] is the interface for event consumers (channel, JSON writer, logrus, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event] is the structured audit record: timestamp, type, email, client, route, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authcore or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
