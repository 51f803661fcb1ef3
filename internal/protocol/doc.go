// Package protocol defines the JSON wire format spoken over the gateway's
// WebSocket endpoint.
//
// Every frame is an Envelope of the form {"event": kind, "data": payload}.
// Client kinds form a closed set; Decode maps each one to a typed Request and
// rejects anything else with ErrUnknownKind. Request outcomes are reported as
// a Result on the kind returned by ResultKind.
package protocol
