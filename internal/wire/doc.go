// Package wire implements the gateway frame codec.
//
// # Overview
//
// Every frame on the gateway connection is one JSON object:
//
//	{"s": <kind 0..6>, "d": <payload, kind dependent>, "sn": <sequence>}
//
// The "s" discriminant selects one of seven message types. Decode reads "s"
// and "sn" first and only then decodes "d" against the schema that kind
// requires, so unrelated top-level fields are ignored instead of rejected.
//
// # Kinds
//
//	| s | type       | d                         | sn  |
//	|---|------------|---------------------------|-----|
//	| 0 | EventFrame | event object              | yes |
//	| 1 | Hello      | {code, session_id?}       | no  |
//	| 2 | Ping       | -                         | yes |
//	| 3 | Pong       | -                         | no  |
//	| 4 | Resume     | -                         | yes |
//	| 5 | Reconnect  | {code, err}               | no  |
//	| 6 | ResumeAck  | {session_id}              | no  |
//
// Message is a closed set: only the seven types in this package implement it.
// Callers switch on the concrete type.
//
// # Errors
//
// Decode failures are returned as *DecodeError and match one of the sentinels
// with errors.Is:
//
//   - ErrMalformedFrame: not a JSON object, or "s"/"sn" has the wrong type
//   - ErrUnknownKind: "s" outside 0..6
//   - ErrShapeMismatch: "d" or "sn" does not fit the kind
//
// # Events
//
// Event carries the common header shared by every platform event (author,
// target, content, message id) and keeps "extra" as raw JSON. Helpers decode
// the parts of "extra" that handlers commonly need.
package wire
