// Package network provides the canonical domain types for gridtrace.
//
// This package contains type definitions and identity hashing only. All
// other internal packages import network; network imports only
// internal/geometry. This keeps it the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Network elements are opaque references into the utility network's
//     logical graph. gridtrace never inspects network topology itself;
//     tracing is performed by an external service.
//   - TraceResult is a sealed variant (ElementOutcome | GeometryOutcome)
//     so consumers can match the closed set of result kinds exhaustively.
//   - Session state is explicit. Credentials and the service endpoint live
//     on a Session value that is passed in, never read from process-global
//     state.
//   - History identity uses canonical JSON and SHA-256 with domain
//     separation. Canonical JSON forbids floats; edge fractions are hashed
//     in parts-per-million.
package network
