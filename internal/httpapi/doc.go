// Package httpapi exposes trace workflow sessions over a JSON HTTP API.
//
// ARCHITECTURE OVERVIEW
//
// Each session owns one workflow. The registry maps session IDs to live
// workflows; a factory builds the workflow (and its collaborators) when a
// session is created, so the server stays agnostic of how identify,
// element lookup and trace execution are wired.
//
// Routes (chi):
//
//	POST   /sessions                      create a session
//	GET    /sessions/{id}                 state snapshot
//	DELETE /sessions/{id}                 drop the session
//	POST   /sessions/{id}/begin           idle -> selecting_points
//	POST   /sessions/{id}/tap             collect a point
//	POST   /sessions/{id}/terminal       disambiguate the pending junction
//	POST   /sessions/{id}/cancel-pending discard the pending item
//	POST   /sessions/{id}/next            -> selecting_trace_type
//	POST   /sessions/{id}/trace-type      select trace type or named config
//	POST   /sessions/{id}/run             submit the trace, respond settled
//	POST   /sessions/{id}/reset           back to idle
//
// Workflow error codes map onto HTTP statuses. A lookup failure is not an
// HTTP error: the tap was ignored and the workflow is unchanged, so the
// response is 200 with ignored:true and the code.
package httpapi
