// Package traceclient talks to the external utility network service over
// HTTP: identify lookups for point collection and trace submission.
//
// The client implements workflow.Identifier, workflow.ElementFactory and
// workflow.TraceRunner. Identify responses carry the element
// classification, which the client caches so ElementFor resolves without
// a second round trip. Submission is retried with
// exponential backoff on transport errors and 5xx responses; 4xx responses
// are permanent failures and surface immediately. Cancelling the request
// context stops both in-flight requests and the retry loop.
//
// The wire format tags each outcome with a kind so the sealed result
// variants decode without ambiguity:
//
//	{"outcomes": [
//	  {"kind": "elements", "elements": [...]},
//	  {"kind": "geometry", "layer": "line", "lines": [[{"x":0,"y":0}, ...]]}
//	]}
package traceclient
