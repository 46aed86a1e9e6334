// Package tool defines the contract shared by every invocation path.
//
// The package is split by concern:
//   - definition: tool definitions in value (Definition) and method-set (Tool) form
//   - registry: ordered registration, sealing, and manifest generation
//   - call: invocation requests and the per-call CallContext
//   - response: the Response envelope and its builders
//   - error: structured error codes and registration errors
//   - observability: process-wide call observer hook
//
// Transports, the dispatcher, and the protocol bridge all speak in these
// types so a caller cannot tell which path served a call except through the
// X-Tool-Origin header.
package tool
