// Package backend defines the model backend contract consumed by the loop
// and provides the production implementation over gollm.
//
// A backend answers one "round": given a directive, conversation history,
// and the available tool specs, it produces a lazy stream of text fragments.
// Once the stream is exhausted, Finalize exposes structured metadata (the
// tool calls the model requested, the resolved model id, token usage). The
// turn controller owns chaining: it executes the requested tools and asks
// the backend for another round with the results appended to the history.
//
// Errors form a small taxonomy so callers can distinguish configuration
// mistakes (fatal) from transient transport failures (retryable) without
// string matching.
package backend
