// Package loop drives an interactive agent session: it repeatedly sends a
// goal-directed directive to a model backend, executes the tool calls the
// model requests, feeds results back, and decides when to stop.
//
// Control flow is strictly sequential. A Session runs turns one at a time;
// within a turn the TurnController chains tool-call round trips up to a
// configurable limit; the Invoker executes each call against the registry.
// Operator prompts are blocking suspension points.
package loop
