package loop

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/martinemde/llmloop/backend"
	"github.com/martinemde/llmloop/toolbox"
)

// CompletionMarker is the sentinel string the model includes in its response
// text to signal the goal is achieved. Matching is case-insensitive.
const CompletionMarker = "TASK_COMPLETE"

// ContainsCompletionMarker reports whether text carries the marker.
func ContainsCompletionMarker(text string) bool {
	return strings.Contains(strings.ToUpper(text), CompletionMarker)
}

// TurnOutcome summarizes one major turn.
type TurnOutcome struct {
	// Text is the accumulated response text across all rounds of the turn.
	Text string
	// ToolCalls reports whether any round requested tool calls.
	ToolCalls bool
	// Completed reports whether Text carries the completion marker.
	Completed bool
	// Rounds is the number of model rounds completed, including the first.
	Rounds int
	// Err holds a transport-level failure. A turn with Err set still closed
	// cleanly; the session decides what happens next.
	Err error
}

// TurnController drives one turn: it sends the directive plus history to the
// backend, streams the response text to the output writer, and chains
// tool-call round trips up to the configured limit.
type TurnController struct {
	backend  backend.Backend
	registry *toolbox.Registry
	invoker  *Invoker
	config   Config
	output   io.Writer // model text only
}

// NewTurnController creates a TurnController. Model text goes to output;
// everything else is the session's concern.
func NewTurnController(b backend.Backend, registry *toolbox.Registry, invoker *Invoker, cfg Config, output io.Writer) *TurnController {
	return &TurnController{backend: b, registry: registry, invoker: invoker, config: cfg, output: output}
}

// RunTurn executes one turn against the given history and returns the updated
// history alongside the outcome. The history slice is owned by the caller;
// RunTurn only appends. A non-empty directive becomes a user message first.
//
// Tool calls are invoked in the order the backend emits them, each receiving
// exactly one result before the turn closes. Completed tool rounds are capped
// by ChainLimit when positive; reaching the cap ends the turn without error.
func (t *TurnController) RunTurn(ctx context.Context, history []backend.Message, directive string) ([]backend.Message, TurnOutcome) {
	if directive != "" {
		history = append(history, backend.UserMessage(directive))
	}

	var outcome TurnOutcome
	var text strings.Builder
	chained := 0

	for {
		stream, err := t.backend.Round(ctx, t.request(history))
		if err != nil {
			outcome.Err = err
			break
		}

		for fragment := range stream.Fragments() {
			text.WriteString(fragment)
			fmt.Fprint(t.output, fragment)
		}

		result, err := stream.Finalize()
		if err != nil {
			outcome.Err = err
			break
		}
		outcome.Rounds++
		fmt.Fprintln(t.output)

		history = append(history, backend.AssistantMessage(result.Text, result.ToolCalls))
		if len(result.ToolCalls) == 0 {
			break
		}

		outcome.ToolCalls = true
		results := make([]backend.ToolCallResult, 0, len(result.ToolCalls))
		for _, call := range result.ToolCalls {
			results = append(results, t.invoker.Invoke(call))
		}
		history = append(history, backend.ToolResultsMessage(results))

		chained++
		if t.config.ChainLimit > 0 && chained >= t.config.ChainLimit {
			break
		}
	}

	outcome.Text = text.String()
	outcome.Completed = ContainsCompletionMarker(outcome.Text)
	return history, outcome
}

func (t *TurnController) request(history []backend.Message) backend.RoundRequest {
	return backend.RoundRequest{
		Model:    t.config.Model,
		System:   t.config.SystemPrompt,
		Messages: history,
		Tools:    t.registry.Specs(),
		Options:  t.config.Options,
		APIKey:   t.config.APIKey,
	}
}
