package loop

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/llmloop/backend"
	"github.com/martinemde/llmloop/sessionlog"
	"github.com/martinemde/llmloop/toolbox"
)

// Result is the terminal state of a session. Exactly one of the following
// holds: Completed is true (the model signaled the goal achieved), Err is set
// (the operator aborted after a transport failure), or both are zero (the
// operator ended the session normally).
type Result struct {
	Completed  bool
	Err        error
	TotalTurns int
}

// Session is the top-level loop driver. It owns the conversation history and
// all mutable loop state; everything runs on the caller's goroutine.
type Session struct {
	config   Config
	turns    *TurnController
	prompter Prompter
	sink     sessionlog.Sink
	status   io.Writer // banners, warnings, prompt context
	modelID  string

	id         string
	history    []backend.Message
	turnCount  int
	totalTurns int
}

// NewSession assembles a session. Model text is written to output; all status
// goes to status.
func NewSession(cfg Config, b backend.Backend, registry *toolbox.Registry, prompter Prompter, sink sessionlog.Sink, output, status io.Writer) *Session {
	var debug io.Writer
	if cfg.ToolsDebug {
		debug = status
	}
	invoker := NewInvoker(registry, prompter, cfg.ToolsApprove, debug)
	return &Session{
		config:   cfg,
		turns:    NewTurnController(b, registry, invoker, cfg, output),
		prompter: prompter,
		sink:     sink,
		status:   status,
		modelID:  b.ModelID(),
		id:       uuid.New().String(),
	}
}

// Run drives the session to its terminal state. The initial directive is the
// configured goal; subsequent directives come from the termination evaluation
// after each turn.
func (s *Session) Run(ctx context.Context) Result {
	directive := s.config.Goal

	for {
		s.totalTurns++
		s.turnCount++

		maxDisplay := "unlimited"
		if s.config.MaxTurns > 0 {
			maxDisplay = fmt.Sprintf("%d", s.config.MaxTurns)
		}
		fmt.Fprintf(s.status, "\n--- Loop Iteration %d (Turn %d/%s) ---\n",
			s.totalTurns, s.turnCount, maxDisplay)

		var outcome TurnOutcome
		s.history, outcome = s.turns.RunTurn(ctx, s.history, directive)

		s.record(directive, outcome)

		next, done := s.evaluate(outcome)
		if done != nil {
			done.TotalTurns = s.totalTurns
			fmt.Fprintln(s.status, "\n--- Loop finished ---")
			return *done
		}
		directive = next
	}
}

// evaluate applies the termination precedence to a turn outcome. It returns
// either the next directive or a terminal result, never both.
func (s *Session) evaluate(outcome TurnOutcome) (string, *Result) {
	// 1. Explicit completion marker.
	if outcome.Completed {
		fmt.Fprintf(s.status, "Model indicated %s.\n", CompletionMarker)
		return "", &Result{Completed: true}
	}

	// 2. Transport failure: the operator decides whether to recover.
	if outcome.Err != nil {
		fmt.Fprintf(s.status, "\nError during turn: %v\n", outcome.Err)
		cont, err := s.prompter.Confirm("An error occurred. Continue loop?", false)
		if err != nil || !cont {
			return "", &Result{Err: outcome.Err}
		}
		return "An error occurred. Please assess the situation and decide " +
			"the next step to achieve the original goal: " + s.config.Goal, nil
	}

	// 3. Plain textual answer, no tool calls.
	if !outcome.ToolCalls {
		fmt.Fprintln(s.status, "Model provided a textual response without requesting more tools.")
		cont, err := s.prompter.Confirm(
			"Loop iteration complete. Task might be finished. Continue working towards the goal?", false)
		if err != nil || !cont {
			return "", &Result{}
		}
		return s.solicitDirective("Next instruction for the loop (or type 'exit' to stop, " +
			"or press Enter to let the model decide based on history)")
	}

	// 4. Turn budget exhausted.
	if s.config.MaxTurns > 0 && s.turnCount >= s.config.MaxTurns {
		cont, err := s.prompter.Confirm(
			fmt.Sprintf("Reached %d turns in this segment. Continue loop?", s.config.MaxTurns), true)
		if err != nil || !cont {
			return "", &Result{}
		}
		s.turnCount = 0
		return s.solicitDirective("Continuing loop. Next instruction (or press Enter " +
			"to let the model decide based on history)")
	}

	// 5. Tool calls occurred and budget remains: let the model proceed from
	// history alone.
	return "", nil
}

// solicitDirective asks the operator for the next directive. "exit" ends the
// session; an empty answer steers the model back toward the goal.
func (s *Session) solicitDirective(question string) (string, *Result) {
	answer, err := s.prompter.Ask(question, "")
	if err != nil {
		return "", &Result{}
	}
	switch strings.ToLower(answer) {
	case "exit":
		return "", &Result{}
	case "":
		return "Continue working on the goal: " + s.config.Goal, nil
	default:
		return answer, nil
	}
}

// record hands the turn to the log sink. Sink failures are warnings only.
func (s *Session) record(directive string, outcome TurnOutcome) {
	rec := sessionlog.Record{
		Session:   s.id,
		Iteration: s.totalTurns,
		Model:     s.modelID,
		Directive: directive,
		Response:  outcome.Text,
		ToolCalls: outcome.ToolCalls,
		Time:      time.Now(),
	}
	if outcome.Err != nil {
		rec.Err = outcome.Err.Error()
	}
	if err := s.sink.Append(rec); err != nil {
		fmt.Fprintf(s.status, "Warning: failed to log iteration %d: %v\n", s.totalTurns, err)
	}
}
