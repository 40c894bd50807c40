package loop

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/martinemde/llmloop/backend"
	"github.com/martinemde/llmloop/backend/backendtest"
	"github.com/martinemde/llmloop/sessionlog"
	"github.com/martinemde/llmloop/toolbox"
)

// memorySink collects records, optionally failing every append.
type memorySink struct {
	records []sessionlog.Record
	fail    bool
}

func (s *memorySink) Append(r sessionlog.Record) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, r)
	return nil
}

type sessionHarness struct {
	scripted *backendtest.Scripted
	prompter *scriptedPrompter
	sink     *memorySink
	output   bytes.Buffer
	status   bytes.Buffer
	session  *Session
}

func newSessionHarness(t *testing.T, cfg Config, prompter *scriptedPrompter, registry *toolbox.Registry, rounds ...backendtest.Round) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		scripted: backendtest.NewScripted("test-model", rounds...),
		prompter: prompter,
		sink:     &memorySink{},
	}
	if registry == nil {
		registry = echoRegistry(nil)
	}
	h.session = NewSession(cfg, h.scripted, registry, h.prompter, h.sink, &h.output, &h.status)
	return h
}

func goalConfig() Config {
	return Config{Model: "test-model", Goal: "build the landing page", MaxTurns: 25}
}

// lastUserMessage returns the trailing user message of a request.
func lastUserMessage(t *testing.T, req backend.RoundRequest) string {
	t.Helper()
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == backend.RoleUser {
			return req.Messages[i].Text
		}
	}
	t.Fatal("no user message in request")
	return ""
}

func TestSessionCompletionMarkerTerminates(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{}, nil,
		backendtest.Round{Fragments: []string{"Page is live. TASK_COMPLETE"}},
	)

	result := h.session.Run(context.Background())

	if !result.Completed || result.Err != nil {
		t.Errorf("result = %+v, want successful completion", result)
	}
	if result.TotalTurns != 1 {
		t.Errorf("TotalTurns = %d, want 1", result.TotalTurns)
	}
	if len(h.prompter.questions) != 0 {
		t.Errorf("completion must not prompt; asked %v", h.prompter.questions)
	}
}

func TestSessionCompletionMarkerAnyCase(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{}, nil,
		backendtest.Round{Fragments: []string{"done, task_complete"}},
	)

	if result := h.session.Run(context.Background()); !result.Completed {
		t.Error("lowercase marker must complete the session")
	}
}

func TestSessionFirstDirectiveIsGoal(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{}, nil,
		backendtest.Round{Fragments: []string{"TASK_COMPLETE"}},
	)
	h.session.Run(context.Background())

	if got := lastUserMessage(t, h.scripted.Requests[0]); got != "build the landing page" {
		t.Errorf("first directive = %q, want the goal", got)
	}
}

func TestSessionPlainAnswerDeclineTerminatesNormally(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{confirms: []bool{false}}, nil,
		backendtest.Round{Fragments: []string{"Here is my answer."}},
	)

	result := h.session.Run(context.Background())

	if result.Completed || result.Err != nil {
		t.Errorf("result = %+v, want normal termination", result)
	}
	if len(h.prompter.questions) != 1 {
		t.Errorf("asked %d questions, want 1 continue prompt", len(h.prompter.questions))
	}
}

func TestSessionPlainAnswerEmptyDirectiveContinuesTowardGoal(t *testing.T) {
	h := newSessionHarness(t, goalConfig(),
		&scriptedPrompter{confirms: []bool{true}, asks: []string{""}}, nil,
		backendtest.Round{Fragments: []string{"I think that's it."}},
		backendtest.Round{Fragments: []string{"TASK_COMPLETE"}},
	)

	result := h.session.Run(context.Background())

	if !result.Completed {
		t.Fatalf("result = %+v", result)
	}
	directive := lastUserMessage(t, h.scripted.Requests[1])
	if !strings.Contains(directive, "Continue working on the goal") ||
		!strings.Contains(directive, "build the landing page") {
		t.Errorf("directive = %q, want continue-toward-goal referencing the goal", directive)
	}
}

func TestSessionPlainAnswerVerbatimDirective(t *testing.T) {
	h := newSessionHarness(t, goalConfig(),
		&scriptedPrompter{confirms: []bool{true}, asks: []string{"add a contact form"}}, nil,
		backendtest.Round{Fragments: []string{"Landing page drafted."}},
		backendtest.Round{Fragments: []string{"TASK_COMPLETE"}},
	)

	result := h.session.Run(context.Background())

	if !result.Completed {
		t.Fatalf("result = %+v", result)
	}
	if got := lastUserMessage(t, h.scripted.Requests[1]); got != "add a contact form" {
		t.Errorf("directive = %q, want the operator's text verbatim", got)
	}
}

func TestSessionPlainAnswerExitTerminates(t *testing.T) {
	h := newSessionHarness(t, goalConfig(),
		&scriptedPrompter{confirms: []bool{true}, asks: []string{"exit"}}, nil,
		backendtest.Round{Fragments: []string{"Anything else?"}},
	)

	result := h.session.Run(context.Background())

	if result.Completed || result.Err != nil {
		t.Errorf("result = %+v, want normal termination on exit", result)
	}
	if h.scripted.RoundsServed() != 1 {
		t.Errorf("rounds served = %d, want 1", h.scripted.RoundsServed())
	}
}

func TestSessionTransportErrorAbort(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{confirms: []bool{false}}, nil,
		backendtest.Round{Err: backendtest.ErrTransport},
	)

	result := h.session.Run(context.Background())

	if !errors.Is(result.Err, backendtest.ErrTransport) {
		t.Errorf("result.Err = %v, want the transport failure", result.Err)
	}
}

func TestSessionTransportErrorRecovery(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{confirms: []bool{true}}, nil,
		backendtest.Round{Err: backendtest.ErrTransport},
		backendtest.Round{Fragments: []string{"Recovered. TASK_COMPLETE"}},
	)

	result := h.session.Run(context.Background())

	if !result.Completed {
		t.Fatalf("result = %+v, want completion after recovery", result)
	}
	directive := lastUserMessage(t, h.scripted.Requests[1])
	if !strings.Contains(directive, "An error occurred") ||
		!strings.Contains(directive, "build the landing page") {
		t.Errorf("recovery directive = %q, want it to reference the original goal", directive)
	}
	if result.TotalTurns != 2 {
		t.Errorf("TotalTurns = %d, want 2", result.TotalTurns)
	}
}

func TestSessionToolTurnsContinueWithEmptyDirective(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{}, nil,
		// Turn 1: a tool round then a closing text round.
		backendtest.Round{ToolCalls: []backend.ToolCallRequest{callReq("c1", "echo", `{"text": "x"}`)}},
		backendtest.Round{Fragments: []string{"Progress made. TASK_COMPLETE"}},
	)

	result := h.session.Run(context.Background())

	if !result.Completed {
		t.Fatalf("result = %+v", result)
	}
	if len(h.prompter.questions) != 0 {
		t.Errorf("tool turns within budget must not prompt; asked %v", h.prompter.questions)
	}
}

func TestSessionMaxTurnsPromptAndReset(t *testing.T) {
	cfg := goalConfig()
	cfg.MaxTurns = 1

	h := newSessionHarness(t, cfg,
		&scriptedPrompter{confirms: []bool{true}, asks: []string{""}}, nil,
		// Turn 1 involves tool calls so only the budget check fires.
		backendtest.Round{ToolCalls: []backend.ToolCallRequest{callReq("c1", "echo", `{}`)}},
		backendtest.Round{Fragments: []string{"still working"}},
		// Turn 2 after the operator continues.
		backendtest.Round{Fragments: []string{"TASK_COMPLETE"}},
	)

	result := h.session.Run(context.Background())

	if !result.Completed {
		t.Fatalf("result = %+v", result)
	}
	if result.TotalTurns != 2 {
		t.Errorf("TotalTurns = %d, want 2", result.TotalTurns)
	}
	joined := strings.Join(h.prompter.questions, " | ")
	if !strings.Contains(joined, "Reached 1 turns") {
		t.Errorf("questions = %q, want the budget prompt", joined)
	}
}

func TestSessionMaxTurnsDeclineTerminates(t *testing.T) {
	cfg := goalConfig()
	cfg.MaxTurns = 1

	h := newSessionHarness(t, cfg, &scriptedPrompter{confirms: []bool{false}}, nil,
		backendtest.Round{ToolCalls: []backend.ToolCallRequest{callReq("c1", "echo", `{}`)}},
		backendtest.Round{Fragments: []string{"still working"}},
	)

	result := h.session.Run(context.Background())

	if result.Completed || result.Err != nil {
		t.Errorf("result = %+v, want normal termination", result)
	}
	if result.TotalTurns != 1 {
		t.Errorf("TotalTurns = %d, want 1", result.TotalTurns)
	}
}

func TestSessionLogsEveryTurn(t *testing.T) {
	h := newSessionHarness(t, goalConfig(),
		&scriptedPrompter{confirms: []bool{true}, asks: []string{""}}, nil,
		backendtest.Round{Fragments: []string{"first answer"}},
		backendtest.Round{Fragments: []string{"TASK_COMPLETE"}},
	)

	h.session.Run(context.Background())

	if len(h.sink.records) != 2 {
		t.Fatalf("logged %d records, want 2", len(h.sink.records))
	}
	first := h.sink.records[0]
	if first.Iteration != 1 || first.Model != "test-model" {
		t.Errorf("first record = %+v", first)
	}
	if first.Directive != "build the landing page" {
		t.Errorf("first record directive = %q", first.Directive)
	}
	if first.Response != "first answer" {
		t.Errorf("first record response = %q", first.Response)
	}
	if h.sink.records[1].Iteration != 2 {
		t.Errorf("second record iteration = %d", h.sink.records[1].Iteration)
	}
	if first.Session == "" || first.Session != h.sink.records[1].Session {
		t.Error("records must share a non-empty session id")
	}
}

func TestSessionLogFailureIsNonFatal(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{}, nil,
		backendtest.Round{Fragments: []string{"TASK_COMPLETE"}},
	)
	h.sink.fail = true

	result := h.session.Run(context.Background())

	if !result.Completed {
		t.Errorf("result = %+v, logging failure must not abort", result)
	}
	if !strings.Contains(h.status.String(), "Warning") {
		t.Error("expected a warning about the failed log append")
	}
}

func TestSessionModelTextGoesToOutputOnly(t *testing.T) {
	h := newSessionHarness(t, goalConfig(), &scriptedPrompter{}, nil,
		backendtest.Round{Fragments: []string{"model words TASK_COMPLETE"}},
	)

	h.session.Run(context.Background())

	if !strings.Contains(h.output.String(), "model words") {
		t.Error("model text missing from output stream")
	}
	if strings.Contains(h.status.String(), "model words") {
		t.Error("model text leaked into the status stream")
	}
}
