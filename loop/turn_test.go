package loop

import (
	"bytes"
	"context"
	"testing"

	"github.com/martinemde/llmloop/backend"
	"github.com/martinemde/llmloop/backend/backendtest"
)

func newTurnController(b backend.Backend, cfg Config, executed *int, output *bytes.Buffer) *TurnController {
	reg := echoRegistry(executed)
	invoker := NewInvoker(reg, &scriptedPrompter{}, false, nil)
	return NewTurnController(b, reg, invoker, cfg, output)
}

func TestRunTurnPlainTextAnswer(t *testing.T) {
	scripted := backendtest.NewScripted("test-model", backendtest.Round{
		Fragments: []string{"The files ", "are listed."},
	})
	var output bytes.Buffer
	tc := newTurnController(scripted, Config{Model: "test-model"}, nil, &output)

	history, outcome := tc.RunTurn(context.Background(), nil, "list files")

	if outcome.Err != nil {
		t.Fatalf("outcome.Err = %v", outcome.Err)
	}
	if outcome.ToolCalls {
		t.Error("no tool calls were scripted")
	}
	if outcome.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", outcome.Rounds)
	}
	if outcome.Text != "The files are listed." {
		t.Errorf("Text = %q", outcome.Text)
	}
	if !bytes.Contains(output.Bytes(), []byte("The files are listed.")) {
		t.Error("fragments not forwarded to the output writer")
	}

	// Directive becomes a user message; the assistant reply follows.
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != backend.RoleUser || history[0].Text != "list files" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != backend.RoleAssistant {
		t.Errorf("history[1].Role = %q", history[1].Role)
	}
}

func TestRunTurnEmptyDirectiveNotAppended(t *testing.T) {
	scripted := backendtest.NewScripted("test-model", backendtest.Round{
		Fragments: []string{"continuing"},
	})
	var output bytes.Buffer
	tc := newTurnController(scripted, Config{}, nil, &output)

	prior := []backend.Message{backend.UserMessage("original goal")}
	history, _ := tc.RunTurn(context.Background(), prior, "")

	if len(history) != 2 {
		t.Fatalf("history length = %d, want prior message plus reply", len(history))
	}
	if len(scripted.Requests[0].Messages) != 1 {
		t.Errorf("request carried %d messages, want just the prior history", len(scripted.Requests[0].Messages))
	}
}

func TestRunTurnChainsToolCalls(t *testing.T) {
	executed := 0
	scripted := backendtest.NewScripted("test-model",
		backendtest.Round{
			Fragments: []string{"Writing the file."},
			ToolCalls: []backend.ToolCallRequest{callReq("c1", "echo", `{"text": "one"}`)},
		},
		backendtest.Round{Fragments: []string{"Done writing."}},
	)
	var output bytes.Buffer
	tc := newTurnController(scripted, Config{}, &executed, &output)

	history, outcome := tc.RunTurn(context.Background(), nil, "write a file")

	if !outcome.ToolCalls {
		t.Error("ToolCalls should be true")
	}
	if outcome.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", outcome.Rounds)
	}
	if executed != 1 {
		t.Errorf("executed = %d, want 1", executed)
	}

	// user, assistant+calls, tool results, assistant
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	results := history[2]
	if results.Role != backend.RoleTool || len(results.ToolResults) != 1 {
		t.Fatalf("history[2] = %+v, want one tool result", results)
	}
	if results.ToolResults[0].CallID != "c1" {
		t.Errorf("result CallID = %q", results.ToolResults[0].CallID)
	}
}

func TestRunTurnChainLimitCapsRoundTrips(t *testing.T) {
	executed := 0
	rounds := make([]backendtest.Round, 5)
	for i := range rounds {
		rounds[i] = backendtest.Round{
			Fragments: []string{"calling again"},
			ToolCalls: []backend.ToolCallRequest{callReq("c", "echo", `{"text": "x"}`)},
		}
	}
	scripted := backendtest.NewScripted("test-model", rounds...)
	var output bytes.Buffer
	tc := newTurnController(scripted, Config{ChainLimit: 2}, &executed, &output)

	_, outcome := tc.RunTurn(context.Background(), nil, "go")

	if outcome.Err != nil {
		t.Fatalf("reaching the chain limit must not be an error: %v", outcome.Err)
	}
	if executed != 2 {
		t.Errorf("executed = %d, want exactly 2 round trips", executed)
	}
	if scripted.RoundsServed() != 2 {
		t.Errorf("rounds served = %d, want 2", scripted.RoundsServed())
	}
}

func TestRunTurnUnlimitedChainWhenZero(t *testing.T) {
	executed := 0
	scripted := backendtest.NewScripted("test-model",
		backendtest.Round{ToolCalls: []backend.ToolCallRequest{callReq("c1", "echo", `{}`)}},
		backendtest.Round{ToolCalls: []backend.ToolCallRequest{callReq("c2", "echo", `{}`)}},
		backendtest.Round{ToolCalls: []backend.ToolCallRequest{callReq("c3", "echo", `{}`)}},
		backendtest.Round{Fragments: []string{"finished"}},
	)
	var output bytes.Buffer
	tc := newTurnController(scripted, Config{ChainLimit: 0}, &executed, &output)

	_, outcome := tc.RunTurn(context.Background(), nil, "go")

	if executed != 3 {
		t.Errorf("executed = %d, want all 3 chained calls", executed)
	}
	if outcome.Rounds != 4 {
		t.Errorf("Rounds = %d, want 4", outcome.Rounds)
	}
}

func TestRunTurnEveryRequestGetsOneResult(t *testing.T) {
	scripted := backendtest.NewScripted("test-model",
		backendtest.Round{ToolCalls: []backend.ToolCallRequest{
			callReq("c1", "echo", `{"text": "a"}`),
			callReq("c2", "ghost", `{}`),
			callReq("c3", "echo", `{"text": "b"}`),
		}},
		backendtest.Round{Fragments: []string{"done"}},
	)
	var output bytes.Buffer
	tc := newTurnController(scripted, Config{}, nil, &output)

	history, _ := tc.RunTurn(context.Background(), nil, "go")

	var results []backend.ToolCallResult
	for _, m := range history {
		if m.Role == backend.RoleTool {
			results = append(results, m.ToolResults...)
		}
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want one per request", len(results))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if results[i].CallID != want {
			t.Errorf("results[%d].CallID = %q, want %q", i, results[i].CallID, want)
		}
	}
	if !results[1].IsError {
		t.Error("unresolved tool must produce an error result")
	}
}

func TestRunTurnCompletionMarkerCaseInsensitive(t *testing.T) {
	for _, text := range []string{"TASK_COMPLETE", "task_complete", "All done. Task_Complete."} {
		scripted := backendtest.NewScripted("test-model", backendtest.Round{Fragments: []string{text}})
		var output bytes.Buffer
		tc := newTurnController(scripted, Config{}, nil, &output)

		_, outcome := tc.RunTurn(context.Background(), nil, "go")
		if !outcome.Completed {
			t.Errorf("Completed = false for %q", text)
		}
	}
}

func TestRunTurnTransportErrorClosesCleanly(t *testing.T) {
	scripted := backendtest.NewScripted("test-model", backendtest.Round{
		Fragments: []string{"partial "},
		Err:       backendtest.ErrTransport,
	})
	var output bytes.Buffer
	tc := newTurnController(scripted, Config{}, nil, &output)

	history, outcome := tc.RunTurn(context.Background(), nil, "go")

	if outcome.Err == nil {
		t.Fatal("expected outcome.Err")
	}
	if outcome.Text != "partial " {
		t.Errorf("Text = %q, want the partial stream", outcome.Text)
	}
	// The directive stays in history even though the round failed.
	if len(history) != 1 || history[0].Role != backend.RoleUser {
		t.Errorf("history = %+v", history)
	}
}
