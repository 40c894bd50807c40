package loop

import (
	"fmt"
	"io"

	"github.com/martinemde/llmloop/backend"
	"github.com/martinemde/llmloop/toolbox"
)

// Invoker executes model-requested tool calls against the registry. Approval
// gating and debug observation are configured per session. Every failure mode
// (unknown tool, bad arguments, declined approval, execution error, panic) is
// contained here and returned as an error result; nothing propagates to the
// turn.
type Invoker struct {
	registry *toolbox.Registry
	prompter Prompter
	approve  bool
	debug    io.Writer // nil disables debug output
}

// NewInvoker creates an Invoker. Pass a nil debug writer to disable the
// tool-call trace.
func NewInvoker(registry *toolbox.Registry, prompter Prompter, approve bool, debug io.Writer) *Invoker {
	return &Invoker{registry: registry, prompter: prompter, approve: approve, debug: debug}
}

// Invoke produces exactly one result for the request. No retries: a failed
// call is reported once and retrying is the model's decision.
func (inv *Invoker) Invoke(req backend.ToolCallRequest) backend.ToolCallResult {
	result := inv.run(req)
	if inv.debug != nil {
		fmt.Fprintf(inv.debug, "Tool call: %s(%s)\n", req.Name, string(req.Arguments))
		if result.IsError {
			fmt.Fprintf(inv.debug, "  Error: %s\n", result.Output)
		} else {
			fmt.Fprintf(inv.debug, "  Result: %s\n", result.Output)
		}
	}
	return result
}

func (inv *Invoker) run(req backend.ToolCallRequest) backend.ToolCallResult {
	tool, ok := inv.registry.Resolve(req.Name)
	if !ok {
		return errorResult(req.ID, fmt.Sprintf("tool %q not found", req.Name))
	}

	args, err := toolbox.ParseArguments(req.Arguments)
	if err != nil {
		return errorResult(req.ID, err.Error())
	}

	if inv.approve {
		approved, err := inv.prompter.Confirm(
			fmt.Sprintf("Approve tool call %s(%s)?", req.Name, string(req.Arguments)), false)
		if err != nil || !approved {
			return errorResult(req.ID, "invocation declined by operator")
		}
	}

	output, err := execute(tool, args)
	if err != nil {
		return errorResult(req.ID, err.Error())
	}
	return backend.ToolCallResult{
		CallID: req.ID,
		Output: toolbox.TruncateToolOutput(output, req.Name),
	}
}

// execute runs the tool body, converting a panic into an error.
func execute(tool toolbox.Descriptor, args map[string]interface{}) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", tool.Name, r)
		}
	}()
	return tool.Run(args)
}

func errorResult(callID, message string) backend.ToolCallResult {
	return backend.ToolCallResult{CallID: callID, Output: message, IsError: true}
}
