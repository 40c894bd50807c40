package toolbox

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of oversized output survives.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Per-tool character limits applied before a result is returned to the model.
var defaultCharLimits = map[string]int{
	"read_file":         50000,
	"run_shell_command": 30000,
	"list_directory":    20000,
	"install_package":   20000,
	"write_file":        1000,
}

var defaultModes = map[string]TruncationMode{
	"read_file":         TruncateHeadTail,
	"run_shell_command": TruncateHeadTail,
	"install_package":   TruncateHeadTail,
	"list_directory":    TruncateTail,
	"write_file":        TruncateTail,
}

var defaultLineLimits = map[string]int{
	"run_shell_command": 256,
	"list_directory":    500,
}

// TruncateOutput applies character-based truncation.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
				"Re-run the tool with more targeted parameters if you need the rest.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation with a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the full pipeline for a tool: character
// truncation first, then line truncation.
func TruncateToolOutput(output, toolName string) string {
	maxChars, ok := defaultCharLimits[toolName]
	if !ok {
		maxChars = 30000
	}
	mode, ok := defaultModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)

	if maxLines, ok := defaultLineLimits[toolName]; ok {
		result = TruncateLines(result, maxLines)
	}
	return result
}
