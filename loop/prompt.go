package loop

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter solicits operator decisions. Every call blocks until the operator
// answers; nothing else proceeds while a prompt is pending.
type Prompter interface {
	// Confirm asks a yes/no question. An empty answer returns def.
	Confirm(question string, def bool) (bool, error)

	// Ask solicits free-form text. An empty answer returns def.
	Ask(question, def string) (string, error)
}

// TerminalPrompter prompts on an output stream and reads answers from an
// input stream, normally stderr and stdin.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter over the given streams.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// Confirm asks a [y/N] style question.
func (p *TerminalPrompter) Confirm(question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s [%s]: ", question, hint)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return def, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Ask prompts for a line of text.
func (p *TerminalPrompter) Ask(question, def string) (string, error) {
	fmt.Fprintf(p.out, "%s> ", question)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return def, err
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}
