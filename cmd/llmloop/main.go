// Command llmloop runs a goal-directed agent loop against a language model,
// executing the file and shell tools the model requests until the goal is
// achieved or the operator stops the session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/martinemde/llmloop/backend"
	"github.com/martinemde/llmloop/loop"
	"github.com/martinemde/llmloop/sessionlog"
	"github.com/martinemde/llmloop/toolbox"
)

const defaultGoal = "create a simple landing page in flask for an underground pokemon fighting club"

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		model        string
		system       string
		toolSpecs    stringList
		toolSources  stringList
		options      stringList
		toolsDebug   bool
		toolsApprove bool
		chainLimit   int
		maxTurns     int
		apiKey       string
		logPath      string
		noLog        bool
		forceLog     bool
	)

	flags := flag.NewFlagSet("llmloop", flag.ExitOnError)
	flags.StringVar(&model, "m", envOr("LLM_MODEL", backend.DefaultModelID), "model id or alias")
	flags.StringVar(&model, "model", envOr("LLM_MODEL", backend.DefaultModelID), "model id or alias")
	flags.StringVar(&system, "s", "", "system prompt override")
	flags.StringVar(&system, "system", "", "system prompt override")
	flags.Var(&toolSpecs, "T", "named tool spec, e.g. devtools or Time(utc=true) (repeatable)")
	flags.Var(&toolSpecs, "tool", "named tool spec (repeatable)")
	flags.Var(&toolSources, "functions", "path to a JavaScript tool source (repeatable)")
	flags.Var(&options, "o", "model option as key=value (repeatable)")
	flags.BoolVar(&toolsDebug, "tools-debug", envBool("LLM_TOOLS_DEBUG"), "print every tool call and result")
	flags.BoolVar(&toolsApprove, "tools-approve", false, "ask for approval before each tool call")
	flags.IntVar(&chainLimit, "internal-cl", 0, "tool round trips per turn, 0 = unlimited")
	flags.IntVar(&maxTurns, "max-turns", 25, "turns before a continuation prompt, 0 = unlimited")
	flags.StringVar(&apiKey, "key", "", "API key override")
	flags.StringVar(&logPath, "d", "", "session log path")
	flags.StringVar(&logPath, "database", "", "session log path")
	flags.BoolVar(&noLog, "n", false, "disable session logging")
	flags.BoolVar(&noLog, "no-log", false, "disable session logging")
	flags.BoolVar(&forceLog, "log", false, "force session logging on")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: llmloop [options] [goal]\n\nOptions:\n")
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:])

	goal := defaultGoal
	if flags.NArg() > 0 {
		goal = strings.Join(flags.Args(), " ")
	}

	modelOptions, err := parseOptions(options)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if system == "" {
		system = loop.DefaultSystemPrompt(goal)
	}

	cfg := loop.Config{
		Model:        model,
		SystemPrompt: system,
		Goal:         goal,
		MaxTurns:     maxTurns,
		ChainLimit:   chainLimit,
		ToolsDebug:   toolsDebug,
		ToolsApprove: toolsApprove,
		LogEnabled:   loop.ResolveLogging(forceLog, noLog, envBool("LLMLOOP_LOGS_OFF")),
		LogPath:      logPath,
		Options:      modelOptions,
		APIKey:       apiKey,
	}

	b, err := backend.NewGollmBackend(cfg.Model, cfg.APIKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var cfgErr *backend.ConfigurationError
		if errors.As(err, &cfgErr) {
			return 2
		}
		return 1
	}

	registry := buildRegistry(toolSpecs, toolSources)

	sink := buildSink(cfg)

	prompter := loop.NewTerminalPrompter(os.Stdin, os.Stderr)
	session := loop.NewSession(cfg, b, registry, prompter, sink, os.Stdout, os.Stderr)

	printBanner(cfg, b.ModelID(), registry)

	result := session.Run(context.Background())
	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "Session ended with error: %v\n", result.Err)
		return 1
	}
	return 0
}

// buildRegistry assembles the tool set from named specs and script sources.
// Load failures are warnings; the session proceeds with what loaded.
func buildRegistry(specs, sources []string) *toolbox.Registry {
	registry := toolbox.NewRegistry()
	for _, spec := range specs {
		descriptors, err := toolbox.ResolveSpec(spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping tool spec: %v\n", err)
			continue
		}
		registry.RegisterAll(descriptors)
	}
	for _, path := range sources {
		descriptors, err := toolbox.LoadScriptTools(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping tool source: %v\n", err)
			continue
		}
		registry.RegisterAll(descriptors)
	}
	for _, warning := range registry.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	if registry.Count() == 0 {
		fmt.Fprintln(os.Stderr, "Warning: no tools specified; the model can only answer with text. "+
			"Pass -T devtools for the built-in file and shell tools.")
	}
	return registry
}

// buildSink sets up session logging. Initialization failure downgrades to a
// discard sink with a warning.
func buildSink(cfg loop.Config) sessionlog.Sink {
	if !cfg.LogEnabled {
		return sessionlog.Discard{}
	}
	sink, err := sessionlog.NewJSONL(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not initialize session log: %v\n", err)
		return sessionlog.Discard{}
	}
	fmt.Fprintf(os.Stderr, "Logging to %s\n", sink.Path())
	return sink
}

func printBanner(cfg loop.Config, modelID string, registry *toolbox.Registry) {
	fmt.Fprintf(os.Stderr, "Goal: %s\n", cfg.Goal)

	preview := cfg.SystemPrompt
	if len(preview) > 300 {
		preview = preview[:300] + "..."
	}
	fmt.Fprintf(os.Stderr, "System prompt (truncated):\n%s\n", preview)
	fmt.Fprintf(os.Stderr, "Model: %s\n", modelID)
	if registry.Count() > 0 {
		fmt.Fprintf(os.Stderr, "Tools: %s\n", strings.Join(registry.Names(), ", "))
	}
	fmt.Fprintf(os.Stderr, "Max turns before prompt: %s\n", unlimitedDisplay(cfg.MaxTurns))
	fmt.Fprintf(os.Stderr, "Internal chain limit per turn: %s\n", unlimitedDisplay(cfg.ChainLimit))
}

func unlimitedDisplay(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

// parseOptions converts repeated key=value pairs into a map. A malformed pair
// is a configuration error.
func parseOptions(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	options := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("malformed option %q: expected key=value", pair)
		}
		options[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return options, nil
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envBool(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
