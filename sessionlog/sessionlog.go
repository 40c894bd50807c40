// Package sessionlog persists per-turn records of a loop session. Sink
// failures are always non-fatal to the loop; callers downgrade them to
// warnings.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record summarizes one completed turn for persistence.
type Record struct {
	Session   string    `json:"session"`
	Iteration int       `json:"iteration"`
	Model     string    `json:"model"`
	Directive string    `json:"directive,omitempty"`
	Response  string    `json:"response"`
	ToolCalls bool      `json:"tool_calls"`
	Err       string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Sink receives one record per completed turn, in turn order.
type Sink interface {
	Append(record Record) error
}

// Discard is a Sink that drops every record.
type Discard struct{}

func (Discard) Append(Record) error { return nil }

// JSONL appends records to a file, one JSON object per line.
type JSONL struct {
	path string
}

// DefaultPath returns the log destination used when none is configured.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "llmloop-logs.jsonl")
	}
	return filepath.Join(home, ".config", "llmloop", "logs.jsonl")
}

// NewJSONL creates a JSONL sink at path, creating parent directories.
func NewJSONL(path string) (*JSONL, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &JSONL{path: path}, nil
}

// Path returns the sink's destination file.
func (s *JSONL) Path() string { return s.path }

// Append writes one record. The file is opened per append so a crashed
// session never holds the log open.
func (s *JSONL) Append(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding log record: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing log record: %w", err)
	}
	return nil
}
