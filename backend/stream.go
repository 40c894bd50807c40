package backend

import (
	"context"
	"fmt"
)

// RoundRequest is the input for one model round.
type RoundRequest struct {
	Model    string            `json:"model"`
	System   string            `json:"system,omitempty"`
	Messages []Message         `json:"messages"`
	Tools    []ToolSpec        `json:"tools,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	APIKey   string            `json:"-"`
}

// RoundResult is the structured outcome of a round, available only after the
// fragment stream has been exhausted.
type RoundResult struct {
	ID        string            `json:"id"`
	ModelID   string            `json:"model_id"`
	Text      string            `json:"text"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
	Usage     Usage             `json:"usage"`
}

// RoundStream delivers a round's response as a lazy sequence of text
// fragments followed by a finalization step. The stream is finite and not
// restartable. Producers call Send for each fragment and CloseWith exactly
// once; consumers drain Fragments and then call Finalize.
type RoundStream struct {
	fragments chan string
	done      chan struct{}
	result    *RoundResult
	err       error
}

// NewRoundStream creates a stream with the given fragment buffer size.
func NewRoundStream(buffer int) *RoundStream {
	if buffer <= 0 {
		buffer = 64
	}
	return &RoundStream{
		fragments: make(chan string, buffer),
		done:      make(chan struct{}),
	}
}

// Fragments returns the read-only fragment channel. It is closed when the
// round ends, successfully or not.
func (s *RoundStream) Fragments() <-chan string {
	return s.fragments
}

// Send delivers one fragment to the consumer. Producer side only.
func (s *RoundStream) Send(fragment string) {
	s.fragments <- fragment
}

// CloseWith ends the stream with either a result or an error. It must be
// called exactly once by the producer.
func (s *RoundStream) CloseWith(result *RoundResult, err error) {
	s.result = result
	s.err = err
	close(s.fragments)
	close(s.done)
}

// Finalize returns the round's structured metadata. It fails if the producer
// has not finished, which means the caller did not drain Fragments first.
func (s *RoundStream) Finalize() (*RoundResult, error) {
	select {
	case <-s.done:
	default:
		return nil, fmt.Errorf("round stream not exhausted; drain Fragments before Finalize")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// Backend produces model rounds. Implementations must be safe for sequential
// reuse across a session; the loop never issues concurrent rounds.
type Backend interface {
	// ModelID returns the resolved model identifier the backend will use.
	ModelID() string

	// Round starts one request/response round. The returned stream yields
	// text fragments as they arrive from the provider.
	Round(ctx context.Context, req RoundRequest) (*RoundStream, error)
}
