// Package backendtest provides a deterministic Backend for loop tests.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/martinemde/llmloop/backend"
)

// ErrTransport is a canned transport failure for scripting error rounds.
var ErrTransport = errors.New("transport failure")

// Round configures one model round in a scripted sequence.
type Round struct {
	Fragments []string
	ToolCalls []backend.ToolCallRequest
	Err       error // transport failure surfaced at Finalize
}

// Scripted plays back a fixed sequence of rounds and records the requests it
// receives.
type Scripted struct {
	model    string
	rounds   []Round
	index    int
	Requests []backend.RoundRequest
}

var _ backend.Backend = (*Scripted)(nil)

func NewScripted(model string, rounds ...Round) *Scripted {
	cloned := make([]Round, len(rounds))
	copy(cloned, rounds)
	return &Scripted{model: model, rounds: cloned}
}

func (s *Scripted) ModelID() string { return s.model }

// RoundsServed returns how many rounds have been requested so far.
func (s *Scripted) RoundsServed() int { return s.index }

func (s *Scripted) Round(_ context.Context, req backend.RoundRequest) (*backend.RoundStream, error) {
	s.Requests = append(s.Requests, req)

	if s.index >= len(s.rounds) {
		return nil, fmt.Errorf("script exhausted at round %d", s.index+1)
	}
	current := s.rounds[s.index]
	s.index++

	stream := backend.NewRoundStream(len(current.Fragments) + 1)
	go func() {
		for _, f := range current.Fragments {
			stream.Send(f)
		}
		if current.Err != nil {
			stream.CloseWith(nil, current.Err)
			return
		}
		stream.CloseWith(&backend.RoundResult{
			ID:        fmt.Sprintf("scripted_%d", s.index),
			ModelID:   s.model,
			Text:      strings.Join(current.Fragments, ""),
			ToolCalls: current.ToolCalls,
		}, nil)
	}()
	return stream, nil
}
