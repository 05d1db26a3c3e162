package adapter

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

// MockAdapter is a deterministic in-process adapter used by tests and the
// local demo wiring.
type MockAdapter struct {
	ModelID   string
	Response  string
	Delay     time.Duration
	Err       error
	ChunkSize int
	Down      bool

	// Respond, when set, overrides Response per prompt.
	Respond func(prompt string) string

	calls atomic.Int64
}

// ID implements ModelAdapter.
func (m *MockAdapter) ID() string { return m.ModelID }

// Available implements ModelAdapter.
func (m *MockAdapter) Available() bool { return !m.Down }

// Calls returns how many times Complete or CompleteStream ran.
func (m *MockAdapter) Calls() int64 { return m.calls.Load() }

func (m *MockAdapter) content(prompt string) string {
	if m.Respond != nil {
		return m.Respond(prompt)
	}
	return m.Response
}

// Complete implements ModelAdapter.
func (m *MockAdapter) Complete(ctx context.Context, prompt, sessionID string) (string, error) {
	m.calls.Add(1)
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.content(prompt), nil
}

// CompleteStream implements ModelAdapter, splitting the response into
// ChunkSize-rune chunks (whole response when unset).
func (m *MockAdapter) CompleteStream(ctx context.Context, prompt, sessionID string) (*ChunkStream, error) {
	m.calls.Add(1)
	stream, chunks, errs := NewChunkStream(8)

	go func() {
		defer close(chunks)
		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case <-time.After(m.Delay):
			}
		}
		if m.Err != nil {
			errs <- m.Err
			return
		}

		content := m.content(prompt)
		size := m.ChunkSize
		if size <= 0 {
			size = len(content)
		}
		runes := []rune(content)
		for i, idx := 0, 0; i < len(runes); i, idx = i+size, idx+1 {
			end := i + size
			if end > len(runes) {
				end = len(runes)
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case chunks <- Chunk{Content: string(runes[i:end]), Index: idx, Timestamp: time.Now()}:
			}
		}
	}()

	return stream, nil
}

// EchoResponder builds a Respond func that prefixes the prompt's first line.
func EchoResponder(modelID string) func(string) string {
	return func(prompt string) string {
		line := prompt
		if i := strings.IndexByte(prompt, '\n'); i >= 0 {
			line = prompt[:i]
		}
		return modelID + ": " + line
	}
}
