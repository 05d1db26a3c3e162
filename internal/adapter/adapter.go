// Package adapter defines the model adapter contract the engine consumes.
// An adapter wraps one external text-generation capability; the engine
// treats every adapter uniformly: given a prompt, return a completed
// string or a chunk stream.
package adapter

import (
	"context"
	"time"
)

// Chunk is one streamed fragment of a model response.
type Chunk struct {
	Content   string    `json:"content"`
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
}

// ChunkStream delivers a model response incrementally. C is closed as the
// end-of-stream sentinel; Err delivers at most one terminal error. A
// consumer must drain C before trusting that Err is settled.
type ChunkStream struct {
	C   <-chan Chunk
	Err <-chan error
}

// NewChunkStream returns a stream and the producer-side channels feeding it.
func NewChunkStream(buffer int) (*ChunkStream, chan<- Chunk, chan<- error) {
	c := make(chan Chunk, buffer)
	errs := make(chan error, 1)
	return &ChunkStream{C: c, Err: errs}, c, errs
}

// ModelAdapter is the uniform capability contract for one external model.
type ModelAdapter interface {
	// ID returns the stable model identifier used in plans and profiles.
	ID() string
	// Complete returns the full response for the prompt.
	Complete(ctx context.Context, prompt, sessionID string) (string, error)
	// CompleteStream returns the response as a chunk stream.
	CompleteStream(ctx context.Context, prompt, sessionID string) (*ChunkStream, error)
	// Available is a cheap availability probe; it must not block on network.
	Available() bool
}

// Collect drains a chunk stream into a single string, honoring ctx.
func Collect(ctx context.Context, stream *ChunkStream) (string, []time.Time, error) {
	var sb []byte
	var stamps []time.Time
	for {
		select {
		case <-ctx.Done():
			return string(sb), stamps, ctx.Err()
		case err := <-stream.Err:
			return string(sb), stamps, err
		case chunk, ok := <-stream.C:
			if !ok {
				select {
				case err := <-stream.Err:
					return string(sb), stamps, err
				default:
					return string(sb), stamps, nil
				}
			}
			sb = append(sb, chunk.Content...)
			stamps = append(stamps, chunk.Timestamp)
		}
	}
}
