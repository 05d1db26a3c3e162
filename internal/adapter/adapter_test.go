package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectDrainsStreamUntilSentinel(t *testing.T) {
	m := &MockAdapter{ModelID: "m1", Response: "hello world", ChunkSize: 4}

	stream, err := m.CompleteStream(context.Background(), "prompt", "s1")
	require.NoError(t, err)

	content, stamps, err := Collect(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "hello world", content)
	assert.Len(t, stamps, 3)
}

func TestCollectSurfacesStreamError(t *testing.T) {
	boom := errors.New("boom")
	m := &MockAdapter{ModelID: "m1", Err: boom}

	stream, err := m.CompleteStream(context.Background(), "prompt", "s1")
	require.NoError(t, err)

	_, _, err = Collect(context.Background(), stream)
	assert.ErrorIs(t, err, boom)
}

func TestCollectHonorsContext(t *testing.T) {
	m := &MockAdapter{ModelID: "m1", Response: "late", Delay: time.Second}

	stream, err := m.CompleteStream(context.Background(), "prompt", "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err = Collect(ctx, stream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockAdapterCountsCalls(t *testing.T) {
	m := &MockAdapter{ModelID: "m1", Response: "ok"}

	_, err := m.Complete(context.Background(), "p", "s")
	require.NoError(t, err)
	stream, err := m.CompleteStream(context.Background(), "p", "s")
	require.NoError(t, err)
	_, _, _ = Collect(context.Background(), stream)

	assert.Equal(t, int64(2), m.Calls())
}

func TestEchoResponderUsesFirstLine(t *testing.T) {
	respond := EchoResponder("m1")
	assert.Equal(t, "m1: first", respond("first\nsecond"))
	assert.Equal(t, "m1: only", respond("only"))
}
