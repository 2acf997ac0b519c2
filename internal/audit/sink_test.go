package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	events []Event
}

func (w *memWriter) WriteEvent(ev Event) error {
	w.events = append(w.events, ev)
	return nil
}

func (w *memWriter) LastHash() (string, error) {
	if len(w.events) == 0 {
		return "", nil
	}
	return w.events[len(w.events)-1].Hash, nil
}

func (w *memWriter) Close() error { return nil }

func newMemSink(t *testing.T) (*Sink, map[string]*memWriter) {
	t.Helper()
	writers := make(map[string]*memWriter)
	sink := New(func(name string) (Writer, error) {
		w := &memWriter{}
		writers[name] = w
		return w, nil
	}, nil, nil)
	return sink, writers
}

func TestSink_Append_ChainsSequentially(t *testing.T) {
	sink, writers := newMemSink(t)
	ctx := context.Background()

	seq1, err := sink.Append(ctx, "tool_invocations", "invoke", "actor-1", "req-1", map[string]any{"tool": "search"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq1)

	seq2, err := sink.Append(ctx, "tool_invocations", "invoke", "actor-1", "req-2", map[string]any{"tool": "fetch"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq2)

	w := writers["tool_invocations"]
	require.Len(t, w.events, 2)
	assert.Equal(t, "", w.events[0].PrevHash)
	assert.Equal(t, w.events[0].Hash, w.events[1].PrevHash)
	assert.NotEqual(t, w.events[0].Hash, w.events[1].Hash)
}

func TestSink_Append_StreamsAreIndependent(t *testing.T) {
	sink, writers := newMemSink(t)
	ctx := context.Background()

	_, err := sink.Append(ctx, "a", "cat", "actor", "req", map[string]any{"x": 1})
	require.NoError(t, err)
	_, err = sink.Append(ctx, "b", "cat", "actor", "req", map[string]any{"x": 1})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), uint64(len(writers["a"].events)))
	assert.Equal(t, uint64(1), uint64(len(writers["b"].events)))
	assert.Equal(t, "", writers["a"].events[0].PrevHash)
	assert.Equal(t, "", writers["b"].events[0].PrevHash)
}

func TestSink_RestartReseedsChainFromLastHash(t *testing.T) {
	ctx := context.Background()
	var persisted []Event

	factory := func(name string) (Writer, error) {
		w := &memWriter{events: append([]Event{}, persisted...)}
		return &reseedWriter{memWriter: w, persisted: &persisted}, nil
	}

	sink1 := New(factory, nil, nil)
	_, err := sink1.Append(ctx, "s", "cat", "a", "r1", map[string]any{"n": 1})
	require.NoError(t, err)
	lastHash, err := sink1.Append(ctx, "s", "cat", "a", "r2", map[string]any{"n": 2})
	require.NoError(t, err)
	_ = lastHash

	// Simulate a process restart: a fresh Sink over the same persisted data.
	sink2 := New(factory, nil, nil)
	seq3, err := sink2.Append(ctx, "s", "cat", "a", "r3", map[string]any{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq3)

	require.Len(t, persisted, 3)
	assert.Equal(t, persisted[1].Hash, persisted[2].PrevHash)
}

type reseedWriter struct {
	*memWriter
	persisted *[]Event
}

func (w *reseedWriter) WriteEvent(ev Event) error {
	if err := w.memWriter.WriteEvent(ev); err != nil {
		return err
	}
	*w.persisted = append(*w.persisted, ev)
	return nil
}

func TestSink_Append_WriteFailureReturnsWriteError(t *testing.T) {
	ctx := context.Background()
	sink := New(func(name string) (Writer, error) {
		return &failingWriter{}, nil
	}, nil, nil)

	_, err := sink.Append(ctx, "s", "cat", "a", "r1", map[string]any{"n": 1})
	require.Error(t, err)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "s", writeErr.Stream)
}

type failingWriter struct{}

func (failingWriter) WriteEvent(Event) error    { return assert.AnError }
func (failingWriter) LastHash() (string, error) { return "", nil }
func (failingWriter) Close() error              { return nil }

func TestVerifyChain_DetectsTamperedField(t *testing.T) {
	sink, writers := newMemSink(t)
	ctx := context.Background()

	_, err := sink.Append(ctx, "s", "cat", "a", "r1", map[string]any{"amount": 10})
	require.NoError(t, err)
	_, err = sink.Append(ctx, "s", "cat", "a", "r2", map[string]any{"amount": 20})
	require.NoError(t, err)

	events := writers["s"].events
	assert.Equal(t, -1, VerifyChain(events))

	tampered := append([]Event{}, events...)
	tampered[1].Fields = map[string]any{"amount": 9999}
	assert.Equal(t, 1, VerifyChain(tampered))
}

func TestVerifyChain_DetectsBrokenLink(t *testing.T) {
	sink, writers := newMemSink(t)
	ctx := context.Background()

	_, err := sink.Append(ctx, "s", "cat", "a", "r1", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = sink.Append(ctx, "s", "cat", "a", "r2", map[string]any{"n": 2})
	require.NoError(t, err)
	_, err = sink.Append(ctx, "s", "cat", "a", "r3", map[string]any{"n": 3})
	require.NoError(t, err)

	events := writers["s"].events
	spliced := []Event{events[0], events[2]}
	assert.Equal(t, 1, VerifyChain(spliced))
}
