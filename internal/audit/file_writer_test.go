package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWriter_RoundTripAndReseed(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	sink1 := New(NewFileWriterFactory(dir), nil, nil)
	_, err := sink1.Append(ctx, "events", "cat", "actor", "req1", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = sink1.Append(ctx, "events", "cat", "actor", "req2", map[string]any{"n": 2})
	require.NoError(t, err)
	require.NoError(t, sink1.Close())

	// A fresh Sink over the same directory must continue the chain, not
	// restart it, because LastHash reads the file's final line.
	sink2 := New(NewFileWriterFactory(dir), nil, nil)
	seq, err := sink2.Append(ctx, "events", "cat", "actor", "req3", map[string]any{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
	require.NoError(t, sink2.Close())

	fw, err := NewFileWriter(dir, "events")
	require.NoError(t, err)
	last, err := fw.LastHash()
	require.NoError(t, err)
	assert.NotEmpty(t, last)
	require.NoError(t, fw.Close())
}

func TestFileWriter_SeparateFilesPerStream(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	sink := New(NewFileWriterFactory(dir), nil, nil)

	_, err := sink.Append(ctx, "audit_a", "cat", "actor", "req", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = sink.Append(ctx, "audit_b", "cat", "actor", "req", map[string]any{"n": 1})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	fwA, err := NewFileWriter(dir, "audit_a")
	require.NoError(t, err)
	hashA, err := fwA.LastHash()
	require.NoError(t, err)
	require.NoError(t, fwA.Close())

	fwB, err := NewFileWriter(dir, "audit_b")
	require.NoError(t, err)
	hashB, err := fwB.LastHash()
	require.NoError(t, err)
	require.NoError(t, fwB.Close())

	assert.NotEmpty(t, hashA)
	assert.NotEmpty(t, hashB)
}
