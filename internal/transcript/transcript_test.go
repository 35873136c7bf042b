package transcript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/chathost/pkg/wire"
)

func testRecord(sessionID, requestID, message string) Record {
	return Record{
		RequestID: requestID,
		SessionID: sessionID,
		AgentID:   "workspace",
		Message:   message,
		Response: []wire.PartDTO{
			&wire.MarkdownDTO{Type: wire.TypeMarkdown, Value: "re: " + message},
		},
		Result:      wire.InvocationResult{},
		StartedAt:   time.Now().UTC().Truncate(time.Millisecond),
		CompletedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestArchive_AppendAndTurns(t *testing.T) {
	a := NewArchive(t.TempDir())
	ctx := context.Background()

	rec := testRecord("s-1", "r-1", "hello")
	require.NoError(t, a.Append(ctx, rec))

	turns, err := a.Turns(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "r-1", turns[0].RequestID)
	require.Equal(t, "workspace", turns[0].AgentID)

	require.Len(t, turns[0].Response, 1)
	md, ok := turns[0].Response[0].(*wire.MarkdownDTO)
	require.True(t, ok)
	require.Equal(t, "re: hello", md.Value)
}

func TestArchive_TurnsPreserveOrder(t *testing.T) {
	a := NewArchive(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"r-1", "r-2", "r-3"} {
		require.NoError(t, a.Append(ctx, testRecord("s-1", id, id)))
	}

	turns, err := a.Turns(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, "r-1", turns[0].RequestID)
	require.Equal(t, "r-2", turns[1].RequestID)
	require.Equal(t, "r-3", turns[2].RequestID)
}

func TestArchive_TurnsUnknownSession(t *testing.T) {
	a := NewArchive(t.TempDir())

	turns, err := a.Turns(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestArchive_Sessions(t *testing.T) {
	a := NewArchive(t.TempDir())
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, testRecord("s-b", "r-1", "x")))
	require.NoError(t, a.Append(ctx, testRecord("s-a", "r-2", "y")))

	ids, err := a.Sessions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"s-a", "s-b"}, ids)
}

func TestArchive_SessionsEmpty(t *testing.T) {
	a := NewArchive(t.TempDir())

	ids, err := a.Sessions(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestArchive_Purge(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, testRecord("s-1", "r-1", "x")))
	require.NoError(t, a.Purge(ctx, "s-1"))

	_, err := os.Stat(filepath.Join(dir, "sessions", "s-1"))
	require.True(t, os.IsNotExist(err))

	turns, err := a.Turns(ctx, "s-1")
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestArchive_PurgeUnknownSession(t *testing.T) {
	a := NewArchive(t.TempDir())
	require.NoError(t, a.Purge(context.Background(), "never-seen"))
}

func TestArchive_AppendRequiresSession(t *testing.T) {
	a := NewArchive(t.TempDir())
	require.Error(t, a.Append(context.Background(), Record{RequestID: "r-1"}))
}

func TestArchive_SkipsCorruptTurnFiles(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)
	ctx := context.Background()

	require.NoError(t, a.Append(ctx, testRecord("s-1", "r-1", "x")))

	corrupt := filepath.Join(dir, "sessions", "s-1", "00000000000000000000000000.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))

	turns, err := a.Turns(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "r-1", turns[0].RequestID)
}
