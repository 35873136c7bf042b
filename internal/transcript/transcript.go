// Package transcript archives completed invocations as JSON files on disk,
// one file per turn, grouped by session.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/chathost/pkg/wire"
)

var ErrNotFound = errors.New("not found")

// Record is one archived turn: the request as submitted, every response
// part that reached the wire and the final result envelope.
type Record struct {
	RequestID   string                `json:"requestId"`
	SessionID   string                `json:"sessionId"`
	AgentID     string                `json:"agentId"`
	Message     string                `json:"message"`
	Response    []wire.PartDTO        `json:"response,omitempty"`
	Result      wire.InvocationResult `json:"result"`
	StartedAt   time.Time             `json:"startedAt"`
	CompletedAt time.Time             `json:"completedAt"`
}

// UnmarshalJSON decodes a record, resolving each response fragment to its
// concrete DTO type. Fragments with an unknown type tag are dropped.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	aux := struct {
		*alias
		Response []json.RawMessage `json:"response"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Response = nil
	for _, raw := range aux.Response {
		dto, err := wire.UnmarshalPartDTO(raw)
		if err != nil {
			return err
		}
		if dto != nil {
			r.Response = append(r.Response, dto)
		}
	}
	return nil
}

// Archive is a file-backed transcript store. Turn files are named with a
// ULID so a lexicographic directory listing is also chronological.
type Archive struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*fileLock
}

// NewArchive creates an archive rooted at basePath. The directory is
// created lazily on first write.
func NewArchive(basePath string) *Archive {
	return &Archive{
		basePath: basePath,
		locks:    make(map[string]*fileLock),
	}
}

func (a *Archive) sessionDir(sessionID string) string {
	return filepath.Join(a.basePath, "sessions", sessionID)
}

// Append stores one completed turn.
func (a *Archive) Append(ctx context.Context, rec Record) error {
	if rec.SessionID == "" {
		return fmt.Errorf("record has no session id")
	}

	dir := a.sessionDir(rec.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	path := filepath.Join(dir, ulid.Make().String()+".json")

	lock := a.getLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// Write to a temp file first, then rename so readers never observe a
	// partial record.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// Turns returns every archived turn of a session in the order it was
// recorded. A session with no archive yields an empty slice.
func (a *Archive) Turns(ctx context.Context, sessionID string) ([]Record, error) {
	dir := a.sessionDir(sessionID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// Sessions lists the session IDs that have at least one archived turn.
func (a *Archive) Sessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(a.basePath, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)

	return ids, nil
}

// Purge removes every archived turn of a session. Purging a session that
// was never archived is not an error.
func (a *Archive) Purge(ctx context.Context, sessionID string) error {
	dir := a.sessionDir(sessionID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge session: %w", err)
	}
	return nil
}

// getLock returns the write lock for a path.
func (a *Archive) getLock(path string) *fileLock {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.locks[path]
	if !ok {
		lock = newFileLock(path)
		a.locks[path] = lock
	}

	return lock
}
