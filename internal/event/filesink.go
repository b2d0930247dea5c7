package event

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Compile-time interface check.
var _ Sink = (*FileSink)(nil)

// FileSink persists events the bus rejected as append-only JSON lines in a
// local file, so the collection pipeline can replay them later.
// Thread-safe for concurrent use.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a FileSink that writes to the given path. The file is
// created if it does not exist.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Save appends every event as one JSON line.
func (fs *FileSink) Save(_ context.Context, events []GrammarFeedbackEvent) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("event: open fallback file: %w", err)
	}
	defer f.Close()

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("event: marshal fallback record: %w", err)
		}
		data = append(data, '\n')
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("event: write fallback record: %w", err)
		}
	}
	return nil
}
