package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maumtalk/counseling-server/internal/config"
)

// TranscriptEntry is one NDJSON line in a session transcript.
type TranscriptEntry struct {
	Timestamp time.Time `json:"ts"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Phase     string    `json:"phase"`
	Content   string    `json:"content"`
}

// Transcript writes exchange transcripts to per-session NDJSON files through
// a bounded queue. Logging never blocks the exchange path: when the queue is
// full the entry is dropped and counted.
type Transcript struct {
	cfg     config.TranscriptConfig
	queue   chan TranscriptEntry
	done    chan struct{}
	logger  *slog.Logger
	once    sync.Once
	dropped int64
	mu      sync.Mutex
}

// NewTranscript creates the transcript writer and starts its drain
// goroutine. Returns nil when transcripts are disabled.
func NewTranscript(cfg config.TranscriptConfig, logger *slog.Logger) (*Transcript, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	t := &Transcript{
		cfg:    cfg,
		queue:  make(chan TranscriptEntry, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go t.drain()
	return t, nil
}

// Log enqueues an entry. Safe to call on a nil Transcript.
func (t *Transcript) Log(entry TranscriptEntry) {
	if t == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	select {
	case t.queue <- entry:
	default:
		t.mu.Lock()
		t.dropped++
		dropped := t.dropped
		t.mu.Unlock()
		t.logger.Warn("transcript queue full, dropping entry",
			"session_id", entry.SessionID, "dropped_total", dropped)
	}
}

// Close drains remaining entries and stops the writer. Safe on nil.
func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		close(t.queue)
		<-t.done
	})
	return nil
}

func (t *Transcript) drain() {
	defer close(t.done)
	for entry := range t.queue {
		if err := t.write(entry); err != nil {
			t.logger.Warn("failed to write transcript entry",
				"session_id", entry.SessionID, "error", err)
		}
	}
}

func (t *Transcript) write(entry TranscriptEntry) error {
	dir := filepath.Join(t.cfg.Dir, entry.UserID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create user transcript directory: %w", err)
	}

	path := filepath.Join(dir, entry.SessionID+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			t.logger.Debug("failed to close transcript file", "error", closeErr)
		}
	}()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}
