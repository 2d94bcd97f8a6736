// Package audit provides the append-only audit sink fed by the bus
// audit subscriber: one JSON line per tool lifecycle event, buffered
// and flushed asynchronously so auditing never slows a turn.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bantzhq/bantz/pkg/models"
)

// Entry is one audit record.
type Entry struct {
	Time          time.Time        `json:"time"`
	Event         models.EventType `json:"event"`
	Tool          string           `json:"tool,omitempty"`
	RiskLevel     models.RiskLevel `json:"risk_level,omitempty"`
	Success       *bool            `json:"success,omitempty"`
	Confirmation  string           `json:"confirmation,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	Params        map[string]any   `json:"params,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Config configures the sink.
type Config struct {
	// Output selects the destination: "stdout", "stderr", or
	// "file:<path>". Empty disables auditing.
	Output string

	// BufferSize is the async queue depth (default 256). When the
	// buffer is full, entries are dropped and counted.
	BufferSize int

	// Logger for sink diagnostics.
	Logger *slog.Logger
}

// Sink writes audit entries as JSON lines.
type Sink struct {
	writer  io.WriteCloser
	ownFile bool
	logger  *slog.Logger

	buffer  chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	dropped int
	closed  bool
}

// NewSink opens the configured output and starts the flush goroutine.
// With an empty output, the sink is disabled and every write is a
// no-op.
func NewSink(config Config) (*Sink, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default().With("component", "audit")
	}

	s := &Sink{logger: logger}
	if config.Output == "" {
		return s, nil
	}

	switch {
	case config.Output == "stdout":
		s.writer = os.Stdout
	case config.Output == "stderr":
		s.writer = os.Stderr
	case strings.HasPrefix(config.Output, "file:"):
		path := strings.TrimPrefix(config.Output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log file: %w", err)
		}
		s.writer = f
		s.ownFile = true
	default:
		return nil, fmt.Errorf("unsupported audit output: %s", config.Output)
	}

	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	s.buffer = make(chan Entry, config.BufferSize)
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.flushLoop()
	return s, nil
}

// Write queues one entry. Never blocks: when the buffer is full the
// entry is dropped and the drop is counted.
func (s *Sink) Write(entry Entry) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if s.buffer == nil || closed {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	select {
	case s.buffer <- entry:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped returns how many entries were lost to a full buffer.
func (s *Sink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Sink) flushLoop() {
	defer s.wg.Done()
	for {
		select {
		case entry := <-s.buffer:
			s.write(entry)
		case <-s.done:
			// Drain what is left before exiting.
			for {
				select {
				case entry := <-s.buffer:
					s.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(entry Entry) {
	line, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("marshal audit entry", "error", err)
		return
	}
	line = append(line, '\n')
	if _, err := s.writer.Write(line); err != nil {
		s.logger.Error("write audit entry", "error", err)
	}
}

// Close drains the buffer and closes the output file if the sink
// opened it.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed || s.buffer == nil {
		s.closed = true
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	if s.ownFile {
		return s.writer.Close()
	}
	return nil
}
