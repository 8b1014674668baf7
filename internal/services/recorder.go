package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/safeocr/internal/models"
)

// Sink persists outcome records. Sinks are only ever called from the
// recorder's writer goroutine.
type Sink interface {
	Write(ctx context.Context, rec models.OutcomeRecord) error
	Close() error
}

// JSONLSink appends one JSON object per line to a file and flushes it to
// stable storage after every record.
type JSONLSink struct {
	path string
	file *os.File
	w    *bufio.Writer
}

func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome log %s: %w", path, err)
	}
	return &JSONLSink{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

func (s *JSONLSink) Path() string { return s.path }

func (s *JSONLSink) Write(_ context.Context, rec models.OutcomeRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome record: %w", err)
	}
	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write outcome record: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush outcome log: %w", err)
	}
	return s.file.Sync()
}

func (s *JSONLSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

type recordRequest struct {
	rec  models.OutcomeRecord
	done chan error
}

// Recorder serializes outcome records from all workers through a single
// writer goroutine that owns every sink. Record returns only after each
// sink has accepted the record.
type Recorder struct {
	reqs    chan recordRequest
	sinks   []Sink
	summary *models.Summary
	stopped chan struct{}
}

func NewRecorder(sinks ...Sink) *Recorder {
	r := &Recorder{
		reqs:    make(chan recordRequest),
		sinks:   sinks,
		summary: models.NewSummary(),
		stopped: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer close(r.stopped)
	for req := range r.reqs {
		r.summary.Add(req.rec)
		var errs []error
		for _, s := range r.sinks {
			// Sinks outlive run cancellation so records of interrupted jobs
			// are still written.
			if err := s.Write(context.Background(), req.rec); err != nil {
				errs = append(errs, err)
			}
		}
		req.done <- errors.Join(errs...)
	}
}

// Record hands rec to the writer and waits until it has been persisted.
func (r *Recorder) Record(rec models.OutcomeRecord) error {
	done := make(chan error, 1)
	r.reqs <- recordRequest{rec: rec, done: done}
	return <-done
}

// Close stops the writer, closes every sink and returns the per-state counts.
// Record must not be called after Close.
func (r *Recorder) Close() (*models.Summary, error) {
	close(r.reqs)
	<-r.stopped
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		slog.Error("Failed to close one or more outcome sinks.", "error", errors.Join(errs...))
	}
	return r.summary, errors.Join(errs...)
}
