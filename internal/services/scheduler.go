package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/Lllllllleong/safeocr/internal/models"
	"github.com/Lllllllleong/safeocr/internal/tags"
	"golang.org/x/sync/errgroup"
)

// DocumentClassifier is the part of Classifier the scheduler depends on.
type DocumentClassifier interface {
	Classify(ctx context.Context, path string) (models.ClassificationResult, error)
}

// SchedulerConfig is the full run configuration.
type SchedulerConfig struct {
	RunID         string
	Root          string
	Extensions    []string
	Execute       bool
	ParallelFiles int
	HashFiles     bool
	Invoker       InvokerConfig
	Retry         RetryConfig

	// OnScan, when set, is called once with the candidate list before any
	// job is dispatched.
	OnScan func(docs []models.Document)
}

// Scheduler drives every candidate document through classification, OCR and
// commit on a bounded pool of workers.
type Scheduler struct {
	config     SchedulerConfig
	classifier DocumentClassifier
	retry      *RetryPolicy
	committer  *Committer
	recorder   *Recorder

	active atomic.Int64
	peak   atomic.Int64
}

// RunReport summarizes one Run.
type RunReport struct {
	Summary     *models.Summary
	Recovered   []RecoveryItem
	Interrupted bool
}

func NewScheduler(config SchedulerConfig, classifier DocumentClassifier, runner ToolRunner, recorder *Recorder) (*Scheduler, error) {
	if config.ParallelFiles < 1 {
		return nil, fmt.Errorf("parallel files must be at least 1, got %d", config.ParallelFiles)
	}
	if config.Invoker.JobsPerFile < 1 {
		return nil, fmt.Errorf("ocr jobs must be at least 1, got %d", config.Invoker.JobsPerFile)
	}
	config.Extensions = NormalizeExtensions(config.Extensions)
	return &Scheduler{
		config:     config,
		classifier: classifier,
		retry:      NewRetryPolicy(runner, config.Retry),
		committer:  NewCommitter(),
		recorder:   recorder,
	}, nil
}

// PeakActive is the largest number of jobs seen in an active state at once.
func (s *Scheduler) PeakActive() int { return int(s.peak.Load()) }

// Run sweeps leftovers, scans the root and processes every candidate. It
// returns an error only for failures that abort the whole run; per-document
// failures are reported through the recorder. The recorder is closed before
// Run returns.
func (s *Scheduler) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{}

	// The tree is left untouched when the run cannot start.
	if s.config.Execute {
		if _, err := LookupTool(s.config.Invoker.Binary); err != nil {
			s.recorder.Close()
			return nil, err
		}
	}

	recovered, err := Recover(ctx, RecoveryConfig{Root: s.config.Root, Extensions: s.config.Extensions, Execute: s.config.Execute})
	if err != nil {
		s.recorder.Close()
		return nil, err
	}
	report.Recovered = recovered

	docs, err := Scan(ctx, ScannerConfig{Root: s.config.Root, Extensions: s.config.Extensions})
	if err != nil {
		s.recorder.Close()
		return nil, err
	}
	slog.Info("Scan complete.", "root", s.config.Root, "candidates", len(docs), "execute", s.config.Execute)
	if s.config.OnScan != nil {
		s.config.OnScan(docs)
	}

	var g errgroup.Group
	g.SetLimit(s.config.ParallelFiles)
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		// Each path is dispatched exactly once, so no two jobs share a base name.
		g.Go(func() error {
			// A job still waiting for a slot when the run is interrupted is
			// never started and leaves no record.
			if ctx.Err() != nil {
				return nil
			}
			rec := s.process(ctx, doc)
			if err := s.recorder.Record(rec); err != nil {
				slog.Error("Failed to record outcome.", "path", rec.Path, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary, err := s.recorder.Close()
	summary.Scanned = len(docs)
	report.Summary = summary
	report.Interrupted = ctx.Err() != nil
	if err != nil {
		slog.Warn("Outcome sinks reported errors on close.", "error", err)
	}
	return report, nil
}

func (s *Scheduler) enter() {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (s *Scheduler) leave() { s.active.Add(-1) }

// process runs one job to a terminal state and returns its record.
func (s *Scheduler) process(ctx context.Context, doc models.Document) models.OutcomeRecord {
	start := time.Now()
	job := models.NewJob(doc)
	rec := models.OutcomeRecord{RunID: s.config.RunID, Path: doc.Path}
	logCtx := slog.With("path", doc.Path, "runId", s.config.RunID)
	finish := func(state models.JobState) models.OutcomeRecord {
		if err := job.Advance(state); err != nil {
			logCtx.Error("Invalid job transition.", "error", err)
		}
		rec.State = job.State
		rec.Attempts = job.Attempts
		rec.DurationMs = time.Since(start).Milliseconds()
		return rec
	}
	fail := func(message string, err error) models.OutcomeRecord {
		logCtx.Error(message, "error", err, "attempts", job.Attempts)
		rec.ErrorMessage = truncateMessage(fmt.Sprintf("%s: %v", message, err))
		return finish(models.StateFailed)
	}

	s.enter()
	if err := job.Advance(models.StateClassifying); err != nil {
		s.leave()
		return fail("failed to start job", err)
	}
	result, err := s.classifier.Classify(ctx, doc.Path)
	rec.Decision = result.Decision
	if rec.Decision == "" {
		rec.Decision = models.DecisionUndecided
	}
	rec.SampledPages = result.SampledCount()
	rec.TextyPages = result.TextyCount
	rec.Coverage = result.CoverageRatio
	if err != nil {
		s.leave()
		if errors.Is(err, ErrUnreadable) {
			rec.Decision = models.DecisionUnreadable
		}
		return fail("failed to classify document", err)
	}
	if s.config.HashFiles {
		if hash, err := calculateFileHash(doc.Path); err != nil {
			logCtx.Warn("Failed to calculate file hash.", "error", err)
		} else {
			rec.FileHash = hash
		}
	}
	logCtx = logCtx.With("decision", string(result.Decision), "coverage", result.CoverageRatio)

	if result.Decision == models.DecisionSkip {
		s.leave()
		logCtx.Debug("Document already has enough text. Skipping.")
		return finish(models.StateSkipped)
	}

	paths, err := tags.PlanPaths(doc.Path)
	if err != nil {
		s.leave()
		return fail("failed to plan output paths", err)
	}
	if !s.config.Execute {
		s.leave()
		rec.OriginalPath = paths.Original
		rec.ProcessedPath = paths.Processed
		logCtx.Info("Would OCR document.")
		return finish(models.StateWouldProcess)
	}

	run, err := s.retry.Run(ctx, job, s.config.Invoker, doc.Path, paths.Temp)
	s.leave()
	if run.Last.ExitCode >= 0 && job.Attempts > 0 {
		code := run.Last.ExitCode
		rec.ReturnCode = &code
	}
	if err != nil {
		if errors.Is(err, ErrInterrupted) {
			return fail("OCR interrupted", err)
		}
		return fail("OCR failed", err)
	}
	if err := ctx.Err(); err != nil {
		s.committer.discard(paths.Temp)
		return fail("run interrupted before commit", fmt.Errorf("%w: %v", ErrInterrupted, err))
	}

	committed, err := s.committer.Commit(doc.Path, paths.Temp)
	rec.OriginalPath = committed.OriginalPath
	rec.ProcessedPath = committed.ProcessedPath
	if err != nil {
		return fail("failed to commit OCR output", err)
	}
	logCtx.Info("OCR committed.", "attempts", job.Attempts, "processed", committed.ProcessedPath)
	return finish(models.StateCommitted)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
