package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Lllllllleong/safeocr/internal/models"
)

// ClassifierConfig holds the sampling thresholds.
type ClassifierConfig struct {
	SamplePages  int
	PageMinChars int
	MinCoverage  float64
}

// Classifier decides whether a document already carries enough embedded text.
type Classifier struct {
	opener DocumentOpener
	config ClassifierConfig
}

func NewClassifier(opener DocumentOpener, config ClassifierConfig) (*Classifier, error) {
	if config.SamplePages < 1 {
		return nil, fmt.Errorf("sample pages must be at least 1, got %d", config.SamplePages)
	}
	if config.MinCoverage < 0 || config.MinCoverage > 1 {
		return nil, fmt.Errorf("min coverage must be within [0,1], got %v", config.MinCoverage)
	}
	return &Classifier{opener: opener, config: config}, nil
}

// SampleIndices spreads min(samples, pageCount) page indices evenly over the
// document, ascending and without duplicates.
func SampleIndices(pageCount, samples int) []int {
	if pageCount <= 0 || samples <= 0 {
		return nil
	}
	k := samples
	if pageCount < k {
		k = pageCount
	}
	idxs := make([]int, 0, k)
	for i := 0; i < k; i++ {
		j := i * pageCount / k
		if len(idxs) > 0 && idxs[len(idxs)-1] == j {
			continue
		}
		idxs = append(idxs, j)
	}
	return idxs
}

// Decide turns the texty count into a decision. Nothing sampled means
// nothing to skip on.
func Decide(textyCount, sampledCount int, minCoverage float64) (float64, models.Decision) {
	if sampledCount == 0 {
		return 0, models.DecisionNeedsOCR
	}
	coverage := float64(textyCount) / float64(sampledCount)
	if coverage >= minCoverage {
		return coverage, models.DecisionSkip
	}
	return coverage, models.DecisionNeedsOCR
}

// Classify samples the document at path. A document that cannot be opened
// yields DecisionUnreadable together with an error wrapping ErrUnreadable.
func (c *Classifier) Classify(ctx context.Context, path string) (models.ClassificationResult, error) {
	src, err := c.opener.Open(path)
	if err != nil {
		return models.ClassificationResult{
			Decision: models.DecisionUnreadable,
			Reason:   err.Error(),
		}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer src.Close()

	pageCount := src.PageCount()
	idxs := SampleIndices(pageCount, c.config.SamplePages)
	texty := 0
	for _, i := range idxs {
		if err := ctx.Err(); err != nil {
			return models.ClassificationResult{}, fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		txt, err := src.PageText(i)
		if err != nil {
			// An unextractable page is simply not texty.
			slog.Debug("Page text extraction failed.", "path", path, "page", i, "error", err)
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(txt)) >= c.config.PageMinChars {
			texty++
		}
	}

	coverage, decision := Decide(texty, len(idxs), c.config.MinCoverage)
	return models.ClassificationResult{
		PageCount:     pageCount,
		SampledPages:  idxs,
		TextyCount:    texty,
		CoverageRatio: coverage,
		Decision:      decision,
	}, nil
}
