package models

import "fmt"

// TagState is the role a file plays for its logical document, decoded from
// the filename marker once at scan time.
type TagState int

const (
	Untouched TagState = iota
	OriginalTagged
	ProcessedTagged
	Temporary
)

func (s TagState) String() string {
	switch s {
	case Untouched:
		return "untouched"
	case OriginalTagged:
		return "original"
	case ProcessedTagged:
		return "processed"
	case Temporary:
		return "temporary"
	default:
		return fmt.Sprintf("TagState(%d)", int(s))
	}
}

// Document is a candidate file discovered under the scan root. It is never
// modified in place, only read or renamed.
type Document struct {
	Path      string
	TagState  TagState
	SizeBytes int64
}

// Decision is the classifier verdict for one document.
type Decision string

const (
	DecisionSkip       Decision = "skip"
	DecisionNeedsOCR   Decision = "needs_ocr"
	DecisionUnreadable Decision = "unreadable"

	// DecisionUndecided marks a document whose classification was
	// interrupted.
	DecisionUndecided Decision = "undecided"
)

// ClassificationResult is produced once per document and never changed.
type ClassificationResult struct {
	PageCount     int
	SampledPages  []int
	TextyCount    int
	CoverageRatio float64
	Decision      Decision
	Reason        string
}

// SampledCount is the number of distinct pages that were inspected.
func (r ClassificationResult) SampledCount() int { return len(r.SampledPages) }
