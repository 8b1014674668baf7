package models

// OutcomeRecord is the JSON line written for every job that reaches a
// terminal state. Records are appended in completion order.
type OutcomeRecord struct {
	RunID         string   `json:"runId" firestore:"runId"`
	Path          string   `json:"path" firestore:"path"`
	Decision      Decision `json:"decision" firestore:"decision"`
	State         JobState `json:"state" firestore:"state"`
	Attempts      int      `json:"attempts" firestore:"attempts"`
	DurationMs    int64    `json:"durationMs" firestore:"durationMs"`
	ErrorMessage  string   `json:"errorMessage,omitempty" firestore:"errorMessage,omitempty"`
	SampledPages  int      `json:"sampledPages" firestore:"sampledPages"`
	TextyPages    int      `json:"textyPages" firestore:"textyPages"`
	Coverage      float64  `json:"coverage" firestore:"coverage"`
	ReturnCode    *int     `json:"returnCode,omitempty" firestore:"returnCode,omitempty"`
	FileHash      string   `json:"fileHash,omitempty" firestore:"fileHash,omitempty"`
	OriginalPath  string   `json:"originalPath,omitempty" firestore:"originalPath,omitempty"`
	ProcessedPath string   `json:"processedPath,omitempty" firestore:"processedPath,omitempty"`
}

// Summary counts terminal states for the end-of-run report.
type Summary struct {
	Scanned int
	Counts  map[JobState]int
}

// NewSummary returns an empty Summary.
func NewSummary() *Summary {
	return &Summary{Counts: make(map[JobState]int)}
}

// Add counts one record.
func (s *Summary) Add(rec OutcomeRecord) {
	s.Counts[rec.State]++
}

// Failed returns the number of jobs that ended Failed.
func (s *Summary) Failed() int { return s.Counts[StateFailed] }
