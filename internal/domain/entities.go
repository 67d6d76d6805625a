package domain

import (
	"time"
)

// Document is the extracted form of a single source file.
// Path is its identity within a corpus.
type Document struct {
	Path     string
	Text     string
	Metadata map[string]string
	ModTime  time.Time
}

// Metadata keys shared between extractors, stores and results.
const (
	MetaSource    = "source"
	MetaFormat    = "format"
	MetaImagePath = "image_path"
	MetaModTime   = "mod_time"
	MetaCluster   = "cluster"
)

// SearchResult is one ranked match for a query.
type SearchResult struct {
	Source      string            `json:"source"`
	Similarity  float64           `json:"similarity"`
	Content     string            `json:"content"`
	Explanation string            `json:"explanation"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// OutcomeStatus classifies what happened to one file during indexing.
type OutcomeStatus string

const (
	StatusIndexed OutcomeStatus = "indexed"
	StatusSkipped OutcomeStatus = "skipped"
	StatusFailed  OutcomeStatus = "failed"
)

// FileOutcome records the indexing result for a single path.
type FileOutcome struct {
	Path   string        `json:"path"`
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// BuildReport summarises an index build.
type BuildReport struct {
	RunID    string         `json:"run_id"`
	Root     string         `json:"root"`
	Indexed  int            `json:"indexed"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Removed  int            `json:"removed"`
	Outcomes []FileOutcome  `json:"outcomes"`
	Clusters map[string]int `json:"clusters,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Record appends an outcome and bumps the matching counter.
func (r *BuildReport) Record(o FileOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusIndexed:
		r.Indexed++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

// Failures returns the outcomes that did not make it into the index
// because of an error (unsupported files are not included).
func (r *BuildReport) Failures() []FileOutcome {
	var out []FileOutcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// IndexStats describes the current state of an index.
type IndexStats struct {
	Documents int    `json:"documents"`
	Ready     bool   `json:"ready"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}
