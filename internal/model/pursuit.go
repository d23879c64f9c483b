package model

import (
	"time"
)

// JobKind identifies one of the long-running analysis operations that can be
// run against a pursuit.
type JobKind string

const (
	JobKindExtraction  JobKind = "extraction"
	JobKindGapAnalysis JobKind = "gap_analysis"
	JobKindPrompt      JobKind = "prompt_generation"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindExtraction, JobKindGapAnalysis, JobKindPrompt:
		return true
	}
	return false
}

// HistoryKey returns the state-bag key holding this kind's run history.
func (k JobKind) HistoryKey() string {
	switch k {
	case JobKindExtraction:
		return "extraction_history"
	case JobKindGapAnalysis:
		return "gap_analysis_history"
	case JobKindPrompt:
		return "prompt_history"
	}
	return string(k) + "_history"
}

// Pursuit is the unit of work: a proposal opportunity being analyzed.
// The record store owns it; everything here is a read/write view.
type Pursuit struct {
	ID             string   `json:"id"`
	EntityName     string   `json:"entity_name"`
	Industry       string   `json:"industry"`
	Geography      string   `json:"geography"`
	DueDate        string   `json:"due_date,omitempty"`
	EstimatedValue float64  `json:"estimated_value,omitempty"`
	OutputFormat   string   `json:"output_format,omitempty"`
	ServiceTypes   []string `json:"service_types,omitempty"`
	Technologies   []string `json:"technologies,omitempty"`

	Extraction  *ExtractionResult  `json:"extraction,omitempty"`
	GapAnalysis *GapAnalysisResult `json:"gap_analysis,omitempty"`
	Prompt      *PromptResult      `json:"prompt,omitempty"`

	State StateBag `json:"state,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResultFor returns the metrics of the analysis result for the given job
// kind, or nil if that job has not produced one yet.
func (p *Pursuit) ResultFor(kind JobKind) *RunMetrics {
	switch kind {
	case JobKindExtraction:
		if p.Extraction == nil {
			return nil
		}
		return &p.Extraction.Metrics
	case JobKindGapAnalysis:
		if p.GapAnalysis == nil {
			return nil
		}
		return &p.GapAnalysis.Metrics
	case JobKindPrompt:
		if p.Prompt == nil {
			return nil
		}
		return &p.Prompt.Metrics
	}
	return nil
}

// SummaryFor returns the job-specific summary counts for a completed run.
func (p *Pursuit) SummaryFor(kind JobKind) map[string]int {
	switch kind {
	case JobKindExtraction:
		if p.Extraction != nil {
			return map[string]int{"fields_extracted": p.Extraction.FieldCount()}
		}
	case JobKindGapAnalysis:
		if p.GapAnalysis != nil {
			return map[string]int{"gaps_found": len(p.GapAnalysis.Gaps)}
		}
	case JobKindPrompt:
		if p.Prompt != nil {
			return map[string]int{"prompt_chars": len(p.Prompt.Prompt)}
		}
	}
	return nil
}

// RunMetrics holds the execution metrics a terminal job result carries.
// Absent metrics default to zero when a run entry is built from them.
type RunMetrics struct {
	GeneratedAt time.Time `json:"generated_at"`
	DurationMS  int64     `json:"duration_ms"`
	TokensIn    int       `json:"tokens_in"`
	TokensOut   int       `json:"tokens_out"`
	CostUSD     float64   `json:"cost_usd"`
}

// ExtractionResult is the output of a metadata extraction job.
type ExtractionResult struct {
	Fields  map[string]any `json:"fields"`
	Metrics RunMetrics     `json:"metrics"`
}

// FieldCount returns the number of non-empty extracted fields.
func (r *ExtractionResult) FieldCount() int {
	n := 0
	for _, v := range r.Fields {
		if v != nil && v != "" {
			n++
		}
	}
	return n
}

// Gap is a single requirement the gap analysis flagged as unaddressed.
type Gap struct {
	Requirement string `json:"requirement"`
	Severity    string `json:"severity"`
	Detail      string `json:"detail,omitempty"`
}

// GapAnalysisResult is the output of a requirement gap analysis job.
type GapAnalysisResult struct {
	Gaps    []Gap      `json:"gaps"`
	Metrics RunMetrics `json:"metrics"`
}

// PromptResult is the output of a research-prompt generation job.
type PromptResult struct {
	Prompt      string     `json:"prompt"`
	Regenerated bool       `json:"regenerated"`
	Metrics     RunMetrics `json:"metrics"`
}
