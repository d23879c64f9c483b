package model

import "time"

// WinStatus is the outcome of a historical pursuit.
type WinStatus string

const (
	WinStatusWon       WinStatus = "won"
	WinStatusSubmitted WinStatus = "submitted"
	WinStatusLost      WinStatus = "lost"
	WinStatusUnknown   WinStatus = "unknown"
)

// Component is a named, independently selectable unit of a reference
// pursuit's content (e.g., a document section).
type Component struct {
	Name      string  `json:"name"`
	WordCount int     `json:"word_count"`
	Relevance float64 `json:"relevance"`
}

// ReferencePursuit is a candidate historical record considered as reference
// material for a target pursuit.
type ReferencePursuit struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Client       string      `json:"client,omitempty"`
	Industry     string      `json:"industry,omitempty"`
	ServiceTypes []string    `json:"service_types,omitempty"`
	Technologies []string    `json:"technologies,omitempty"`
	QualityTag   string      `json:"quality_tag,omitempty"`
	WinStatus    WinStatus   `json:"win_status,omitempty"`
	Components   []Component `json:"components,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Detail returns the denormalized display snapshot of the candidate.
func (r *ReferencePursuit) Detail() PursuitDetail {
	return PursuitDetail{
		ID:         r.ID,
		Name:       r.Name,
		Client:     r.Client,
		Industry:   r.Industry,
		QualityTag: r.QualityTag,
		WinStatus:  r.WinStatus,
		CreatedAt:  r.CreatedAt,
	}
}

// PursuitDetail is the denormalized display snapshot of a selected
// candidate, persisted so the selection can be rendered without re-fetching.
// Staleness is accepted; there is no automatic invalidation.
type PursuitDetail struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Client     string    `json:"client,omitempty"`
	Industry   string    `json:"industry,omitempty"`
	QualityTag string    `json:"quality_tag,omitempty"`
	WinStatus  WinStatus `json:"win_status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SelectedReferences is the flat, serializable shape of a reference
// selection as persisted in the pursuit's state bag. It never holds live
// in-memory set objects.
type SelectedReferences struct {
	PursuitIDs     []string            `json:"pursuit_ids"`
	Components     map[string][]string `json:"components"`
	PursuitDetails []PursuitDetail     `json:"pursuit_details,omitempty"`
}

// FieldConflict is a discrepancy between the baseline snapshot and a freshly
// extracted value for one field. It exists only transiently between
// detection and resolution and is never persisted.
type FieldConflict struct {
	Field    string `json:"field"`
	Baseline any    `json:"baseline"`
	Current  any    `json:"current"`
}
