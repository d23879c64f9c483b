package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// State-bag keys are stable persisted contracts; consumers must tolerate
// additional keys written by newer versions.
const (
	StateKeyExtractionHistory  = "extraction_history"
	StateKeyGapAnalysisHistory = "gap_analysis_history"
	StateKeyPromptHistory      = "prompt_history"
	StateKeyOverviewSnapshot   = "overview_snapshot"
	StateKeySelectedReferences = "selected_reference_pursuits"
)

// StateBag is the pursuit's free-form structured extension area. Known keys
// get typed accessors; unknown keys round-trip untouched.
type StateBag map[string]json.RawMessage

// History decodes the run history stored under the given job kind's key.
// A missing or null key yields an empty list.
func (s StateBag) History(kind JobKind) ([]JobRunEntry, error) {
	raw, ok := s[kind.HistoryKey()]
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var entries []JobRunEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, eris.Wrapf(err, "model: decode %s", kind.HistoryKey())
	}
	return entries, nil
}

// SetHistory encodes entries under the job kind's history key.
func (s StateBag) SetHistory(kind JobKind, entries []JobRunEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return eris.Wrapf(err, "model: encode %s", kind.HistoryKey())
	}
	s[kind.HistoryKey()] = raw
	return nil
}

// OverviewSnapshot decodes the baseline field snapshot captured at an
// earlier stage, used as the left-hand side of conflict detection.
func (s StateBag) OverviewSnapshot() (map[string]any, error) {
	raw, ok := s[StateKeyOverviewSnapshot]
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var snap map[string]any
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, eris.Wrap(err, "model: decode overview_snapshot")
	}
	return snap, nil
}

// SetOverviewSnapshot encodes the baseline field snapshot.
func (s StateBag) SetOverviewSnapshot(snap map[string]any) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "model: encode overview_snapshot")
	}
	s[StateKeyOverviewSnapshot] = raw
	return nil
}

// SelectedReferences decodes the persisted reference selection.
func (s StateBag) SelectedReferences() (*SelectedReferences, error) {
	raw, ok := s[StateKeySelectedReferences]
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var sel SelectedReferences
	if err := json.Unmarshal(raw, &sel); err != nil {
		return nil, eris.Wrap(err, "model: decode selected_reference_pursuits")
	}
	return &sel, nil
}

// SetSelectedReferences encodes the persisted reference selection.
func (s StateBag) SetSelectedReferences(sel *SelectedReferences) error {
	raw, err := json.Marshal(sel)
	if err != nil {
		return eris.Wrap(err, "model: encode selected_reference_pursuits")
	}
	s[StateKeySelectedReferences] = raw
	return nil
}

// Merge overlays the keys of other onto a copy of s. Keys absent from other
// are preserved, so disjoint writers never clobber each other.
func (s StateBag) Merge(other StateBag) StateBag {
	merged := make(StateBag, len(s)+len(other))
	for k, v := range s {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}
