package ranker

import (
	"sort"

	"github.com/sells-group/pursuit-cli/internal/model"
)

// Selection is the in-memory, two-level selection of reference pursuits for
// one target. A record is selected as a whole; components are independently
// selected within it. Selecting a component implies the parent record, but
// deselecting the last component never implicitly deselects the parent.
type Selection struct {
	order      []string
	components map[string]map[string]struct{}
	details    map[string]model.PursuitDetail
	dirty      bool
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{
		components: make(map[string]map[string]struct{}),
		details:    make(map[string]model.PursuitDetail),
	}
}

// LoadSelection rebuilds a Selection from its persisted shape. A nil input
// yields an empty, clean selection.
func LoadSelection(sel *model.SelectedReferences) *Selection {
	s := NewSelection()
	if sel == nil {
		return s
	}
	for _, id := range sel.PursuitIDs {
		s.order = append(s.order, id)
		s.components[id] = make(map[string]struct{})
	}
	for id, names := range sel.Components {
		set, ok := s.components[id]
		if !ok {
			// Tolerate components for an id missing from the id list.
			set = make(map[string]struct{})
			s.components[id] = set
			s.order = append(s.order, id)
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	for _, d := range sel.PursuitDetails {
		s.details[d.ID] = d
	}
	return s
}

// IsSelected reports whether the record as a whole is selected.
func (s *Selection) IsSelected(id string) bool {
	_, ok := s.components[id]
	return ok
}

// IsComponentSelected reports whether a named component of the record is
// selected.
func (s *Selection) IsComponentSelected(id, name string) bool {
	set, ok := s.components[id]
	if !ok {
		return false
	}
	_, ok = set[name]
	return ok
}

// ToggleRecord flips whole-record selection. Deselecting drops the record's
// component selections and its cached detail snapshot.
func (s *Selection) ToggleRecord(cand *model.ReferencePursuit) {
	s.dirty = true
	if s.IsSelected(cand.ID) {
		delete(s.components, cand.ID)
		delete(s.details, cand.ID)
		for i, id := range s.order {
			if id == cand.ID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return
	}
	s.selectRecord(cand)
}

// ToggleComponent flips one component's selection. Selecting a component of
// an unselected record selects the record first; deselecting the record's
// last component leaves the record selected until explicitly deselected.
func (s *Selection) ToggleComponent(cand *model.ReferencePursuit, name string) {
	s.dirty = true
	if !s.IsSelected(cand.ID) {
		s.selectRecord(cand)
	}
	set := s.components[cand.ID]
	if _, ok := set[name]; ok {
		delete(set, name)
		return
	}
	set[name] = struct{}{}
}

func (s *Selection) selectRecord(cand *model.ReferencePursuit) {
	s.order = append(s.order, cand.ID)
	s.components[cand.ID] = make(map[string]struct{})
	s.details[cand.ID] = cand.Detail()
}

// Dirty reports whether the selection has mutated since the last MarkSaved.
func (s *Selection) Dirty() bool { return s.dirty }

// MarkSaved clears the dirty flag after the serialized selection has been
// persisted.
func (s *Selection) MarkSaved() { s.dirty = false }

// Serialize flattens the selection into its persisted shape: a record id
// list in selection order, sorted component-name lists per id, and the
// denormalized detail snapshot of each selected record. No live set objects
// escape.
func (s *Selection) Serialize() *model.SelectedReferences {
	out := &model.SelectedReferences{
		PursuitIDs: append([]string(nil), s.order...),
		Components: make(map[string][]string, len(s.components)),
	}
	for _, id := range s.order {
		names := make([]string, 0, len(s.components[id]))
		for n := range s.components[id] {
			names = append(names, n)
		}
		sort.Strings(names)
		out.Components[id] = names
		if d, ok := s.details[id]; ok {
			out.PursuitDetails = append(out.PursuitDetails, d)
		}
	}
	return out
}
