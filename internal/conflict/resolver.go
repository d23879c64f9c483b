// Package conflict compares a pursuit's baseline field snapshot against its
// freshly extracted values and walks the operator through resolving the
// discrepancies one field at a time.
package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/pursuit-cli/internal/model"
	"github.com/sells-group/pursuit-cli/internal/store"
)

// DefaultFields are the pursuit fields subject to conflict detection, in
// presentation order. Keys match the persisted record layout.
var DefaultFields = []string{
	"entity_name",
	"industry",
	"geography",
	"due_date",
	"estimated_value",
	"output_format",
	"service_types",
	"technologies",
}

// fold lowercases with full Unicode case folding. Casers are stateful, so a
// fresh one is built per call rather than shared across goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Detect compares baseline and current values for each named field and
// returns the conflicts in field order. A field conflicts only when both
// sides are present and unequal: scalars by value, lists by set membership
// ignoring order and letter case. Missing or empty sides never conflict.
func Detect(baseline, current map[string]any, fields []string) []model.FieldConflict {
	var out []model.FieldConflict
	for _, f := range fields {
		b, bok := value(baseline, f)
		c, cok := value(current, f)
		if !bok || !cok {
			continue
		}
		if equal(b, c) {
			continue
		}
		out = append(out, model.FieldConflict{Field: f, Baseline: b, Current: c})
	}
	return out
}

func value(m map[string]any, key string) (any, bool) {
	v, ok := m[key]
	if !ok || v == nil || v == "" {
		return nil, false
	}
	if l, isList := toList(v); isList && len(l) == 0 {
		return nil, false
	}
	return v, true
}

func equal(a, b any) bool {
	al, aList := toList(a)
	bl, bList := toList(b)
	if aList || bList {
		if !aList || !bList {
			return false
		}
		return setEqual(al, bl)
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func setEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[fold(v)] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[fold(v)]; !ok {
			return false
		}
	}
	return true
}

func toList(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, len(l))
		for i, e := range l {
			out[i] = fmt.Sprint(e)
		}
		return out, true
	}
	return nil, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Resolver holds the pending conflicts for one pursuit. Resolution is
// field-atomic and never re-runs detection, so resolving one field can never
// resurrect another.
type Resolver struct {
	store store.Store
	id    string

	baseline map[string]any
	pending  []model.FieldConflict
}

// New detects conflicts between the pursuit's overview snapshot and its
// latest extraction output. A pursuit without a baseline or without an
// extraction result yields an empty resolver.
func New(st store.Store, p *model.Pursuit) (*Resolver, error) {
	baseline, err := p.State.OverviewSnapshot()
	if err != nil {
		return nil, eris.Wrap(err, "conflict: load baseline")
	}
	var current map[string]any
	if p.Extraction != nil {
		current = p.Extraction.Fields
	}
	r := &Resolver{
		store:    st,
		id:       p.ID,
		baseline: baseline,
		pending:  Detect(baseline, current, DefaultFields),
	}
	return r, nil
}

// Pending returns the unresolved conflicts in field order.
func (r *Resolver) Pending() []model.FieldConflict {
	return append([]model.FieldConflict(nil), r.pending...)
}

// Resolve writes the chosen side of one field's conflict to the live record
// and drops that conflict from the pending list. The baseline snapshot is
// updated to the chosen value so future detections stay quiet for the field.
// Resolving a field that is no longer pending is a no-op.
func (r *Resolver) Resolve(ctx context.Context, field string, chooseCurrent bool) error {
	idx := -1
	for i, c := range r.pending {
		if c.Field == field {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	c := r.pending[idx]
	chosen := c.Baseline
	if chooseCurrent {
		chosen = c.Current
	}

	if r.baseline == nil {
		r.baseline = make(map[string]any)
	}
	r.baseline[field] = chosen

	payload := map[string]any{
		field: chosen,
		"state": map[string]any{
			model.StateKeyOverviewSnapshot: r.baseline,
		},
	}
	if _, err := r.store.SavePursuit(ctx, r.id, payload); err != nil {
		return eris.Wrapf(err, "conflict: resolve %s", field)
	}

	r.pending = append(r.pending[:idx], r.pending[idx+1:]...)
	zap.L().Info("conflict: resolved",
		zap.String("pursuit", r.id),
		zap.String("field", field),
		zap.Bool("kept_current", chooseCurrent),
		zap.Int("remaining", len(r.pending)))
	return nil
}
