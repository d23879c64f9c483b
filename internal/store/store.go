// Package store persists pursuit records and the analysis job queue.
package store

import (
	"context"

	"github.com/sells-group/pursuit-cli/internal/model"
)

// Store defines the persistence interface for pursuit records. The record
// store owns every record; callers hold views and write back partial field
// sets only.
type Store interface {
	// Pursuits
	GetPursuit(ctx context.Context, id string) (*model.Pursuit, error)
	// SavePursuit merges the given fields into the stored record. Top-level
	// keys are last-writer-wins; the "state" key merges one level deep so
	// writers of disjoint state keys never clobber each other.
	SavePursuit(ctx context.Context, id string, fields map[string]any) (*model.Pursuit, error)
	PutPursuit(ctx context.Context, p *model.Pursuit) error

	// Job queue
	StartJob(ctx context.Context, id string, kind model.JobKind, payload map[string]any) error
	NextPendingJob(ctx context.Context) (*model.AnalysisJob, error)
	CompleteJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error

	// Reference library
	PutReference(ctx context.Context, r *model.ReferencePursuit) error
	ListReferences(ctx context.Context) ([]model.ReferencePursuit, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// mergeFields overlays fields onto doc. Top-level keys are replaced; the
// "state" key merges one level deep when both sides are objects.
func mergeFields(doc, fields map[string]any) map[string]any {
	merged := make(map[string]any, len(doc)+len(fields))
	for k, v := range doc {
		merged[k] = v
	}
	for k, v := range fields {
		if k == "state" {
			existing, okOld := merged[k].(map[string]any)
			incoming, okNew := v.(map[string]any)
			if okOld && okNew {
				state := make(map[string]any, len(existing)+len(incoming))
				for sk, sv := range existing {
					state[sk] = sv
				}
				for sk, sv := range incoming {
					state[sk] = sv
				}
				merged[k] = state
				continue
			}
		}
		merged[k] = v
	}
	return merged
}
