// Package ranker scores historical reference pursuits against a target
// pursuit and manages the two-level selection of the records chosen as
// reference material.
package ranker

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/sells-group/pursuit-cli/internal/model"
)

// Weights is the fixed convex combination used by Score. The vector is frozen
// at construction; it is not user-configurable.
type Weights struct {
	Semantic  float64
	Metadata  float64
	Coverage  float64
	Quality   float64
	WinStatus float64
	Recency   float64
}

// DefaultWeights is the production weight vector.
var DefaultWeights = Weights{
	Semantic:  0.60,
	Metadata:  0.12,
	Coverage:  0.10,
	Quality:   0.08,
	WinStatus: 0.05,
	Recency:   0.05,
}

const weightSumTolerance = 1e-9

func (w Weights) validate() error {
	for _, v := range []float64{w.Semantic, w.Metadata, w.Coverage, w.Quality, w.WinStatus, w.Recency} {
		if v < 0 || v > 1 {
			return eris.Errorf("ranker: weight %v outside [0,1]", v)
		}
	}
	sum := w.Semantic + w.Metadata + w.Coverage + w.Quality + w.WinStatus + w.Recency
	if math.Abs(sum-1.0) > weightSumTolerance {
		return eris.Errorf("ranker: weights sum to %v, want 1.0", sum)
	}
	return nil
}

// SemanticProvider supplies the semantic-similarity sub-score. It is the only
// collaborator that may suspend; the ranker invokes it once per candidate per
// ranking pass.
type SemanticProvider interface {
	Similarity(ctx context.Context, target *model.Pursuit, candidate *model.ReferencePursuit) (float64, error)
}

// SemanticFunc adapts a plain function to SemanticProvider.
type SemanticFunc func(ctx context.Context, target *model.Pursuit, candidate *model.ReferencePursuit) (float64, error)

func (f SemanticFunc) Similarity(ctx context.Context, target *model.Pursuit, candidate *model.ReferencePursuit) (float64, error) {
	return f(ctx, target, candidate)
}

// OverlapCalculator supplies the metadata-overlap sub-score. It must be pure.
type OverlapCalculator interface {
	Overlap(target *model.Pursuit, candidate *model.ReferencePursuit) float64
}

// Config tunes the locally computed sub-scores.
type Config struct {
	// RelevanceThreshold is the per-component relevance a component must
	// exceed to count toward coverage. Default: 0.5.
	RelevanceThreshold float64
	// RecencyHalfLifeDays controls how fast the recency sub-score decays.
	// Default: 365.
	RecencyHalfLifeDays float64
}

func (c Config) withDefaults() Config {
	if c.RelevanceThreshold <= 0 {
		c.RelevanceThreshold = 0.5
	}
	if c.RecencyHalfLifeDays <= 0 {
		c.RecencyHalfLifeDays = 365
	}
	return c
}

// Ranker computes weighted similarity scores for candidate reference
// pursuits. Scoring is pure and synchronous except for the semantic lookup.
type Ranker struct {
	weights  Weights
	cfg      Config
	semantic SemanticProvider
	overlap  OverlapCalculator

	now func() time.Time
}

// New builds a Ranker. The weight vector is validated here: an invalid sum is
// a construction error, never a silent renormalization. A nil semantic
// provider scores the semantic component as zero; a nil overlap calculator
// falls back to Jaccard overlap of the metadata term sets.
func New(weights Weights, cfg Config, semantic SemanticProvider, overlap OverlapCalculator) (*Ranker, error) {
	if err := weights.validate(); err != nil {
		return nil, err
	}
	if overlap == nil {
		overlap = JaccardOverlap{}
	}
	return &Ranker{
		weights:  weights,
		cfg:      cfg.withDefaults(),
		semantic: semantic,
		overlap:  overlap,
		now:      time.Now,
	}, nil
}

// ScoredCandidate pairs a candidate with its total score and the sub-scores
// that produced it.
type ScoredCandidate struct {
	Candidate model.ReferencePursuit `json:"candidate"`
	Score     float64                `json:"score"`
	SubScores map[string]float64     `json:"sub_scores"`
}

// Rank scores every candidate against the target and returns them sorted by
// score descending, ties broken by most recent creation time. Semantic
// lookups run concurrently but each candidate's lookup happens exactly once
// per pass.
func (r *Ranker) Rank(ctx context.Context, target *model.Pursuit, candidates []model.ReferencePursuit) ([]ScoredCandidate, error) {
	semantic := make([]float64, len(candidates))
	if r.semantic != nil {
		memo := newSemanticMemo(r.semantic)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for i := range candidates {
			g.Go(func() error {
				s, err := memo.similarity(gctx, target, &candidates[i])
				if err != nil {
					return eris.Wrapf(err, "ranker: semantic lookup for %s", candidates[i].ID)
				}
				semantic[i] = s
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	now := r.now().UTC()
	out := make([]ScoredCandidate, len(candidates))
	for i := range candidates {
		out[i] = r.score(target, candidates[i], semantic[i], now)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Candidate.CreatedAt.After(out[j].Candidate.CreatedAt)
	})

	zap.L().Debug("ranker: pass complete",
		zap.String("target", target.ID),
		zap.Int("candidates", len(out)))
	return out, nil
}

func (r *Ranker) score(target *model.Pursuit, cand model.ReferencePursuit, semantic float64, now time.Time) ScoredCandidate {
	sub := map[string]float64{
		"semantic":   clamp01(semantic),
		"metadata":   clamp01(r.overlap.Overlap(target, &cand)),
		"coverage":   r.coverage(cand.Components),
		"quality":    qualityScore(cand.QualityTag),
		"win_status": winScore(cand.WinStatus),
		"recency":    r.recency(cand.CreatedAt, now),
	}
	total := r.weights.Semantic*sub["semantic"] +
		r.weights.Metadata*sub["metadata"] +
		r.weights.Coverage*sub["coverage"] +
		r.weights.Quality*sub["quality"] +
		r.weights.WinStatus*sub["win_status"] +
		r.weights.Recency*sub["recency"]
	return ScoredCandidate{Candidate: cand, Score: clamp01(total), SubScores: sub}
}

// coverage is the fraction of components whose relevance exceeds the
// threshold. A candidate without components covers nothing.
func (r *Ranker) coverage(components []model.Component) float64 {
	if len(components) == 0 {
		return 0
	}
	n := 0
	for _, c := range components {
		if c.Relevance > r.cfg.RelevanceThreshold {
			n++
		}
	}
	return float64(n) / float64(len(components))
}

// fold lowercases with full Unicode case folding. Casers are stateful, so a
// fresh one is built per call rather than shared across goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

func qualityScore(tag string) float64 {
	switch fold(tag) {
	case "high":
		return 1.0
	case "medium":
		return 0.6
	case "low":
		return 0.3
	default:
		return 0.5
	}
}

func winScore(status model.WinStatus) float64 {
	switch status {
	case model.WinStatusWon:
		return 1.0
	case model.WinStatusSubmitted:
		return 0.7
	case model.WinStatusLost:
		return 0.2
	default:
		return 0.4
	}
}

// recency decays by half every RecencyHalfLifeDays. A missing timestamp
// scores zero rather than pretending the candidate is current.
func (r *Ranker) recency(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays <= 0 {
		return 1
	}
	return clamp01(math.Pow(2, -ageDays/r.cfg.RecencyHalfLifeDays))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// semanticMemo caches similarity results for the duration of one ranking
// pass, keyed by candidate id.
type semanticMemo struct {
	provider SemanticProvider
	mu       sync.Mutex
	cache    map[string]float64
}

func newSemanticMemo(p SemanticProvider) *semanticMemo {
	return &semanticMemo{provider: p, cache: make(map[string]float64)}
}

func (m *semanticMemo) similarity(ctx context.Context, target *model.Pursuit, cand *model.ReferencePursuit) (float64, error) {
	m.mu.Lock()
	if s, ok := m.cache[cand.ID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s, err := m.provider.Similarity(ctx, target, cand)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.cache[cand.ID] = s
	m.mu.Unlock()
	return s, nil
}

// JaccardOverlap computes metadata overlap as the Jaccard index of the
// case-folded term sets built from industry, service types, and technologies.
type JaccardOverlap struct{}

func (JaccardOverlap) Overlap(target *model.Pursuit, cand *model.ReferencePursuit) float64 {
	a := termSet(target.Industry, target.ServiceTypes, target.Technologies)
	b := termSet(cand.Industry, cand.ServiceTypes, cand.Technologies)
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func termSet(industry string, lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	if industry != "" {
		set[fold(industry)] = struct{}{}
	}
	for _, l := range lists {
		for _, t := range l {
			if t == "" {
				continue
			}
			set[fold(t)] = struct{}{}
		}
	}
	return set
}
