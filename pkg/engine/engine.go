// Package engine implements the streaming greedy clustering state machine:
// a precursor-bin-ordered active list that a single goroutine drives one
// spectrum (or, in merge mode, one cluster) at a time. The Engine itself is
// not safe for concurrent use, matching spec.md §5's single-threaded
// cooperative scheduling model.
package engine

import (
	"context"
	"log/slog"

	"github.com/soundprediction/spectracluster/pkg/assessor"
	"github.com/soundprediction/spectracluster/pkg/cluster"
	"github.com/soundprediction/spectracluster/pkg/similarity"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

// CancelToken is a cooperative, context-backed poll point checked between
// spectra (or clusters, in merge mode). Cancellation flushes the active
// list in order rather than dropping it; mid-spectrum cancellation is not
// supported.
type CancelToken struct {
	ctx context.Context
}

// NewCancelToken wraps a context as a CancelToken.
func NewCancelToken(ctx context.Context) CancelToken {
	if ctx == nil {
		ctx = context.Background()
	}
	return CancelToken{ctx: ctx}
}

// Cancelled reports whether the underlying context has been cancelled.
func (t CancelToken) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Config parameterizes the engine, mirroring spec.md §4.5's parameter list.
type Config struct {
	// PrecursorToleranceBins is Δp, the half-width of the candidate window
	// and eviction threshold, in precursor m/z bins.
	PrecursorToleranceBins int32
	// NoiseFilterIncrement is forwarded to newly created clusters' consensus
	// state.
	NoiseFilterIncrement int32
	Scorer                similarity.Scorer
	Assessor              *assessor.MinNumberComparisonsAssessor
	// Predicates runs, in order, as the cheap pre-filter of step 3; a
	// candidate is rejected if any predicate rejects it.
	Predicates []cluster.Predicate
	Logger     *slog.Logger
}

// Engine drives the greedy clustering state machine described in spec.md
// §4.5. It holds no exported state; callers drive it through Run/RunMerge
// and read its empty-spectrum counter through EmptySpectraDropped.
type Engine struct {
	cfg    Config
	active []activeEntry
	nCmp   map[string]int
	seq    int64

	emptySpectra int64
}

type activeEntry struct {
	c   *cluster.Cluster
	seq int64
}

// New constructs an Engine from cfg, filling in safe zero-value defaults
// where cfg leaves a required field unset.
func New(cfg Config) *Engine {
	if cfg.PrecursorToleranceBins <= 0 {
		cfg.PrecursorToleranceBins = 1
	}
	if cfg.Scorer == nil {
		cfg.Scorer = similarity.CombinedFisherIntensityTest{}
	}
	return &Engine{
		cfg:  cfg,
		nCmp: make(map[string]int),
	}
}

// EmptySpectraDropped returns the running count of input spectra skipped
// because they carried no peaks (spec.md §7: EmptySpectrumWarning).
func (e *Engine) EmptySpectraDropped() int64 { return e.emptySpectra }

func (e *Engine) log() *slog.Logger {
	if e.cfg.Logger != nil {
		return e.cfg.Logger
	}
	return slog.Default()
}

// chargeCompatible implements the "exact match required unless charge = 0
// = wildcard" rule.
func chargeCompatible(a, b int32) bool {
	return a == 0 || b == 0 || a == b
}

// precursorBinOf returns a cluster's current consensus precursor bin.
func precursorBinOf(c *cluster.Cluster) int32 { return c.PrecursorMzBin() }

// insertActive inserts e into the active list, keeping it sorted ascending
// by precursor bin with ties broken by creation sequence (stable).
func (eng *Engine) insertActive(entry activeEntry) {
	bin := precursorBinOf(entry.c)
	i := 0
	for i < len(eng.active) {
		other := eng.active[i]
		otherBin := precursorBinOf(other.c)
		if otherBin > bin || (otherBin == bin && other.seq > entry.seq) {
			break
		}
		i++
	}
	eng.active = append(eng.active, activeEntry{})
	copy(eng.active[i+1:], eng.active[i:])
	eng.active[i] = entry
}

// removeActiveAt removes the entry at index i.
func (eng *Engine) removeActiveAt(i int) activeEntry {
	entry := eng.active[i]
	eng.active = append(eng.active[:i], eng.active[i+1:]...)
	return entry
}

// repositionActive removes idx and reinserts its entry at the position
// matching its (possibly changed) current precursor bin, preserving its
// original creation sequence for tie-breaking.
func (eng *Engine) repositionActive(idx int) {
	entry := eng.removeActiveAt(idx)
	eng.insertActive(entry)
}

// evict moves every active cluster whose precursor bin is more than Δp
// below refBin to out, in ascending precursor order, and removes it from
// active. refBin is the incoming spectrum/cluster's precursor bin, or nil
// to evict everything (used at stream termination and on cancellation).
func (eng *Engine) evict(refBin *int32, out func(*cluster.Cluster)) {
	i := 0
	for i < len(eng.active) {
		bin := precursorBinOf(eng.active[i].c)
		if refBin != nil && bin >= *refBin-eng.cfg.PrecursorToleranceBins {
			break
		}
		entry := eng.removeActiveAt(i)
		delete(eng.nCmp, entry.c.ID())
		out(entry.c)
	}
}

// candidateWindow returns the indices into active within Δp precursor bins
// of refBin and charge-compatible with refCharge.
func (eng *Engine) candidateWindow(refBin, refCharge int32) []int {
	var idx []int
	for i, entry := range eng.active {
		bin := precursorBinOf(entry.c)
		if abs32(bin-refBin) > eng.cfg.PrecursorToleranceBins {
			continue
		}
		if !chargeCompatible(entry.c.Representative().PrecursorCharge, refCharge) {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func (eng *Engine) admitted(c *cluster.Cluster, s spectrum.BinarySpectrum) bool {
	for _, p := range eng.cfg.Predicates {
		if !p.Admit(c, s) {
			return false
		}
	}
	return true
}

// decision is the outcome of steps 4-6 for one incoming spectrum/cluster.
type decision struct {
	idx       int // index into active, or -1 if no match
	similarity float32
}

// decide scores every candidate in idxs against s, records the comparison
// in each candidate's bestMatches, and picks the best match clearing its
// threshold, tie-broken by highest member count then lowest precursor bin
// then lowest id.
func (eng *Engine) decide(idxs []int, s spectrum.BinarySpectrum) decision {
	best := decision{idx: -1}
	for _, i := range idxs {
		c := eng.active[i].c
		if !eng.admitted(c, s) {
			continue
		}

		sigma := eng.cfg.Scorer.Score(c.Representative(), s)
		eng.nCmp[c.ID()]++
		c.SaveComparisonResult(s.Uui, float32(sigma))

		t := 0.0
		if eng.cfg.Assessor != nil {
			t = eng.cfg.Assessor.Threshold(eng.nCmp[c.ID()])
		}
		if sigma < t {
			continue
		}
		if best.idx == -1 || betterMatch(c, float32(sigma), eng.active[best.idx].c, best.similarity) {
			best = decision{idx: i, similarity: float32(sigma)}
		}
	}
	return best
}

// betterMatch implements the step-6 tie-break: higher similarity wins;
// then higher member count; then lower precursor bin; then lower id.
func betterMatch(c1 *cluster.Cluster, sim1 float32, c2 *cluster.Cluster, sim2 float32) bool {
	if sim1 != sim2 {
		return sim1 > sim2
	}
	if c1.MemberCount() != c2.MemberCount() {
		return c1.MemberCount() > c2.MemberCount()
	}
	if c1.PrecursorMzBin() != c2.PrecursorMzBin() {
		return c1.PrecursorMzBin() < c2.PrecursorMzBin()
	}
	return c1.ID() < c2.ID()
}

// Run consumes spectra from in, emitting clusters to out in non-decreasing
// precursor-bin order, until in closes or token is cancelled. On
// cancellation the remaining active list is flushed in order and Run
// returns without error.
func (eng *Engine) Run(token CancelToken, in <-chan spectrum.BinarySpectrum, out chan<- *cluster.Cluster) {
	defer close(out)
	emit := func(c *cluster.Cluster) { out <- c }

	for s := range in {
		if token.Cancelled() {
			break
		}
		if len(s.Mz) == 0 {
			eng.emptySpectra++
			eng.log().Warn("dropping spectrum with no peaks after filtering", "uui", s.Uui)
			continue
		}

		bin := s.PrecursorMzBin
		eng.evict(&bin, emit)

		idxs := eng.candidateWindow(bin, s.PrecursorCharge)
		best := eng.decide(idxs, s)

		if best.idx >= 0 {
			c := eng.active[best.idx].c
			c.AddSpectra(eng.log(), s)
			eng.repositionActive(best.idx)
			continue
		}

		fresh := cluster.New(eng.cfg.NoiseFilterIncrement)
		fresh.AddSpectra(eng.log(), s)
		eng.seq++
		eng.insertActive(activeEntry{c: fresh, seq: eng.seq})
	}

	eng.evict(nil, emit)
}

// RunMerge consumes a stream of clusters (e.g. the output of an earlier
// pass or a parallel shard) and merges them into the active list with the
// same window/score/decide/insert protocol as Run, using mergeCluster
// instead of addSpectra. Self-comparison is excluded by construction since
// the incoming cluster is never itself a member of active until inserted.
func (eng *Engine) RunMerge(token CancelToken, in <-chan *cluster.Cluster, out chan<- *cluster.Cluster) {
	defer close(out)
	emit := func(c *cluster.Cluster) { out <- c }

	for incoming := range in {
		if token.Cancelled() {
			break
		}

		rep := incoming.Representative()
		bin := rep.PrecursorMzBin
		eng.evict(&bin, emit)

		idxs := eng.candidateWindow(bin, rep.PrecursorCharge)
		filtered := idxs[:0:0]
		for _, i := range idxs {
			if eng.active[i].c.ID() == incoming.ID() {
				continue
			}
			filtered = append(filtered, i)
		}
		best := eng.decide(filtered, rep)

		if best.idx >= 0 {
			c := eng.active[best.idx].c
			c.MergeCluster(eng.log(), incoming)
			eng.repositionActive(best.idx)
			continue
		}

		eng.seq++
		eng.insertActive(activeEntry{c: incoming, seq: eng.seq})
	}

	eng.evict(nil, emit)
}
