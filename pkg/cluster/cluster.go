// Package cluster implements the greedy-clustering Cluster type: a
// consensus spectrum plus the bounded, ordered cache of its best recorded
// comparisons. A cluster never stores member peaks directly.
package cluster

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/soundprediction/spectracluster/pkg/consensus"
	"github.com/soundprediction/spectracluster/pkg/spectrum"
)

// K is the fixed capacity of a cluster's best-matches cache.
const K = 30

// Match is a recorded comparison against another cluster or spectrum,
// ordered by Similarity ascending with ties broken by insertion order.
type Match struct {
	OtherID    string
	Similarity float32
	seq        int64
}

// Cluster groups spectra hypothesized to share a peptide ion, summarized
// by an incrementally maintained consensus spectrum.
type Cluster struct {
	id         string
	memberIDs  map[string]struct{}
	consensus  *consensus.State
	bestMatch  []Match
	bestIndex  map[string]struct{} // lazy cache, nil means "not built"
	matchSeq   int64
}

// New creates an empty cluster whose id is its consensus spectrum's uui.
func New(noiseFilterIncrement int32) *Cluster {
	cs := consensus.New(noiseFilterIncrement)
	return &Cluster{
		id:        cs.Uui(),
		memberIDs: make(map[string]struct{}),
		consensus: cs,
	}
}

// ID returns the cluster's current id (the consensus uui; may change on
// merge, see MergeCluster).
func (c *Cluster) ID() string { return c.id }

// MemberCount returns the number of distinct member spectrum uuis.
func (c *Cluster) MemberCount() int { return len(c.memberIDs) }

// MemberIDs returns a snapshot of the member uui set.
func (c *Cluster) MemberIDs() []string {
	out := make([]string, 0, len(c.memberIDs))
	for id := range c.memberIDs {
		out = append(out, id)
	}
	return out
}

// Representative returns the cluster's current representative spectrum,
// recomputed lazily by the consensus state if it has changed.
func (c *Cluster) Representative() spectrum.BinarySpectrum {
	return c.consensus.Representative()
}

// PrecursorMzBin returns the consensus's current precursor bin, used by the
// engine to keep the active list ordered.
func (c *Cluster) PrecursorMzBin() int32 {
	return c.consensus.Representative().PrecursorMzBin
}

// AddSpectra folds the given spectra into the cluster's consensus,
// dropping any whose uui is already a member, with a warning when logger
// is non-nil (spec.md §7: DuplicateSpectrumInCluster is absorbed, not
// fatal). Returns the number
// of spectra actually added.
func (c *Cluster) AddSpectra(logger *slog.Logger, spectra ...spectrum.BinarySpectrum) int {
	added := 0
	for _, s := range spectra {
		if _, exists := c.memberIDs[s.Uui]; exists {
			if logger != nil {
				logger.Warn("duplicate spectrum in cluster, dropping", "uui", s.Uui, "cluster", c.id)
			}
			continue
		}
		c.consensus.Add(s)
		c.memberIDs[s.Uui] = struct{}{}
		added++
	}
	return added
}

// MergeCluster absorbs other's members, consensus, and best-matches cache
// into c. Overlapping member ids are de-duplicated with a warning rather
// than treated as fatal (spec.md §7: DuplicateOnMerge). If other has more
// members than c, c adopts other's id so the surviving cluster keeps the
// larger consensus's identity.
func (c *Cluster) MergeCluster(logger *slog.Logger, other *Cluster) {
	adoptOtherID := other.MemberCount() > c.MemberCount()
	overlap := 0
	for id := range other.memberIDs {
		if _, exists := c.memberIDs[id]; exists {
			overlap++
			continue
		}
		c.memberIDs[id] = struct{}{}
	}
	if overlap > 0 && logger != nil {
		logger.Warn("overlapping members on cluster merge", "count", overlap, "into", c.id, "from", other.id)
	}

	c.consensus.Merge(other.consensus)

	c.bestMatch = append(c.bestMatch, other.bestMatch...)
	sortMatches(c.bestMatch)
	if len(c.bestMatch) > K {
		c.bestMatch = c.bestMatch[len(c.bestMatch)-K:]
	}
	c.bestIndex = nil

	if adoptOtherID {
		c.id = other.id
	}
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity < matches[j].Similarity
		}
		return matches[i].seq < matches[j].seq
	})
}

// minBestSim returns the lowest similarity currently remembered, or -1 if
// the cache is empty.
func (c *Cluster) minBestSim() float32 {
	if len(c.bestMatch) == 0 {
		return -1
	}
	return c.bestMatch[0].Similarity
}

// SaveComparisonResult records a comparison against otherID if the cache
// has room or the new similarity beats the current minimum; the cache is
// kept sorted ascending and trimmed to K.
func (c *Cluster) SaveComparisonResult(otherID string, similarity float32) {
	if len(c.bestMatch) >= K && similarity <= c.minBestSim() {
		return
	}

	c.matchSeq++
	c.bestMatch = append(c.bestMatch, Match{OtherID: otherID, Similarity: similarity, seq: c.matchSeq})
	sortMatches(c.bestMatch)
	if len(c.bestMatch) > K {
		c.bestMatch = c.bestMatch[len(c.bestMatch)-K:]
	}
	c.bestIndex = nil
}

// BestMatches returns the current bounded, ascending-by-similarity cache.
func (c *Cluster) BestMatches() []Match {
	out := make([]Match, len(c.bestMatch))
	copy(out, c.bestMatch)
	return out
}

// IsInBestComparisonResults reports whether id appears in the best-matches
// cache, rebuilding the lazy id index first if it has been invalidated.
func (c *Cluster) IsInBestComparisonResults(id string) bool {
	if c.bestIndex == nil {
		c.bestIndex = make(map[string]struct{}, len(c.bestMatch))
		for _, m := range c.bestMatch {
			c.bestIndex[m.OtherID] = struct{}{}
		}
	}
	_, ok := c.bestIndex[id]
	return ok
}

// Consensus returns the cluster's underlying consensus state, for
// pkg/store persistence.
func (c *Cluster) Consensus() *consensus.State { return c.consensus }

// Restore reconstructs a Cluster from persisted fields. matches should be
// built with only OtherID/Similarity set (their insertion order is taken
// as persisted ascending order); Restore assigns fresh insertion
// sequences and re-sorts defensively. Used by pkg/store deserialization.
func Restore(id string, memberIDs []string, cs *consensus.State, matches []Match) *Cluster {
	m := make(map[string]struct{}, len(memberIDs))
	for _, mid := range memberIDs {
		m[mid] = struct{}{}
	}
	restored := append([]Match(nil), matches...)
	for i := range restored {
		restored[i].seq = int64(i + 1)
	}
	c := &Cluster{
		id:        id,
		memberIDs: m,
		consensus: cs,
		bestMatch: restored,
		matchSeq:  int64(len(restored)),
	}
	sortMatches(c.bestMatch)
	return c
}

// Validate checks the cluster's invariants, returning an error describing
// the first violation found. Intended for tests and defensive assertions,
// not the hot path.
func (c *Cluster) Validate() error {
	if int64(len(c.memberIDs)) != c.consensus.NSpectra() {
		return fmt.Errorf("cluster %s: memberIDs=%d nSpectra=%d", c.id, len(c.memberIDs), c.consensus.NSpectra())
	}
	if len(c.bestMatch) > K {
		return fmt.Errorf("cluster %s: bestMatch len %d exceeds K=%d", c.id, len(c.bestMatch), K)
	}
	for i := 1; i < len(c.bestMatch); i++ {
		if c.bestMatch[i].Similarity < c.bestMatch[i-1].Similarity {
			return fmt.Errorf("cluster %s: bestMatch not sorted ascending at %d", c.id, i)
		}
	}
	return nil
}
