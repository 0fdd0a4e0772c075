// Package msp renders the consensus spectrum header lines an external MSP
// writer needs (spec.md §6, §8 S5) and extracts modification annotations
// from annotated peptide sequences (spec.md §8 S6). Writing the MSP file
// itself remains an external collaborator's job.
package msp

import (
	"fmt"
	"strconv"
	"strings"
)

// Mod is one modification annotation extracted from a sequence: the
// zero-based residue count at which it occurs ('[' for the N-terminus,
// ']' for the C-terminus when the mod is the very last token) and the
// modification's name.
type Mod struct {
	Position int
	Residue  byte
	Name     string
}

// knownMods maps a delta mass in Da to its common name, the small table
// spec.md §4 (supplemented features) calls for. Lookup tolerates ±0.005 Da.
var knownMods = []struct {
	Mass float64
	Name string
}{
	{42.0106, "Acetyl"},
	{15.9949, "Oxidation"},
	{57.0215, "Carbamidomethyl"},
}

func modName(mass float64) string {
	for _, m := range knownMods {
		if diff := mass - m.Mass; diff < 0.005 && diff > -0.005 {
			return m.Name
		}
	}
	return fmt.Sprintf("Delta%.3f", mass)
}

// ExtractModsFromSequence parses a sequence annotated with inline
// "+mass"/"-mass" modification markers, e.g.
// "+42.011EVQLVET+42.011GGGLIQPGGSLR+42.011". A marker before any residue
// is the N-terminal mod (residue '['); a marker with no residues
// following it is the C-terminal mod (residue ']'); any other marker is
// attached to the residue immediately preceding it.
func ExtractModsFromSequence(seq string) []Mod {
	var mods []Mod
	residueCount := 0
	lastResidue := byte('[')

	i := 0
	for i < len(seq) {
		c := seq[i]
		if c == '+' || c == '-' {
			start := i
			i++
			for i < len(seq) && (seq[i] == '.' || (seq[i] >= '0' && seq[i] <= '9')) {
				i++
			}
			mass, err := strconv.ParseFloat(seq[start:i], 64)
			if err != nil {
				continue
			}

			residue := lastResidue
			if residueCount == 0 {
				residue = '['
			} else if i >= len(seq) {
				residue = ']'
			}

			mods = append(mods, Mod{Position: residueCount, Residue: residue, Name: modName(mass)})
			continue
		}

		lastResidue = c
		residueCount++
		i++
	}
	return mods
}

// GetModString renders mods as the MSP comment field's Mods= value:
// "<count>(pos,residue,name)(pos,residue,name)...".
func GetModString(mods []Mod) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", len(mods))
	for _, m := range mods {
		fmt.Fprintf(&b, "(%d,%c,%s)", m.Position, m.Residue, m.Name)
	}
	return b.String()
}

// HeaderParams carries everything RenderHeader needs to reproduce the
// deterministic Name:/Comment:/Num peaks: block an MSP writer emits per
// cluster.
type HeaderParams struct {
	// AnnotatedSequence includes inline modification markers, e.g.
	// "+42.011EVQLVETGGGLIQPGGSLR".
	AnnotatedSequence string
	Charge            int
	ParentMz          float64
	Nreps             int
	Naa               int
	MaxRatio          float64
	NumPeaks          int
}

// RenderHeader returns the three header lines in order: Name:, Comment:,
// Num peaks:.
func RenderHeader(p HeaderParams) []string {
	mods := ExtractModsFromSequence(p.AnnotatedSequence)

	name := fmt.Sprintf("Name: %s/%d", p.AnnotatedSequence, p.Charge)
	comment := fmt.Sprintf(
		"Comment: Spec=Consensus Parent=%.4f Mods=%s Nreps=%d Naa=%d MaxRatio=%.3f",
		p.ParentMz, GetModString(mods), p.Nreps, p.Naa, p.MaxRatio,
	)
	numPeaks := fmt.Sprintf("Num peaks: %d", p.NumPeaks)

	return []string{name, comment, numPeaks}
}

// RenderPeakLines formats parallel mz/intensity bins as "mz\tintensity"
// lines, assumed already sorted ascending by mz (BinarySpectrum's
// invariant).
func RenderPeakLines(mz []int32, intensity []int32) []string {
	lines := make([]string, len(mz))
	for i := range mz {
		lines[i] = fmt.Sprintf("%d\t%d", mz[i], intensity[i])
	}
	return lines
}
