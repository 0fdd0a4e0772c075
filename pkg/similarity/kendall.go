package similarity

import "math"

// KendallTauB computes Kendall's tau-b rank correlation over pre-paired
// integer intensities, with Knight's tie correction. It takes paired slices
// directly (rather than building an intermediate pair struct) to avoid
// allocating on the engine's hot comparison path.
//
// xs and ys must have equal length; behavior is undefined (returns 0) for
// fewer than two pairs.
func KendallTauB(xs, ys []int32) float64 {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0
	}

	var concordant, discordant, tiesX, tiesY, tiesXY int64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := xs[i] - xs[j]
			dy := ys[i] - ys[j]
			switch {
			case dx == 0 && dy == 0:
				tiesXY++
			case dx == 0:
				tiesX++
			case dy == 0:
				tiesY++
			case (dx > 0) == (dy > 0):
				concordant++
			default:
				discordant++
			}
		}
	}

	total := int64(n) * int64(n-1) / 2
	n0 := total
	n1 := tiesX + tiesXY // pairs tied on x
	n2 := tiesY + tiesXY // pairs tied on y

	denomX := float64(n0 - n1)
	denomY := float64(n0 - n2)
	if denomX <= 0 || denomY <= 0 {
		return 0
	}

	return float64(concordant-discordant) / math.Sqrt(denomX*denomY)
}
