package gesture

import (
	"math"

	"github.com/hearme/signbridge/internal/landmark"
)

// DTWDistance calculates the Dynamic Time Warping distance between two frame
// sequences, normalized by the longer length. Returns +Inf if either is empty.
func DTWDistance(a, b landmark.Sequence) float64 {
	n := len(a)
	m := len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	// (n+1) x (m+1) cost matrix, row 0 and column 0 act as +Inf borders
	dtw := make([][]float64, n+1)
	for i := range dtw {
		dtw[i] = make([]float64, m+1)
		for j := range dtw[i] {
			dtw[i][j] = math.Inf(1)
		}
	}
	dtw[0][0] = 0

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := landmark.Distance(a[i-1], b[j-1])
			dtw[i][j] = cost + min(dtw[i-1][j], dtw[i][j-1], dtw[i-1][j-1])
		}
	}

	return dtw[n][m] / float64(max(n, m))
}
