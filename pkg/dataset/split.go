package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// TrainTestSplit shuffles row indices with a seeded source and holds out
// round(n*testRatio) rows, keeping at least one row on each side. The same
// table, ratio and seed always give the same split.
func TrainTestSplit(t *Table, testRatio float64, seed int64) (train, test *Table, err error) {
	n := t.Len()
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 rows to split, got %d", ErrTooFewRows, n)
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %v", testRatio)
	}

	nTest := int(math.Round(float64(n) * testRatio))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}

	indices := rand.New(rand.NewSource(seed)).Perm(n)
	return t.Select(indices[nTest:]), t.Select(indices[:nTest]), nil
}
