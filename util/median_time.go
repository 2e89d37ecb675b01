package util

import (
	"sort"

	"github.com/bsv-blockchain/chainstate/errors"
)

// MedianTimeBlocks is the number of previous blocks used to compute the
// median time past.
const MedianTimeBlocks = 11

// CalcPastMedianTime returns the median of up to MedianTimeBlocks timestamps.
// For an even number of timestamps the upper middle value is returned, which
// only happens near genesis.
func CalcPastMedianTime(timestamps []int64) (int64, error) {
	if len(timestamps) == 0 {
		return 0, errors.NewProcessingError("no timestamps for median time calculation")
	}

	if len(timestamps) > MedianTimeBlocks {
		return 0, errors.NewProcessingError("too many timestamps for median time calculation")
	}

	sorted := make([]int64, len(timestamps))
	copy(sorted, timestamps)

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return sorted[len(sorted)/2], nil
}
