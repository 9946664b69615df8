package lookup

import (
	"sort"

	"mention-lab/internal/domain"
)

// SuffixMax answers "highest high at or after t" over a fixed candle series.
// Build once in O(n); each query is a binary search.
type SuffixMax struct {
	timestamps []int64
	highs      []float64
	best       []int // best[i] = index of the max high in [i, n), latest on ties
}

// BuildSuffixMax preprocesses candles, which must be sorted by Timestamp ascending.
func BuildSuffixMax(candles []domain.PriceCandle) *SuffixMax {
	n := len(candles)
	s := &SuffixMax{
		timestamps: make([]int64, n),
		highs:      make([]float64, n),
		best:       make([]int, n),
	}
	for i, c := range candles {
		s.timestamps[i] = c.Timestamp
		s.highs[i] = c.High
	}

	for i := n - 1; i >= 0; i-- {
		if i == n-1 {
			s.best[i] = i
			continue
		}
		next := s.best[i+1]
		switch {
		case s.highs[i] > s.highs[next]:
			s.best[i] = i
		case s.highs[i] == s.highs[next] && s.timestamps[i] > s.timestamps[next]:
			// Equal timestamps can appear when pools are merged.
			s.best[i] = i
		default:
			s.best[i] = next
		}
	}

	return s
}

// Len returns the number of candles in the series.
func (s *SuffixMax) Len() int {
	return len(s.timestamps)
}

// From returns the max high among candles with Timestamp >= ts and the
// timestamp of that candle. ok is false when no candle qualifies.
func (s *SuffixMax) From(ts int64) (high float64, at int64, ok bool) {
	i := sort.Search(len(s.timestamps), func(i int) bool { return s.timestamps[i] >= ts })
	if i >= len(s.timestamps) {
		return 0, 0, false
	}
	b := s.best[i]
	return s.highs[b], s.timestamps[b], true
}
