package dsa

import (
	"sort"
)

// SuffixArray supports O(m log n) substring search over a fixed text.
type SuffixArray struct {
	Text string
	SA   []int // SA[i] = start of the i-th smallest suffix
	Rank []int // Rank[i] = position of suffix i in SA
}

// BuildSuffixArray constructs a suffix array by prefix doubling, O(n log^2 n).
func BuildSuffixArray(text string) *SuffixArray {
	n := len(text)
	if n == 0 {
		return &SuffixArray{Text: text, SA: []int{}, Rank: []int{}}
	}

	sa := &SuffixArray{
		Text: text,
		SA:   make([]int, n),
		Rank: make([]int, n),
	}
	for i := 0; i < n; i++ {
		sa.SA[i] = i
		sa.Rank[i] = int(text[i])
	}

	rankAt := func(pos int) int {
		if pos < n {
			return sa.Rank[pos]
		}
		return -1
	}

	tmpRank := make([]int, n)
	for k := 1; k < n; k *= 2 {
		sort.Slice(sa.SA, func(i, j int) bool {
			a, b := sa.SA[i], sa.SA[j]
			if sa.Rank[a] != sa.Rank[b] {
				return sa.Rank[a] < sa.Rank[b]
			}
			return rankAt(a+k) < rankAt(b+k)
		})

		tmpRank[sa.SA[0]] = 0
		for i := 1; i < n; i++ {
			prev, curr := sa.SA[i-1], sa.SA[i]
			tmpRank[curr] = tmpRank[prev]
			if sa.Rank[prev] != sa.Rank[curr] || rankAt(prev+k) != rankAt(curr+k) {
				tmpRank[curr]++
			}
		}
		copy(sa.Rank, tmpRank)

		if sa.Rank[sa.SA[n-1]] == n-1 {
			break
		}
	}

	return sa
}

// Search returns every start offset of pattern in ascending order.
func (sa *SuffixArray) Search(pattern string) []int {
	if len(pattern) == 0 || len(sa.SA) == 0 {
		return []int{}
	}

	n := len(sa.SA)
	m := len(pattern)

	left := sort.Search(n, func(i int) bool {
		suffix := sa.Text[sa.SA[i]:]
		if len(suffix) < m {
			return suffix >= pattern[:len(suffix)]
		}
		return suffix[:m] >= pattern
	})
	right := sort.Search(n, func(i int) bool {
		suffix := sa.Text[sa.SA[i]:]
		if len(suffix) < m {
			return suffix > pattern[:len(suffix)]
		}
		return suffix[:m] > pattern
	})

	var matches []int
	for i := left; i < right; i++ {
		pos := sa.SA[i]
		if pos+m <= len(sa.Text) && sa.Text[pos:pos+m] == pattern {
			matches = append(matches, pos)
		}
	}

	sort.Ints(matches)
	return matches
}

// Count returns the number of occurrences of pattern.
func (sa *SuffixArray) Count(pattern string) int {
	return len(sa.Search(pattern))
}
