package aggregate

import (
	"container/heap"
	"slices"
)

// worstFirst is a heap whose root is the lowest-ranked group kept so far.
type worstFirst []ranked

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return compareRanked(h[i], h[j]) > 0 }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(ranked)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK keeps the k best groups with a bounded heap and returns them ranked.
func topK(all []ranked, k int) []ranked {
	h := make(worstFirst, 0, k)
	for _, r := range all {
		if h.Len() < k {
			heap.Push(&h, r)
			continue
		}
		if compareRanked(r, h[0]) < 0 {
			h[0] = r
			heap.Fix(&h, 0)
		}
	}
	out := []ranked(h)
	slices.SortFunc(out, compareRanked)
	return out
}
