// Package inprocess implements all four tier repositories entirely in
// memory, guarded by a mutex per repo. It is both the default storage
// provider and the fallback target for every resilient wrapper in
// memory/resilient.go. Grounded on
// dpama-dev-mcp-memory-system/memory_store.go's heap-based top-K cosine
// search and agentflow's agent/memory/inmemory_store.go /
// inmemory_vector_store.go / episodic_store.go TTL-map and metadata
// filter style.
package inprocess

import (
	"container/heap"
	"math"
)

// scoredItem pairs an index into a candidate slice with its similarity
// score, for a generic bounded top-K heap. Grounded on
// memory_store.go's ScoredMemoryHeap.
type scoredItem struct {
	index int
	score float64
}

// scoredHeap is a min-heap on score so the smallest of the current top-K
// sits at the root and is evicted first when a better candidate arrives.
type scoredHeap []scoredItem

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(scoredItem)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK returns the indices of the topK highest-scoring candidates among
// scores that are >= threshold, sorted descending by score.
func topK(scores []float64, k int, threshold float64) []int {
	h := &scoredHeap{}
	heap.Init(h)
	for i, s := range scores {
		if s < threshold {
			continue
		}
		if h.Len() < k {
			heap.Push(h, scoredItem{index: i, score: s})
			continue
		}
		if h.Len() > 0 && s > (*h)[0].score {
			heap.Pop(h)
			heap.Push(h, scoredItem{index: i, score: s})
		}
	}

	out := make([]int, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item := heap.Pop(h).(scoredItem)
		out[i] = item.index
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
