// Package merger accumulates per-term partial scores into hits, merges the
// hit sets of index partitions and ranks the result.
package merger

import (
	"container/heap"
	"sort"
)

// ScoredHit is one candidate document. TermScores holds the partial score of
// every query term observed in the document's postings; Score is the
// aggregate, set once after all partitions are merged.
type ScoredHit struct {
	DocID      int                `json:"doc_id"`
	TermScores map[string]float64 `json:"term_scores,omitempty"`
	Score      float64            `json:"score"`
}

// HitSet maps document ids to hits for one query evaluation. It is not safe
// for concurrent use; partitions fill their own set and are combined
// afterwards.
type HitSet struct {
	hits map[int]*ScoredHit
}

func NewHitSet() *HitSet {
	return &HitSet{hits: make(map[int]*ScoredHit)}
}

// SetTermScore records the partial score of term for docID, creating the hit
// on first observation.
func (h *HitSet) SetTermScore(docID int, term string, score float64) {
	hit := h.hits[docID]
	if hit == nil {
		hit = &ScoredHit{DocID: docID, TermScores: make(map[string]float64)}
		h.hits[docID] = hit
	}
	hit.TermScores[term] = score
}

func (h *HitSet) Get(docID int) (*ScoredHit, bool) {
	hit, ok := h.hits[docID]
	return hit, ok
}

func (h *HitSet) Len() int {
	return len(h.hits)
}

// Hits returns the hits ordered by ascending document id.
func (h *HitSet) Hits() []*ScoredHit {
	out := make([]*ScoredHit, 0, len(h.hits))
	for _, hit := range h.hits {
		out = append(out, hit)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocID < out[j].DocID
	})
	return out
}

// Combine writes every (document, term) score of other into h, overwriting
// existing entries. Partitions hold disjoint document ranges, so for them
// this is a plain union; applied in partition order, the last partition wins
// any overlap.
func (h *HitSet) Combine(other *HitSet) {
	for _, hit := range other.Hits() {
		for term, score := range hit.TermScores {
			h.SetTermScore(hit.DocID, term, score)
		}
	}
}

// Rank returns all hits ordered by descending score, ties broken by ascending
// document id.
func Rank(h *HitSet) []ScoredHit {
	out := make([]ScoredHit, 0, h.Len())
	for _, hit := range h.hits {
		out = append(out, *hit)
	}
	sort.Slice(out, func(i, j int) bool {
		return better(out[i], out[j])
	})
	return out
}

// TopK returns the k best hits in Rank order. k <= 0 returns every hit.
func TopK(h *HitSet, k int) []ScoredHit {
	if k <= 0 || k >= h.Len() {
		return Rank(h)
	}
	sh := &scoredHitHeap{}
	heap.Init(sh)
	for _, hit := range h.hits {
		heap.Push(sh, *hit)
		if sh.Len() > k {
			heap.Pop(sh)
		}
	}
	result := make([]ScoredHit, sh.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(sh).(ScoredHit)
	}
	return result
}

func better(a, b ScoredHit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// scoredHitHeap is a min-heap on rank order: the root is the worst hit kept.
type scoredHitHeap []ScoredHit

func (h scoredHitHeap) Len() int { return len(h) }

func (h scoredHitHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h scoredHitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredHitHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredHit))
}

func (h *scoredHitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
