package index

import (
	"sort"
	"sync"
)

// MemoryIndex is the writable partition. Documents must be added with
// ascending, contiguous ids.
type MemoryIndex struct {
	mu     sync.RWMutex
	index  map[string]PostingList
	freq   map[string]int64
	docs   []Document
	tokens int64
	size   int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]PostingList),
		freq:  make(map[string]int64),
	}
}

// AddDocument indexes terms under doc.ID. doc.Length is set to len(terms).
func (m *MemoryIndex) AddDocument(doc Document, terms []string) {
	counts := make(map[string]int, len(terms))
	for _, term := range terms {
		counts[term]++
	}
	doc.Length = len(terms)

	m.mu.Lock()
	defer m.mu.Unlock()

	for term, n := range counts {
		m.index[term] = append(m.index[term], Posting{DocID: doc.ID, Frequency: n})
		m.freq[term] += int64(n)
		m.size += int64(len(term) + 16)
	}
	m.docs = append(m.docs, doc)
	m.tokens += int64(doc.Length)
	m.size += int64(len(doc.DocNo) + len(doc.Text) + 32)
}

func (m *MemoryIndex) Postings(term string) (PostingList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	postings, exists := m.index[term]
	if !exists {
		return nil, nil
	}
	result := make(PostingList, len(postings))
	copy(result, postings)
	return result, nil
}

// TermStats returns the document frequency and total frequency of term.
func (m *MemoryIndex) TermStats(term string) (int, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index[term]), m.freq[term]
}

// Document returns the stored document with the given id, if it belongs to
// this partition.
func (m *MemoryIndex) Document(id int) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.docs) == 0 {
		return Document{}, false
	}
	i := id - m.docs[0].ID
	if i < 0 || i >= len(m.docs) {
		return Document{}, false
	}
	return m.docs[i], true
}

// Snapshot returns the dictionary sorted by term and the documents sorted by
// id.
func (m *MemoryIndex) Snapshot() ([]TermEntry, []Document) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, postings := range m.index {
		list := make(PostingList, len(postings))
		copy(list, postings)
		entries = append(entries, TermEntry{
			Term:      term,
			Postings:  list,
			TotalFreq: m.freq[term],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	docs := make([]Document, len(m.docs))
	copy(docs, m.docs)
	return entries, docs
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// TokenCount is the total length of all documents in the partition.
func (m *MemoryIndex) TokenCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]PostingList)
	m.freq = make(map[string]int64)
	m.docs = nil
	m.tokens = 0
	m.size = 0
}
