// Package index holds the in-memory structures of one index partition.
package index

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     int `json:"d"`
	Frequency int `json:"f"`
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting

// TermEntry is one dictionary row of a partition snapshot. TotalFreq is the
// number of occurrences of Term in the partition.
type TermEntry struct {
	Term      string
	Postings  PostingList
	TotalFreq int64
}

// Document is the stored metadata of an indexed document. Length is the
// number of tokens of its text under the index tokenizer.
type Document struct {
	ID     int    `json:"id"`
	DocNo  string `json:"docno"`
	Length int    `json:"len"`
	Text   string `json:"-"`
}

// Partition is one searchable slice of the collection. Partitions of an index
// hold disjoint, contiguous ranges of document ids.
type Partition interface {
	Postings(term string) (PostingList, error)
}
