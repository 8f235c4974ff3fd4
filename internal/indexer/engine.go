// Package indexer is the reference Index Service: a writable in-memory
// partition that is flushed into immutable segment partitions. Document ids
// are assigned sequentially, so every partition holds a contiguous id range
// and collection statistics are sums over partitions.
package indexer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/metrics"
)

// partition is what the engine needs from both partition kinds.
type partition interface {
	index.Partition
	TermStats(term string) (int, int64)
	Document(id int) (index.Document, bool)
	DocCount() int
	TokenCount() int64
}

type Engine struct {
	memIndex    *index.MemoryIndex
	writer      *segment.Writer
	readers     []*segment.Reader
	mu          sync.RWMutex
	cfg         config.IndexConfig
	tok         *tokenizer.Tokenizer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	nextID      int
	totalDocs   int64
	totalTokens int64
}

// Stats summarises the collection.
type Stats struct {
	Documents    int64   `json:"documents"`
	Tokens       int64   `json:"tokens"`
	Partitions   int     `json:"partitions"`
	AvgDocLength float64 `json:"avg_doc_length"`
}

// NewEngine opens the index in cfg.DataDir, loading every existing segment.
// m may be nil.
func NewEngine(cfg config.IndexConfig, tok *tokenizer.Tokenizer, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		memIndex: index.NewMemoryIndex(),
		writer:   segment.NewWriter(cfg.DataDir),
		cfg:      cfg,
		tok:      tok,
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
	}
	if err := e.loadExistingSegments(); err != nil {
		e.closeReaders()
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	e.updatePartitionGauge()
	return e, nil
}

// IndexDocument tokenizes text, stores the document under the next id and
// returns that id. The in-memory partition is flushed once it exceeds
// cfg.SegmentMaxSize.
func (e *Engine) IndexDocument(docNo string, text string) (int, error) {
	terms := e.tok.Tokenize(text)

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.totalDocs++
	e.totalTokens += int64(len(terms))
	e.memIndex.AddDocument(index.Document{ID: id, DocNo: docNo, Text: text}, terms)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document indexed in memory",
		"doc_no", docNo,
		"doc_id", id,
		"token_count", len(terms),
		"mem_size", e.memIndex.Size(),
	)
	if e.cfg.SegmentMaxSize > 0 && e.memIndex.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", e.memIndex.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return id, fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return id, nil
}

// Flush writes the in-memory partition to a new segment.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, docs := e.memIndex.Snapshot()
	if len(docs) == 0 {
		return nil
	}
	segmentName, err := e.writer.Write(entries, docs)
	if err != nil {
		e.countFlush("error")
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, segmentName))
	if err != nil {
		e.countFlush("error")
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readers = append(e.readers, reader)
	e.memIndex.Reset()
	e.countFlush("ok")
	e.updatePartitionGauge()
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", len(e.readers),
	)
	return nil
}

// Partitions returns the searchable partitions in ascending id order.
func (e *Engine) Partitions() []index.Partition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	parts := make([]index.Partition, 0, len(e.readers)+1)
	for _, r := range e.readers {
		parts = append(parts, r)
	}
	if e.memIndex.DocCount() > 0 {
		parts = append(parts, e.memIndex)
	}
	return parts
}

func (e *Engine) partitions() []partition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	parts := make([]partition, 0, len(e.readers)+1)
	for _, r := range e.readers {
		parts = append(parts, r)
	}
	parts = append(parts, e.memIndex)
	return parts
}

// DocumentFrequency is the number of documents containing term.
func (e *Engine) DocumentFrequency(term string) int64 {
	var df int64
	for _, p := range e.partitions() {
		n, _ := p.TermStats(term)
		df += int64(n)
	}
	return df
}

// TotalTermFrequency is the number of occurrences of term in the collection.
func (e *Engine) TotalTermFrequency(term string) int64 {
	var cf int64
	for _, p := range e.partitions() {
		_, n := p.TermStats(term)
		cf += n
	}
	return cf
}

// CollectionLength is the total number of tokens in the collection.
func (e *Engine) CollectionLength() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalTokens
}

func (e *Engine) DocumentCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalDocs
}

func (e *Engine) AvgDocLength() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.totalDocs == 0 {
		return 0
	}
	return float64(e.totalTokens) / float64(e.totalDocs)
}

// DocumentLength returns the token count of document id. Every id handed out
// by a partition must resolve, so a miss means the index is corrupt.
func (e *Engine) DocumentLength(id int) (int, error) {
	doc, ok := e.document(id)
	if !ok {
		return 0, fmt.Errorf("no length for document %d: %w", id, apperrors.ErrIndexCorruption)
	}
	return doc.Length, nil
}

// ExternalID returns the collection's docno for id.
func (e *Engine) ExternalID(id int) (string, error) {
	doc, ok := e.document(id)
	if !ok {
		return "", fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return doc.DocNo, nil
}

// DocumentText returns the stored text of id.
func (e *Engine) DocumentText(id int) (string, error) {
	e.mu.RLock()
	readers := e.readers
	e.mu.RUnlock()

	i := sort.Search(len(readers), func(i int) bool {
		return readers[i].BaseID()+readers[i].DocCount() > id
	})
	if i < len(readers) && id >= readers[i].BaseID() {
		return readers[i].DocumentText(id)
	}
	if doc, ok := e.memIndex.Document(id); ok {
		return doc.Text, nil
	}
	return "", fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
}

func (e *Engine) document(id int) (index.Document, bool) {
	e.mu.RLock()
	readers := e.readers
	e.mu.RUnlock()

	i := sort.Search(len(readers), func(i int) bool {
		return readers[i].BaseID()+readers[i].DocCount() > id
	})
	if i < len(readers) {
		if doc, ok := readers[i].Document(id); ok {
			return doc, true
		}
	}
	return e.memIndex.Document(id)
}

func (e *Engine) Stats() Stats {
	parts := e.Partitions()
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{
		Documents:  e.totalDocs,
		Tokens:     e.totalTokens,
		Partitions: len(parts),
	}
	if e.totalDocs > 0 {
		s.AvgDocLength = float64(e.totalTokens) / float64(e.totalDocs)
	}
	return s
}

// Close flushes pending documents and closes every segment.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.closeReaders()
	return nil
}

func (e *Engine) closeReaders() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
}

func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".spdx") {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	for _, name := range segFiles {
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			return err
		}
		if reader.BaseID() != e.nextID {
			reader.Close()
			return fmt.Errorf("segment %s starts at document %d, expected %d: %w",
				name, reader.BaseID(), e.nextID, apperrors.ErrIndexCorruption)
		}
		e.readers = append(e.readers, reader)
		e.nextID += reader.DocCount()
		e.totalDocs += int64(reader.DocCount())
		e.totalTokens += reader.TokenCount()
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}

func (e *Engine) countFlush(status string) {
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
}

func (e *Engine) updatePartitionGauge() {
	if e.metrics == nil {
		return
	}
	n := len(e.readers)
	if e.memIndex.DocCount() > 0 {
		n++
	}
	e.metrics.IndexPartitions.Set(float64(n))
}
