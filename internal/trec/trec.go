// Package trec writes ranked results in the six-column TREC run format:
//
//	queryId Q0 docno rank score tag
package trec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/searcher/merger"
)

// Iteration is the constant second column.
const Iteration = "Q0"

// DefaultTag names the run when none is configured.
const DefaultTag = "test"

// ExternalIDs resolves internal document ids to docnos.
type ExternalIDs interface {
	ExternalID(id int) (string, error)
}

type Line struct {
	QueryID string  `json:"query_id"`
	DocNo   string  `json:"docno"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
	Tag     string  `json:"tag"`
}

func (l Line) String() string {
	var b strings.Builder
	b.WriteString(l.QueryID)
	b.WriteByte(' ')
	b.WriteString(Iteration)
	b.WriteByte(' ')
	b.WriteString(l.DocNo)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(l.Rank))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(l.Score, 'g', -1, 64))
	b.WriteByte(' ')
	b.WriteString(l.Tag)
	return b.String()
}

// Lines converts ranked hits into run lines with 1-based ranks, keeping at
// most limit of them. limit <= 0 keeps all.
func Lines(queryID string, ranked []merger.ScoredHit, limit int, ids ExternalIDs, tag string) ([]Line, error) {
	if tag == "" {
		tag = DefaultTag
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	lines := make([]Line, 0, len(ranked))
	for i, hit := range ranked {
		docNo, err := ids.ExternalID(hit.DocID)
		if err != nil {
			return nil, fmt.Errorf("docno of %d: %w", hit.DocID, err)
		}
		lines = append(lines, Line{
			QueryID: queryID,
			DocNo:   docNo,
			Rank:    i + 1,
			Score:   hit.Score,
			Tag:     tag,
		})
	}
	return lines, nil
}

// Writer buffers run lines. It is not safe for concurrent use.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(lines []Line) error {
	for _, l := range lines {
		if _, err := w.w.WriteString(l.String()); err != nil {
			return fmt.Errorf("writing run line: %w", err)
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing run line: %w", err)
		}
	}
	return nil
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
