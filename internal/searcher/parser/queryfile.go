package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
)

type queryFile struct {
	Queries []queryEntry `xml:"query"`
}

type queryEntry struct {
	Number *string `xml:"number"`
	Text   *string `xml:"text"`
}

// ReadQueries reads an Indri-style parameter file:
//
//	<parameters>
//	  <query><number>301</number><text>international organized crime</text></query>
//	</parameters>
//
// Line breaks inside text are removed. Entries without a number or text are
// returned as ErrMalformedQuery errors in skipped and left out of queries.
// The returned error is only set when the file is not well-formed XML.
func ReadQueries(r io.Reader) (queries []Query, skipped []error, err error) {
	var f queryFile
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("decoding query file: %w", err)
	}
	for i, entry := range f.Queries {
		if entry.Number == nil || strings.TrimSpace(*entry.Number) == "" {
			skipped = append(skipped, fmt.Errorf("query entry %d has no number: %w", i+1, apperrors.ErrMalformedQuery))
			continue
		}
		id := strings.TrimSpace(*entry.Number)
		if entry.Text == nil || strings.TrimSpace(*entry.Text) == "" {
			skipped = append(skipped, fmt.Errorf("query %s has no text: %w", id, apperrors.ErrMalformedQuery))
			continue
		}
		text := strings.NewReplacer("\r", "", "\n", "").Replace(*entry.Text)
		queries = append(queries, Query{ID: id, Text: strings.TrimSpace(text)})
	}
	return queries, skipped, nil
}
