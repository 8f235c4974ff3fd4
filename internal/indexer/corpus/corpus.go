// Package corpus reads TREC text collections:
//
//	<DOC>
//	<DOCNO> AP880212-0001 </DOCNO>
//	<TEXT> ... </TEXT>
//	</DOC>
//
// Files have no root element and may contain bare ampersands, so they are read
// with a lenient XML decoder.
package corpus

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
)

type Document struct {
	DocNo string
	Text  string
}

// Read calls fn for every document in r. A document's text is the character
// data of its first TEXT element, nested markup such as <P> included; later
// TEXT sections are ignored. Documents without a DOCNO or TEXT element are
// skipped and reported in skipped. An error from fn stops the
// scan and is returned.
func Read(r io.Reader, fn func(Document) error) (skipped []error, err error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	n := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		if err != nil {
			return skipped, fmt.Errorf("reading document %d: %w", n+1, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, "DOC") {
			continue
		}
		n++
		raw, err := readDoc(dec)
		if err != nil {
			return skipped, fmt.Errorf("decoding document %d: %w", n, err)
		}
		docNo := strings.TrimSpace(raw.docNo.String())
		if !raw.hasDocNo || docNo == "" {
			skipped = append(skipped, fmt.Errorf("document %d has no DOCNO: %w", n, apperrors.ErrInvalidInput))
			continue
		}
		if !raw.hasText {
			skipped = append(skipped, fmt.Errorf("document %s has no TEXT: %w", docNo, apperrors.ErrInvalidInput))
			continue
		}
		if err := fn(Document{DocNo: docNo, Text: strings.TrimSpace(raw.text.String())}); err != nil {
			return skipped, err
		}
	}
}

type rawDoc struct {
	docNo, text       strings.Builder
	hasDocNo, hasText bool
}

// readDoc consumes tokens up to the end of the DOC element whose start tag
// was just read. It keeps the first DOCNO and the first TEXT element, each
// with the character data of every element nested inside it.
func readDoc(dec *xml.Decoder) (*rawDoc, error) {
	raw := &rawDoc{}
	var capture *strings.Builder
	depth, captureDepth := 1, 0
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if capture != nil {
				continue
			}
			switch {
			case strings.EqualFold(t.Name.Local, "DOCNO") && !raw.hasDocNo:
				raw.hasDocNo = true
				capture, captureDepth = &raw.docNo, depth
			case strings.EqualFold(t.Name.Local, "TEXT") && !raw.hasText:
				raw.hasText = true
				capture, captureDepth = &raw.text, depth
			}
		case xml.EndElement:
			if capture != nil && depth == captureDepth {
				capture = nil
			}
			depth--
		case xml.CharData:
			if capture != nil {
				capture.Write(t)
			}
		}
	}
	return raw, nil
}

// Files expands path into the files to read: the path itself, or every
// regular file of a directory in name order.
func Files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing corpus %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
