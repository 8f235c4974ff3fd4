package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
)

// Reader serves one segment file. The dictionary and document table are held
// in memory; postings and document text are read on demand with ReadAt, so a
// Reader is safe for concurrent use.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	docs     []DocEntry
	postBase int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	r.filePath = path
	return r, nil
}

func readSegment(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %v: %w", err, apperrors.ErrIndexCorruption)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("bad magic bytes %x: %w", header.Magic, apperrors.ErrIndexCorruption)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d: %w", header.Version, apperrors.ErrIndexCorruption)
	}
	footer := make([]byte, FooterSize)
	footerOffset := header.TextOffset + header.TextSize
	if _, err := f.ReadAt(footer, footerOffset); err != nil {
		return nil, fmt.Errorf("reading footer: %v: %w", err, apperrors.ErrIndexCorruption)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %v: %w", err, apperrors.ErrIndexCorruption)
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("dictionary checksum mismatch: %w", apperrors.ErrIndexCorruption)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %v: %w", err, apperrors.ErrIndexCorruption)
	}

	docsBytes := make([]byte, header.DocsSize)
	if _, err := f.ReadAt(docsBytes, header.DocsOffset); err != nil {
		return nil, fmt.Errorf("reading document table: %v: %w", err, apperrors.ErrIndexCorruption)
	}
	if crc32.ChecksumIEEE(docsBytes) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("document table checksum mismatch: %w", apperrors.ErrIndexCorruption)
	}
	var docs []DocEntry
	if err := json.Unmarshal(docsBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing document table: %v: %w", err, apperrors.ErrIndexCorruption)
	}
	if len(docs) != int(header.DocCount) {
		return nil, fmt.Errorf("document table has %d rows, header says %d: %w",
			len(docs), header.DocCount, apperrors.ErrIndexCorruption)
	}

	return &Reader{
		file:     f,
		header:   header,
		dict:     dict,
		docs:     docs,
		postBase: header.PostOffset,
	}, nil
}

func (r *Reader) lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

func (r *Reader) Postings(term string) (index.PostingList, error) {
	entry, ok := r.lookup(term)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %v: %w", err, apperrors.ErrIndexCorruption)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %v: %w", err, apperrors.ErrIndexCorruption)
	}
	return postings, nil
}

// TermStats returns the document frequency and total frequency of term.
func (r *Reader) TermStats(term string) (int, int64) {
	entry, ok := r.lookup(term)
	if !ok {
		return 0, 0
	}
	return entry.DocFreq, entry.TotalFreq
}

// Document returns the metadata of document id without its text.
func (r *Reader) Document(id int) (index.Document, bool) {
	i := id - r.BaseID()
	if i < 0 || i >= len(r.docs) {
		return index.Document{}, false
	}
	return index.Document{ID: id, DocNo: r.docs[i].DocNo, Length: r.docs[i].Length}, true
}

// DocumentText reads and decompresses the stored text of document id.
func (r *Reader) DocumentText(id int) (string, error) {
	i := id - r.BaseID()
	if i < 0 || i >= len(r.docs) {
		return "", fmt.Errorf("document %d not in segment: %w", id, apperrors.ErrDocumentNotFound)
	}
	entry := r.docs[i]
	buf := make([]byte, entry.TextLen)
	if _, err := r.file.ReadAt(buf, r.header.TextOffset+entry.TextOffset); err != nil {
		return "", fmt.Errorf("reading text of %s: %v: %w", entry.DocNo, err, apperrors.ErrIndexCorruption)
	}
	text, err := decompressText(buf, entry.RawLen)
	if err != nil {
		return "", fmt.Errorf("text of %s: %v: %w", entry.DocNo, err, apperrors.ErrIndexCorruption)
	}
	return text, nil
}

func (r *Reader) BaseID() int {
	return int(r.header.BaseID)
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() int {
	return len(r.docs)
}

func (r *Reader) TokenCount() int64 {
	return r.header.TokenCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
