// Package segment reads and writes immutable on-disk index partitions.
//
// A segment file is laid out as
//
//	header | postings | dictionary | document table | document text | footer
//
// The dictionary and document table are JSON; every document text is
// compressed on its own with zstd so it can be read back without touching the
// rest of the file.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 128
	FooterSize    int    = 32
)

// SegmentHeader is the fixed-size header written at the start of every
// segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CreatedAt  int64
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	DocsOffset int64
	DocsSize   int64
	TextOffset int64
	TextSize   int64
	BaseID     int64
	TokenCount int64
}

// DictEntry maps a term to its postings and frequency statistics.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
	TotalFreq  int64  `json:"c"`
}

// DocEntry is one row of the document table. Row i describes document
// BaseID+i.
type DocEntry struct {
	DocNo      string `json:"n"`
	Length     int    `json:"l"`
	TextOffset int64  `json:"o"`
	TextLen    int    `json:"z"`
	RawLen     int    `json:"r"`
}

// Writer serialises partition snapshots into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// FileName is the segment name for a partition starting at baseID. Names sort
// in id order.
func FileName(baseID int) string {
	return fmt.Sprintf("seg_%012d.spdx", baseID)
}

// Write atomically creates a new segment file for the given snapshot. It
// writes to a .tmp file first and renames on success. docs must be sorted by
// id and contiguous.
func (w *Writer) Write(entries []index.TermEntry, docs []index.Document) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	baseID := docs[0].ID
	for i, d := range docs {
		if d.ID != baseID+i {
			return "", fmt.Errorf("document ids not contiguous at %d (got %d)", baseID+i, d.ID)
		}
	}
	segmentName := FileName(baseID)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
			TotalFreq:  entry.TotalFreq,
		})
		offset += int64(len(postingsData))
	}
	postingsSize := offset - postingsStart

	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	offset += int64(len(dictData))

	table := make([]DocEntry, len(docs))
	texts := make([][]byte, len(docs))
	var textOffset, tokens int64
	for i, d := range docs {
		texts[i] = compressText(d.Text)
		table[i] = DocEntry{
			DocNo:      d.DocNo,
			Length:     d.Length,
			TextOffset: textOffset,
			TextLen:    len(texts[i]),
			RawLen:     len(d.Text),
		}
		textOffset += int64(len(texts[i]))
		tokens += int64(d.Length)
	}
	docsStart := offset
	docsData, err := json.Marshal(table)
	if err != nil {
		return "", fmt.Errorf("marshaling document table: %w", err)
	}
	if _, err := f.Write(docsData); err != nil {
		return "", fmt.Errorf("writing document table: %w", err)
	}
	offset += int64(len(docsData))

	textStart := offset
	for i, text := range texts {
		if _, err := f.Write(text); err != nil {
			return "", fmt.Errorf("writing text of %s: %w", docs[i].DocNo, err)
		}
	}
	offset += textOffset

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(docsData))
	binary.LittleEndian.PutUint32(footer[8:12], uint32(len(docs)))
	binary.LittleEndian.PutUint64(footer[12:20], uint64(offset))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(entries)),
		DocCount:   uint32(len(docs)),
		CreatedAt:  time.Now().Unix(),
		DictOffset: dictStart,
		DictSize:   int64(len(dictData)),
		PostOffset: postingsStart,
		PostSize:   postingsSize,
		DocsOffset: docsStart,
		DocsSize:   int64(len(docsData)),
		TextOffset: textStart,
		TextSize:   textOffset,
		BaseID:     int64(baseID),
		TokenCount: tokens,
	}
	if _, err := f.WriteAt(encodeHeader(header), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}

func encodeHeader(h SegmentHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	for i, v := range []int64{
		h.CreatedAt, h.DictOffset, h.DictSize, h.PostOffset, h.PostSize,
		h.DocsOffset, h.DocsSize, h.TextOffset, h.TextSize, h.BaseID, h.TokenCount,
	} {
		binary.LittleEndian.PutUint64(b[16+8*i:24+8*i], uint64(v))
	}
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	field := func(i int) int64 {
		return int64(binary.LittleEndian.Uint64(b[16+8*i : 24+8*i]))
	}
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:  field(0),
		DictOffset: field(1),
		DictSize:   field(2),
		PostOffset: field(3),
		PostSize:   field(4),
		DocsOffset: field(5),
		DocsSize:   field(6),
		TextOffset: field(7),
		TextSize:   field(8),
		BaseID:     field(9),
		TokenCount: field(10),
	}
}
