package segment

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/prf-retrieval/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
)

func writeTestSegment(t *testing.T, dir string) string {
	t.Helper()
	mem := index.NewMemoryIndex()
	mem.AddDocument(index.Document{ID: 10, DocNo: "D10", Text: "cat sat cat"}, []string{"cat", "sat", "cat"})
	mem.AddDocument(index.Document{ID: 11, DocNo: "D11", Text: "dog sat"}, []string{"dog", "sat"})
	entries, docs := mem.Snapshot()
	name, err := NewWriter(dir).Write(entries, docs)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return filepath.Join(dir, name)
}

func TestWriteAndRead(t *testing.T) {
	path := writeTestSegment(t, t.TempDir())
	if filepath.Base(path) != FileName(10) {
		t.Errorf("segment name = %s, want %s", filepath.Base(path), FileName(10))
	}
	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if r.BaseID() != 10 || r.DocCount() != 2 || r.TokenCount() != 5 || r.Terms() != 3 {
		t.Errorf("unexpected segment shape: base=%d docs=%d tokens=%d terms=%d",
			r.BaseID(), r.DocCount(), r.TokenCount(), r.Terms())
	}

	postings, err := r.Postings("sat")
	if err != nil {
		t.Fatal(err)
	}
	want := index.PostingList{{DocID: 10, Frequency: 1}, {DocID: 11, Frequency: 1}}
	if !reflect.DeepEqual(postings, want) {
		t.Errorf("Postings(sat) = %v, want %v", postings, want)
	}
	if p, _ := r.Postings("bird"); p != nil {
		t.Errorf("Postings(bird) = %v, want nil", p)
	}

	df, cf := r.TermStats("cat")
	if df != 1 || cf != 2 {
		t.Errorf("TermStats(cat) = %d, %d; want 1, 2", df, cf)
	}

	doc, ok := r.Document(11)
	if !ok || doc.DocNo != "D11" || doc.Length != 2 {
		t.Errorf("Document(11) = %+v, %v", doc, ok)
	}
	if _, ok := r.Document(12); ok {
		t.Error("Document(12) should be outside the segment")
	}

	text, err := r.DocumentText(10)
	if err != nil || text != "cat sat cat" {
		t.Errorf("DocumentText(10) = %q, %v", text, err)
	}
	if _, err := r.DocumentText(9); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("DocumentText(9) error = %v, want ErrDocumentNotFound", err)
	}
}

func TestWriteRejectsGaps(t *testing.T) {
	docs := []index.Document{{ID: 1}, {ID: 3}}
	if _, err := NewWriter(t.TempDir()).Write(nil, docs); err == nil {
		t.Fatal("expected error for non-contiguous ids")
	}
}

func TestCorruptDictionary(t *testing.T) {
	path := writeTestSegment(t, t.TempDir())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	h := decodeHeader(data[:HeaderSize])
	// flip one byte inside the JSON dictionary
	data[h.DictOffset+2] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = OpenReader(path)
	if !errors.Is(err, apperrors.ErrIndexCorruption) {
		t.Fatalf("OpenReader error = %v, want ErrIndexCorruption", err)
	}
	if !strings.Contains(err.Error(), "checksum") {
		t.Errorf("error %q should mention the checksum", err)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	text := strings.Repeat("retrieval feedback ", 200)
	got, err := decompressText(compressText(text), len(text))
	if err != nil || got != text {
		t.Fatalf("round trip failed: err=%v equal=%v", err, got == text)
	}
	if _, err := decompressText(compressText(text), len(text)+1); err == nil {
		t.Error("expected length mismatch error")
	}
}
