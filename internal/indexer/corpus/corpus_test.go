package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/prf-retrieval/pkg/errors"
)

const sample = `<DOC>
<DOCNO> AP-1 </DOCNO>
<HEAD>ignored</HEAD>
<TEXT>
Cats & dogs
</TEXT>
</DOC>
<DOC>
<TEXT>no number</TEXT>
</DOC>
<DOC>
<DOCNO>AP-3</DOCNO>
</DOC>
<DOC>
<DOCNO>AP-4</DOCNO>
<TEXT>emu &amp; fox</TEXT>
</DOC>
`

func TestRead(t *testing.T) {
	var docs []Document
	skipped, err := Read(strings.NewReader(sample), func(d Document) error {
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []Document{
		{DocNo: "AP-1", Text: "Cats & dogs"},
		{DocNo: "AP-4", Text: "emu & fox"},
	}
	if len(docs) != len(want) {
		t.Fatalf("docs = %+v", docs)
	}
	for i := range want {
		if docs[i] != want[i] {
			t.Errorf("doc %d = %+v, want %+v", i, docs[i], want[i])
		}
	}
	if len(skipped) != 2 {
		t.Fatalf("skipped = %v, want 2", skipped)
	}
	for _, err := range skipped {
		if !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("skip reason %v is not ErrInvalidInput", err)
		}
	}
}

func TestReadTextSections(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"first section wins", `<DOC><DOCNO>A</DOCNO><TEXT>first section</TEXT><TEXT>second section</TEXT></DOC>`, "first section"},
		{"nested paragraphs", `<DOC><DOCNO>B</DOCNO><TEXT>outer <P>nested paragraph</P> tail</TEXT></DOC>`, "outer nested paragraph tail"},
		{"deeply nested", `<DOC><DOCNO>C</DOCNO><TEXT><P>one <B>two</B></P><P>three</P></TEXT></DOC>`, "one twothree"},
		{"text before docno", `<DOC><TEXT>body</TEXT><DOCNO>D</DOCNO></DOC>`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var docs []Document
			skipped, err := Read(strings.NewReader(tt.in), func(d Document) error {
				docs = append(docs, d)
				return nil
			})
			if err != nil || len(skipped) != 0 {
				t.Fatalf("Read: err=%v skipped=%v", err, skipped)
			}
			if len(docs) != 1 || docs[0].Text != tt.want {
				t.Errorf("docs = %+v, want text %q", docs, tt.want)
			}
		})
	}
}

func TestReadTruncatedDocument(t *testing.T) {
	_, err := Read(strings.NewReader(`<DOC><DOCNO>A</DOCNO><TEXT>cut`), func(Document) error { return nil })
	if err == nil {
		t.Error("expected an error for a truncated document")
	}
}

func TestReadStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	_, err := Read(strings.NewReader(sample), func(Document) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("err = %v after %d calls", err, calls)
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sample), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	files, err := Files(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.txt" {
		t.Errorf("files = %v", files)
	}
	single, err := Files(files[1])
	if err != nil || len(single) != 1 {
		t.Errorf("single file = %v, %v", single, err)
	}
}
