package document

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gkontridze/reorg/internal/models"
)

func TestParse(t *testing.T) {
	input := `
news:
  - worldnews
  - r/Politics
tech:
  - programming
  - golang
  - programming
empty:
also_empty: []
`
	d, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d) != 4 {
		t.Fatalf("got %d feeds, want 4", len(d))
	}

	news := d["news"].Items.Items()
	if len(news) != 2 || news[0] != "worldnews" || news[1] != "politics" {
		t.Errorf("news = %v, want [worldnews politics]", news)
	}
	tech := d["tech"].Items.Items()
	if len(tech) != 2 {
		t.Errorf("tech = %v, want duplicates dropped", tech)
	}
	if d["empty"].Items.Len() != 0 || d["also_empty"].Items.Len() != 0 {
		t.Error("empty feeds have members")
	}
}

func TestParse_NormalizesFeedNames(t *testing.T) {
	d, err := Parse([]byte("News:\n  - worldnews\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := d["news"]; !ok {
		t.Errorf("feed name not normalized: %v", d.Names())
	}
}

func TestParse_EmptyMapping(t *testing.T) {
	d, err := Parse([]byte("{}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d) != 0 {
		t.Errorf("got %d feeds, want 0", len(d))
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		contains string
	}{
		{"empty", "", 0, "empty document"},
		{"whitespace", "   \n\n", 0, "empty document"},
		{"list root", "- a\n- b\n", 1, "expected a mapping"},
		{"scalar root", "hello\n", 1, "expected a mapping"},
		{"syntax", "news: [unterminated\n", 0, "yaml"},
		{"bad feed name", "\"bad name\":\n  - golang\n", 1, "invalid collection"},
		{"bad sub", "news:\n  - golang\n  - not valid\n", 3, "invalid item"},
		{"nested sub", "news:\n  - [golang]\n", 2, "sub must be a string"},
		{"mapping value", "news:\n  golang: true\n", 2, "expected a list"},
		{"duplicate after normalization", "news: []\nNews: []\n", 2, "duplicate feed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.input))
			if err == nil {
				t.Fatal("expected error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T, want *ParseError", err)
			}
			if tc.wantLine != 0 && perr.Line != tc.wantLine {
				t.Errorf("line = %d, want %d", perr.Line, tc.wantLine)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("error %q does not contain %q", err, tc.contains)
			}
		})
	}
}

func TestParse_InvalidSubIsValidationError(t *testing.T) {
	_, err := Parse([]byte("news:\n  - bad-sub\n"))
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %v does not wrap *models.ValidationError", err)
	}
	if verr.Where != "news" {
		t.Errorf("Where = %q, want news", verr.Where)
	}
}

func TestMarshal(t *testing.T) {
	d := models.DesiredState{
		"tech": models.NewCollection("tech", "programming", "golang"),
		"news": models.NewCollection("news", "worldnews"),
		"void": models.NewCollection("void"),
		"nums": models.NewCollection("nums", "1234", "null"),
	}
	data, err := Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `news:
  - worldnews
nums:
  - "1234"
  - "null"
tech:
  - programming
  - golang
void: []
`
	if string(data) != want {
		t.Errorf("Marshal =\n%s\nwant\n%s", data, want)
	}
}

func TestMarshal_Empty(t *testing.T) {
	data, err := Marshal(models.DesiredState{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Errorf("Marshal(empty) = %q, want {}", data)
	}
	if _, err := Parse(data); err != nil {
		t.Errorf("Parse(Marshal(empty)): %v", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reorg.yaml")
	store := New(path)

	d := models.DesiredState{
		"news":  models.NewCollection("news", "worldnews", "politics"),
		"tech":  models.NewCollection("tech", "programming"),
		"empty": models.NewCollection("empty"),
		"odd":   models.NewCollection("odd", "1234", "true", "u_spez"),
	}
	if err := store.Save(d); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(d) {
		t.Errorf("round trip mismatch: got %v", got)
	}

	// Saving what was loaded reproduces the same bytes.
	first, _ := os.ReadFile(path)
	if err := store.Save(got); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Errorf("second save differs:\n%s\nvs\n%s", first, second)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestStoreStdio(t *testing.T) {
	var out bytes.Buffer
	store := &Store{
		Path:   StdioPath,
		Stdin:  strings.NewReader("news:\n  - worldnews\n"),
		Stdout: &out,
	}

	d, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := store.Save(d); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if out.String() != "news:\n  - worldnews\n" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestStoreLoad_ParseErrorCarriesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("- not\n- a mapping\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := New(path).Load()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error %v, want *ParseError", err)
	}
	if !strings.HasPrefix(err.Error(), path+":1:1") {
		t.Errorf("error %q does not start with path:line:col", err)
	}
}

func TestStoreLoad_Missing(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v, want os.ErrNotExist", err)
	}
}
