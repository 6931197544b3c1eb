// Package document loads and saves the desired-state document: a YAML
// mapping of feed name to the list of subs it should contain.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gkontridze/reorg/internal/models"
)

// StdioPath selects stdin for Load and stdout for Save.
const StdioPath = "-"

// ParseError reports a malformed document. Line and Column are 1-based and
// zero when unknown.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", loc, e.Line, e.Column)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Store reads and writes a document at Path. Path "-" uses Stdin/Stdout.
type Store struct {
	Path   string
	Stdin  io.Reader
	Stdout io.Writer
}

// New returns a store for path wired to the process stdio.
func New(path string) *Store {
	return &Store{Path: path, Stdin: os.Stdin, Stdout: os.Stdout}
}

// IsStdio reports whether the store reads/writes stdio instead of a file.
func (s *Store) IsStdio() bool {
	return s.Path == StdioPath
}

// Load reads and parses the document.
func (s *Store) Load() (models.DesiredState, error) {
	var (
		data []byte
		err  error
	)
	if s.IsStdio() {
		data, err = io.ReadAll(s.Stdin)
	} else {
		data, err = os.ReadFile(s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	d, err := Parse(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = s.displayPath()
		}
		return nil, err
	}
	return d, nil
}

// Save serializes d and writes it. File writes are atomic (temp file + rename).
func (s *Store) Save(d models.DesiredState) error {
	data, err := Marshal(d)
	if err != nil {
		return err
	}
	if s.IsStdio() {
		_, err := s.Stdout.Write(data)
		return err
	}
	return writeAtomic(s.Path, data)
}

func (s *Store) displayPath() string {
	if s.IsStdio() {
		return "<stdin>"
	}
	return s.Path
}

// Parse decodes a document. Feed names and subs are normalized and validated;
// an empty input is rejected so a truncated file cannot wipe every feed.
// Use "{}" to declare no feeds.
func Parse(data []byte) (models.DesiredState, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Msg: err.Error(), Err: err}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, &ParseError{Msg: "empty document (use {} to declare no feeds)"}
	}

	doc := deref(root.Content[0])
	if doc.Kind != yaml.MappingNode {
		return nil, nodeError(doc, "expected a mapping of feed name to list of subs", nil)
	}

	out := make(models.DesiredState, len(doc.Content)/2)
	lines := make(map[models.Name]int, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, val := deref(doc.Content[i]), deref(doc.Content[i+1])
		if key.Kind != yaml.ScalarNode {
			return nil, nodeError(key, "feed name must be a string", nil)
		}
		name, err := models.ParseName(key.Value)
		if err != nil {
			return nil, nodeError(key, err.Error(), err)
		}
		if line, dup := lines[name]; dup {
			return nil, nodeError(key, fmt.Sprintf("duplicate feed %q (first defined on line %d)", name, line), nil)
		}
		lines[name] = key.Line

		items, err := parseItems(name, val)
		if err != nil {
			return nil, err
		}
		c := models.NewCollection(name, items...)
		if c.Items.Len() != len(items) {
			slog.Debug("dropped duplicate subs", "feed", name, "dropped", len(items)-c.Items.Len())
		}
		out[name] = c
	}
	return out, nil
}

func parseItems(name models.Name, val *yaml.Node) ([]models.ItemID, error) {
	switch {
	case val.Kind == yaml.ScalarNode && val.Tag == "!!null":
		return nil, nil
	case val.Kind != yaml.SequenceNode:
		return nil, nodeError(val, fmt.Sprintf("feed %q: expected a list of subs", name), nil)
	}

	items := make([]models.ItemID, 0, len(val.Content))
	for _, n := range val.Content {
		n = deref(n)
		if n.Kind != yaml.ScalarNode {
			return nil, nodeError(n, fmt.Sprintf("feed %q: sub must be a string", name), nil)
		}
		it, err := models.ParseItem(n.Value)
		if err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				verr.Where = string(name)
			}
			return nil, nodeError(n, err.Error(), err)
		}
		items = append(items, it)
	}
	return items, nil
}

// Marshal encodes d with feeds in name order and subs in collection order.
func Marshal(d models.DesiredState) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, name := range d.Names() {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		items := d[name].Items.Items()
		if len(items) == 0 {
			seq.Style = yaml.FlowStyle
		}
		for _, it := range items {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(it)})
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(name)},
			seq,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func nodeError(n *yaml.Node, msg string, err error) *ParseError {
	return &ParseError{Line: n.Line, Column: n.Column, Msg: msg, Err: err}
}

// writeAtomic writes data to path via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".reorg-*.yaml.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
