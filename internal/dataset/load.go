package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source opens the raw bytes of a dataset.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// File is a Source backed by a local path.
type File struct{ Path string }

// Open returns the context error if ctx is already done, otherwise the open
// file. Filesystem errors keep errors.Is compatibility (os.ErrNotExist).
func (f File) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	return fh, nil
}

// FileFormat selects the decoder used by Load.
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatJSON FileFormat = "json"
)

// FormatFromPath picks a format from a file extension; CSV is the default.
func FormatFromPath(path string) FileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// LoadOptions controls ingestion.
type LoadOptions struct {
	Format FileFormat
	// Comma is the CSV delimiter; ',' when zero.
	Comma rune
	// SkipEnrich disables derived "<col>_num" columns.
	SkipEnrich bool
}

// LoadFile is the common entry point: open path, decode, infer kinds, enrich.
func LoadFile(ctx context.Context, path string, opt LoadOptions) (*Table, error) {
	if opt.Format == "" {
		opt.Format = FormatFromPath(path)
	}
	return Load(ctx, File{Path: path}, opt)
}

// Load reads a full dataset from src.
func Load(ctx context.Context, src Source, opt LoadOptions) (*Table, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var t *Table
	switch opt.Format {
	case FormatJSON:
		t, err = ReadJSON(rc)
	case FormatCSV, "":
		t, err = ReadCSV(rc, opt.Comma)
	default:
		return nil, fmt.Errorf("dataset: unknown format %q", opt.Format)
	}
	if err != nil {
		return nil, err
	}
	if !opt.SkipEnrich {
		Enrich(t)
	}
	return t, nil
}

// ReadCSV parses a CSV stream with a header row. It is tolerant of messy
// exports:
//   - LazyQuotes and variable field counts are allowed by the reader
//   - rows whose width differs from the header are skipped
//   - a UTF-8 BOM on the first header cell is stripped
//   - blank header cells are named "column_<n>"
func ReadCSV(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	if comma != 0 {
		cr.Comma = comma
	}
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	headers = stripUTF8BOM(headers)
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
		if headers[i] == "" {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
	}

	var raw [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue // skip malformed line
			}
			return nil, fmt.Errorf("csv: read: %w", err)
		}
		if len(rec) != len(headers) {
			continue
		}
		raw = append(raw, rec)
	}
	return fromText(headers, raw), nil
}

// fromText infers a kind per column and converts the raw cells.
func fromText(headers []string, raw [][]string) *Table {
	n := len(headers)
	cols := make([]Column, n)
	converted := make([][]any, n)
	for c := 0; c < n; c++ {
		cells := make([]string, len(raw))
		for r, row := range raw {
			cells[r] = row[c]
		}
		kind, layout := inferKind(cells)
		cols[c] = Column{Name: headers[c], Kind: kind}
		converted[c] = convert(cells, kind, layout)
	}
	rows := make([][]any, len(raw))
	for r := range raw {
		row := make([]any, n)
		for c := 0; c < n; c++ {
			row[c] = converted[c][r]
		}
		rows[r] = row
	}
	return &Table{Columns: cols, Rows: rows}
}

func stripUTF8BOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}
	return headers
}

// ReadJSON decodes either a root array of objects, an envelope object whose
// largest array-of-objects field holds the records, or a stream of objects
// (NDJSON). Column order follows first appearance of each key.
//
// Scalars are kept as text and pass through the same inference as CSV cells,
// so "$10M" strings and 42 numbers end up typed consistently.
func ReadJSON(r io.Reader) (*Table, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("json: read: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &Table{}, nil
	}

	var objs []orderedObject
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	for dec.More() {
		var v orderedValue
		if err := v.decode(dec); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("json: decode: %w", err)
		}
		objs = append(objs, v.records()...)
	}

	var headers []string
	seen := map[string]int{}
	for _, o := range objs {
		for _, kv := range o {
			if _, ok := seen[kv.key]; !ok {
				seen[kv.key] = len(headers)
				headers = append(headers, kv.key)
			}
		}
	}
	raw := make([][]string, len(objs))
	for i, o := range objs {
		row := make([]string, len(headers))
		for _, kv := range o {
			row[seen[kv.key]] = kv.text()
		}
		raw[i] = row
	}
	return fromText(headers, raw), nil
}

type orderedKV struct {
	key string
	val orderedValue
}

type orderedObject []orderedKV

// orderedValue is a decoded JSON value that remembers object key order.
type orderedValue struct {
	obj    orderedObject
	arr    []orderedValue
	scalar any
	kind   byte // 'o', 'a', 's'
}

func (v *orderedValue) decode(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v.kind = 'o'
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return err
				}
				key, _ := kt.(string)
				var child orderedValue
				if err := child.decode(dec); err != nil {
					return err
				}
				v.obj = append(v.obj, orderedKV{key: key, val: child})
			}
			_, err = dec.Token()
			return err
		case '[':
			v.kind = 'a'
			for dec.More() {
				var child orderedValue
				if err := child.decode(dec); err != nil {
					return err
				}
				v.arr = append(v.arr, child)
			}
			_, err = dec.Token()
			return err
		}
		return fmt.Errorf("unexpected delimiter %v", t)
	default:
		v.kind = 's'
		v.scalar = t
		return nil
	}
}

// records unwraps the record list from a decoded root value.
func (v orderedValue) records() []orderedObject {
	switch v.kind {
	case 'a':
		out := make([]orderedObject, 0, len(v.arr))
		for _, e := range v.arr {
			if e.kind == 'o' {
				out = append(out, e.obj)
			}
		}
		return out
	case 'o':
		var best []orderedValue
		for _, kv := range v.obj {
			if kv.val.kind == 'a' && len(kv.val.arr) > len(best) && kv.val.arr[0].kind == 'o' {
				best = kv.val.arr
			}
		}
		if best == nil {
			return []orderedObject{v.obj}
		}
		return orderedValue{kind: 'a', arr: best}.records()
	}
	return nil
}

// text renders a scalar as a raw CSV-like cell. Arrays of scalars are joined
// with ", " so they can be exploded by value_counts; nested objects are dropped.
func (kv orderedKV) text() string {
	v := kv.val
	switch v.kind {
	case 's':
		switch s := v.scalar.(type) {
		case nil:
			return ""
		case string:
			return s
		case json.Number:
			return s.String()
		case bool:
			if s {
				return "true"
			}
			return "false"
		}
	case 'a':
		parts := make([]string, 0, len(v.arr))
		for _, e := range v.arr {
			parts = append(parts, orderedKV{val: e}.text())
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
