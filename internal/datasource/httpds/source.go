package httpds

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
)

// sniffLen is how much of the body DetectFormat may look at.
const sniffLen = 512

// IsURL reports whether s is an http(s) URL rather than a local path.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Load downloads a dataset. When opt.Format is empty the format is taken
// from the URL extension, then the Content-Type, then the body itself.
func Load(ctx context.Context, c *Client, rawURL string, opt dataset.LoadOptions) (*dataset.Table, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	body := bufio.NewReaderSize(resp.Body, sniffLen)
	if opt.Format == "" {
		head, _ := body.Peek(sniffLen)
		opt.Format = DetectFormat(rawURL, resp.Header.Get("Content-Type"), head)
	}
	return dataset.Load(ctx, readerSource{rc: struct {
		io.Reader
		io.Closer
	}{body, resp.Body}}, opt)
}

// readerSource hands an already open body to dataset.Load.
type readerSource struct{ rc io.ReadCloser }

func (r readerSource) Open(context.Context) (io.ReadCloser, error) { return r.rc, nil }

// DetectFormat picks csv or json for a download.
func DetectFormat(rawURL, contentType string, head []byte) dataset.FileFormat {
	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".json", ".jsonl", ".ndjson":
			return dataset.FormatJSON
		case ".csv", ".tsv", ".txt":
			return dataset.FormatCSV
		}
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mt == "application/json", mt == "application/x-ndjson", strings.HasSuffix(mt, "+json"):
			return dataset.FormatJSON
		case mt == "text/csv", mt == "application/csv":
			return dataset.FormatCSV
		}
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) > 0 && (head[0] == '[' || head[0] == '{') {
		return dataset.FormatJSON
	}
	return dataset.FormatCSV
}
