package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"

	"github.com/rich1707/Customer-Churn/agent/internal/config"
)

// maxBodyBytes caps the size of an http export.
const maxBodyBytes = 256 << 20

// httpLoader fetches a table export from a remote endpoint. The body is
// decoded as CSV unless the server declares application/json, in which case
// it must be an array of flat objects.
type httpLoader struct {
	src    config.Source
	client *http.Client
}

func (l *httpLoader) Load(ctx context.Context) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.src.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: build request: %w", l.src.ID, err)
	}
	req.Header.Set("Accept", "text/csv, application/json;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: http get: %w", l.src.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingest %q: unexpected status %d", l.src.ID, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	var raw [][]string
	if mediaType == "application/json" {
		raw, err = readJSON(body)
	} else {
		raw, err = readCSV(ctx, body)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest %q: %w", l.src.ID, err)
	}
	return newTable(l.src, raw)
}

// readJSON turns an array of objects into header + rows. The header is the
// sorted union of all keys; missing keys become empty cells.
func readJSON(r io.Reader) ([][]string, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var objs []map[string]any
	if err := dec.Decode(&objs); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(objs) == 0 {
		return nil, nil
	}

	keys := make(map[string]struct{})
	for _, o := range objs {
		for k := range o {
			keys[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(keys))
	for k := range keys {
		header = append(header, k)
	}
	sort.Strings(header)

	out := make([][]string, 0, len(objs)+1)
	out = append(out, header)
	for _, o := range objs {
		row := make([]string, len(header))
		for i, k := range header {
			if v, ok := o[k]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		out = append(out, row)
	}
	return out, nil
}
