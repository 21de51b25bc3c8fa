package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/rich1707/Customer-Churn/agent/internal/config"
)

// csvLoader reads a local comma-separated file whose first row is the header.
type csvLoader struct {
	src config.Source
}

func (l *csvLoader) Load(ctx context.Context) (*Table, error) {
	f, err := os.Open(l.src.Path)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: open: %w", l.src.ID, err)
	}
	defer f.Close()

	raw, err := readCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: %w", l.src.ID, err)
	}
	return newTable(l.src, raw)
}

// readCSV reads all records from r, checking ctx between rows so a huge
// file can be abandoned on shutdown.
func readCSV(ctx context.Context, r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		out = append(out, rec)
	}
}
