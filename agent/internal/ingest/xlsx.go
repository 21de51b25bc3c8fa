package ingest

import (
	"context"
	"fmt"

	"github.com/360EntSecGroup-Skylar/excelize/v2"

	"github.com/rich1707/Customer-Churn/agent/internal/config"
)

// xlsxLoader reads one worksheet of a local Excel workbook.
type xlsxLoader struct {
	src config.Source
}

func (l *xlsxLoader) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(l.src.Path)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: open workbook: %w", l.src.ID, err)
	}

	sheet := l.src.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if sheet == "" {
		return nil, fmt.Errorf("ingest %q: workbook has no active sheet", l.src.ID)
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("ingest %q: read sheet %q: %w", l.src.ID, sheet, err)
	}
	return newTable(l.src, raw)
}
