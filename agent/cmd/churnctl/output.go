package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/360EntSecGroup-Skylar/excelize/v2"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

const xlsxSheet = "derived"

var coreColumns = []string{"customer_id", "tenure_months", "monthly_charges", "total_charges", "contract", "churn"}

// columns returns the output header: the core fields, every attribute seen
// in records (sorted), then the two derived labels.
func columns(records []types.DerivedRecord) (header, attrs []string) {
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r.Attributes {
			if !seen[k] {
				seen[k] = true
				attrs = append(attrs, k)
			}
		}
	}
	sort.Strings(attrs)

	header = append(header, coreColumns...)
	header = append(header, attrs...)
	header = append(header, "diff_charge", "able_to_churn")
	return header, attrs
}

func row(r types.DerivedRecord, attrs []string) []string {
	churn := ""
	if r.HasLabel {
		churn = types.ChurnNo
		if r.Churn {
			churn = types.ChurnYes
		}
	}
	out := []string{
		r.ID,
		strconv.Itoa(r.TenureMonths),
		strconv.FormatFloat(r.MonthlyCharges, 'f', -1, 64),
		strconv.FormatFloat(r.TotalCharges, 'f', -1, 64),
		r.Contract,
		churn,
	}
	for _, a := range attrs {
		out = append(out, r.Attributes[a])
	}
	return append(out, r.DiffCharge, r.AbleToChurn)
}

func writeCSV(w io.Writer, records []types.DerivedRecord) error {
	header, attrs := columns(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(row(r, attrs)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, records []types.DerivedRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeXLSX(path string, records []types.DerivedRecord) error {
	header, attrs := columns(records)

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", xlsxSheet)

	put := func(line int, cells []string) error {
		axis, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		vals := make([]interface{}, len(cells))
		for i, c := range cells {
			vals[i] = c
		}
		return f.SetSheetRow(xlsxSheet, axis, &vals)
	}

	if err := put(1, header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for i, r := range records {
		if err := put(i+2, row(r, attrs)); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+2, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
