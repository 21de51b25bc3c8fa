package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/360EntSecGroup-Skylar/excelize/v2"

	"github.com/rich1707/Customer-Churn/agent/internal/config"
)

// telcoCSV is a realistic slice of the Telco customer churn export.
const telcoCSV = `CustomerID,Count,Gender,Tenure Months,Contract,Monthly Charges,Total Charges,Churn Value
7590-VHVEG,1,Female,1,Month-to-month,29.85,29.85,0
5575-GNVDE,1,Male,34,One year,56.95,1889.5,0

4472-LVYGI,1,Female,0,Two year,52.55, ,0
3668-QPYBK,1,Male,2,Month-to-month,53.85
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// --- csv ---

func TestCSVLoader_Load(t *testing.T) {
	path := writeFile(t, "telco.csv", telcoCSV)
	l, err := New(config.Source{ID: "telco", Type: "csv", Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tbl, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.SourceID != "telco" || tbl.SourceType != "csv" {
		t.Errorf("source: got %q/%q", tbl.SourceID, tbl.SourceType)
	}
	if len(tbl.Header) != 8 || tbl.Header[3] != "Tenure Months" {
		t.Errorf("Header = %v", tbl.Header)
	}
	// Blank line skipped; short last row padded.
	if len(tbl.Rows) != 4 {
		t.Fatalf("rows: got %d, want 4", len(tbl.Rows))
	}
	last := tbl.Rows[3]
	if len(last) != 8 || last[6] != "" || last[7] != "" {
		t.Errorf("short row not padded: %q", last)
	}
	if tbl.LoadedAt.IsZero() {
		t.Error("LoadedAt: not set")
	}
}

func TestCSVLoader_StripsBOM(t *testing.T) {
	path := writeFile(t, "bom.csv", "\ufeffTenure Months,Contract\n3,One year\n")
	l, _ := New(config.Source{ID: "bom", Type: "csv", Path: path})
	tbl, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Header[0] != "Tenure Months" {
		t.Errorf("Header[0] = %q, want BOM stripped", tbl.Header[0])
	}
}

func TestCSVLoader_MissingFile(t *testing.T) {
	l, _ := New(config.Source{ID: "gone", Type: "csv", Path: filepath.Join(t.TempDir(), "nope.csv")})
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestCSVLoader_EmptyFile(t *testing.T) {
	l, _ := New(config.Source{ID: "empty", Type: "csv", Path: writeFile(t, "empty.csv", "")})
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for empty table, got nil")
	}
}

// --- xlsx ---

func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	if sheet != "Sheet1" {
		f.SetSheetName("Sheet1", sheet)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		row := r
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "telco.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestXLSXLoader_NamedSheet(t *testing.T) {
	path := writeWorkbook(t, "Telco_Churn", [][]interface{}{
		{"CustomerID", "Tenure Months", "Contract", "Monthly Charges", "Total Charges"},
		{"7590-VHVEG", "1", "Month-to-month", "29.85", "29.85"},
		{"5575-GNVDE", "34", "One year", "56.95", "1889.5"},
	})

	l, err := New(config.Source{ID: "wb", Type: "xlsx", Path: path, Sheet: "Telco_Churn"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tbl, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(tbl.Rows))
	}
	if tbl.Rows[1][2] != "One year" {
		t.Errorf("Rows[1][2] = %q, want One year", tbl.Rows[1][2])
	}
}

func TestXLSXLoader_ActiveSheetDefault(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{
		{"Tenure Months", "Contract"},
		{"0", "Two year"},
	})
	l, _ := New(config.Source{ID: "wb", Type: "xlsx", Path: path})
	tbl, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tbl.Rows) != 1 || tbl.Rows[0][1] != "Two year" {
		t.Errorf("rows = %v", tbl.Rows)
	}
}

func TestXLSXLoader_NotAWorkbook(t *testing.T) {
	l, _ := New(config.Source{ID: "bad", Type: "xlsx", Path: writeFile(t, "bad.xlsx", "not a zip")})
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for corrupt workbook, got nil")
	}
}

// --- http ---

func TestHTTPLoader_CSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(telcoCSV))
	}))
	defer srv.Close()

	l, err := New(config.Source{ID: "remote", Type: "http", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tbl, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tbl.Rows) != 4 {
		t.Errorf("rows: got %d, want 4", len(tbl.Rows))
	}
}

func TestHTTPLoader_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"tenure_months": 12, "contract": "One year", "monthly_charges": 100, "total_charges": 1200},
			{"tenure_months": 0, "contract": "Two year", "monthly_charges": 20.5, "gender": "Male"}
		]`))
	}))
	defer srv.Close()

	l, _ := New(config.Source{ID: "api", Type: "http", Endpoint: srv.URL})
	tbl, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"contract", "gender", "monthly_charges", "tenure_months", "total_charges"}
	if len(tbl.Header) != len(want) {
		t.Fatalf("Header = %v, want %v", tbl.Header, want)
	}
	for i := range want {
		if tbl.Header[i] != want[i] {
			t.Errorf("Header[%d] = %q, want %q", i, tbl.Header[i], want[i])
		}
	}
	if tbl.Rows[0][2] != "100" || tbl.Rows[0][1] != "" {
		t.Errorf("row 0 = %q", tbl.Rows[0])
	}
	if tbl.Rows[1][2] != "20.5" || tbl.Rows[1][4] != "" {
		t.Errorf("row 1 = %q", tbl.Rows[1])
	}
}

func TestHTTPLoader_APIKeyHeader(t *testing.T) {
	t.Setenv("TEST_EXPORT_KEY", "s3cret")
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Export-Key")
		_, _ = w.Write([]byte("Tenure Months,Contract\n1,Month-to-month\n"))
	}))
	defer srv.Close()

	l, _ := New(config.Source{
		ID: "keyed", Type: "http", Endpoint: srv.URL,
		Auth: config.AuthConfig{Mode: "apikey", Header: "X-Export-Key", KeyEnv: "TEST_EXPORT_KEY"},
	})
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("X-Export-Key = %q, want s3cret", got)
	}
}

func TestHTTPLoader_BasicAuth(t *testing.T) {
	t.Setenv("TEST_EXPORT_PASSWORD", "pw")
	var user, pass string
	var ok bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
		_, _ = w.Write([]byte("Tenure Months\n1\n"))
	}))
	defer srv.Close()

	l, _ := New(config.Source{
		ID: "basic", Type: "http", Endpoint: srv.URL,
		Auth: config.AuthConfig{Mode: "basic", Username: "analyst", PasswordEnv: "TEST_EXPORT_PASSWORD"},
	})
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok || user != "analyst" || pass != "pw" {
		t.Errorf("basic auth = (%q, %q, %v)", user, pass, ok)
	}
}

func TestHTTPLoader_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	l, _ := New(config.Source{ID: "denied", Type: "http", Endpoint: srv.URL})
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for 403, got nil")
	}
}

// --- factory ---

func TestNew_Unsupported(t *testing.T) {
	_, err := New(config.Source{ID: "x", Type: "parquet"})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestNew_MTLSMissingCert(t *testing.T) {
	_, err := New(config.Source{
		ID: "m", Type: "http", Endpoint: "https://localhost",
		Auth: config.AuthConfig{Mode: "mtls", CertFile: "/nope.crt", KeyFile: "/nope.key"},
	})
	if err == nil {
		t.Fatal("expected error for missing client cert, got nil")
	}
}
