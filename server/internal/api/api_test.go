package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rich1707/Customer-Churn/pkg/derive"
	"github.com/rich1707/Customer-Churn/pkg/types"
	"github.com/rich1707/Customer-Churn/server/internal/alerts"
	"github.com/rich1707/Customer-Churn/server/internal/api"
	"github.com/rich1707/Customer-Churn/server/internal/config"
	"github.com/rich1707/Customer-Churn/server/internal/history"
	"github.com/rich1707/Customer-Churn/server/internal/receiver"
	"github.com/rich1707/Customer-Churn/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newStore(batches ...*types.Batch) *store.Store {
	st := store.New(5 * time.Minute)
	for _, b := range batches {
		st.Put(b)
	}
	return st
}

func customer(tenure int, monthly, total float64, contract string, churn bool) types.Customer {
	return types.Customer{
		TenureMonths:   tenure,
		MonthlyCharges: monthly,
		TotalCharges:   total,
		Contract:       contract,
		Churn:          churn,
		HasLabel:       true,
		Attributes:     map[string]string{"Payment Method": "Electronic check"},
	}
}

// okBatch derives customers the way the agent does.
func okBatch(id string, customers ...types.Customer) *types.Batch {
	recs := make([]types.DerivedRecord, len(customers))
	for i, c := range customers {
		recs[i] = derive.Record(c)
	}
	stats := derive.Summarize(recs, 0, 0, nil)
	stats.UptimePct = 100
	return &types.Batch{
		ID:         "batch-" + id,
		SourceID:   id,
		SourceType: "csv",
		DerivedAt:  time.Now(),
		Status:     types.StatusOK,
		Records:    recs,
		Stats:      stats,
	}
}

func failedBatch(id string) *types.Batch {
	return &types.Batch{
		ID:         "batch-" + id,
		SourceID:   id,
		SourceType: "http",
		DerivedAt:  time.Now(),
		Status:     types.StatusFailed,
		Error:      "load: connection refused",
		Stats:      types.BatchStats{UptimePct: 50},
	}
}

// telco has two month-to-month churners and two two-year stayers.
func telco() *types.Batch {
	return okBatch("telco",
		customer(2, 70, 151, types.ContractMonthToMonth, true),
		customer(5, 80, 300, types.ContractMonthToMonth, true),
		customer(24, 50, 1200, types.ContractTwoYear, false),
		customer(30, 60, 1700, types.ContractTwoYear, false),
	)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

type fakeReceiver struct{}

func (fakeReceiver) Consuming() bool { return true }
func (fakeReceiver) Counts() receiver.Counts {
	return receiver.Counts{Accepted: 7, Rejected: 1}
}

type fakeHistory struct {
	history.Nop
	runs      []history.Run
	err       error
	gotSource string
	gotLimit  int
}

func (f *fakeHistory) List(_ context.Context, sourceID string, limit int) ([]history.Run, error) {
	f.gotSource, f.gotLimit = sourceID, limit
	return f.runs, f.err
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := api.New(api.Options{Store: newStore()})
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.State != api.StateUnknown {
		t.Errorf("state: got %v, want unknown", resp.State)
	}
	if resp.SourceCount != 0 {
		t.Errorf("source_count: got %d, want 0", resp.SourceCount)
	}
}

func TestHealth_PooledChurnRate(t *testing.T) {
	other := okBatch("crm",
		customer(12, 40, 480, types.ContractOneYear, false),
		customer(3, 90, 260, types.ContractMonthToMonth, false),
		customer(7, 90, 640, types.ContractMonthToMonth, false),
		customer(8, 90, 730, types.ContractMonthToMonth, false),
	)
	h := api.New(api.Options{Store: newStore(telco(), other), Receiver: fakeReceiver{}})
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.State != api.StateOK {
		t.Errorf("state: got %v, want ok", resp.State)
	}
	if resp.Records != 8 || resp.Labelled != 8 || resp.Churned != 2 {
		t.Errorf("counts: got records=%d labelled=%d churned=%d", resp.Records, resp.Labelled, resp.Churned)
	}
	// 2 churned of 8 labelled.
	if resp.ChurnRate != 25 {
		t.Errorf("churn_rate: got %v, want 25", resp.ChurnRate)
	}
	if !resp.Consuming || resp.Messages == nil || resp.Messages.Accepted != 7 {
		t.Errorf("consumer state: got consuming=%v messages=%+v", resp.Consuming, resp.Messages)
	}
}

func TestHealth_States(t *testing.T) {
	tests := []struct {
		name    string
		batches []*types.Batch
		want    string
	}{
		{"one failed", []*types.Batch{telco(), failedBatch("crm")}, api.StateDegraded},
		{"all failed", []*types.Batch{failedBatch("crm")}, api.StateFailing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := api.New(api.Options{Store: newStore(tt.batches...)})
			var resp api.HealthResponse
			decode(t, get(t, h, "/api/v1/health"), &resp)
			if resp.State != tt.want {
				t.Errorf("state: got %v, want %v", resp.State, tt.want)
			}
		})
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(api.Options{Store: newStore()})
	rr := post(t, h, "/api/v1/health", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
}

func TestUnknownRoute_JSON404(t *testing.T) {
	h := api.New(api.Options{Store: newStore()})
	rr := get(t, h, "/api/v1/pipelines")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] == "" {
		t.Error("expected error field in body")
	}
}

// --- /api/v1/sources --------------------------------------------------------

func TestListSources_Sorted(t *testing.T) {
	h := api.New(api.Options{Store: newStore(telco(), failedBatch("billing"))})
	rr := get(t, h, "/api/v1/sources")

	var resp []api.SourceResponse
	decode(t, rr, &resp)
	if len(resp) != 2 {
		t.Fatalf("len: got %d, want 2", len(resp))
	}
	if resp[0].SourceID != "billing" || resp[1].SourceID != "telco" {
		t.Errorf("order: got %s, %s", resp[0].SourceID, resp[1].SourceID)
	}
	if resp[0].Status != types.StatusFailed || resp[0].Error == "" {
		t.Errorf("failed source: got %+v", resp[0])
	}
	if len(resp[0].Diagnostics) == 0 || resp[0].Diagnostics[0].Key != "load_failed" {
		t.Errorf("failed source diagnostics: got %+v", resp[0].Diagnostics)
	}
}

func TestGetSource(t *testing.T) {
	h := api.New(api.Options{Store: newStore(telco())})
	rr := get(t, h, "/api/v1/sources/telco")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.SourceResponse
	decode(t, rr, &resp)

	if resp.BatchID != "batch-telco" || resp.Stats.Rows != 4 {
		t.Errorf("got %+v", resp)
	}
	if resp.Stats.ChurnRate != 50 {
		t.Errorf("churn_rate: got %v, want 50", resp.Stats.ChurnRate)
	}
	if resp.Received != 1 {
		t.Errorf("batches_received: got %d, want 1", resp.Received)
	}
	if _, err := time.Parse(time.RFC3339, resp.LastSeen); err != nil {
		t.Errorf("last_seen %q is not RFC3339", resp.LastSeen)
	}
}

func TestGetSource_NotFound(t *testing.T) {
	h := api.New(api.Options{Store: newStore(telco())})
	if rr := get(t, h, "/api/v1/sources/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- /api/v1/sources/{id}/records ------------------------------------------

func TestSourceRecords_Paging(t *testing.T) {
	h := api.New(api.Options{Store: newStore(telco())})

	var page api.RecordsResponse
	decode(t, get(t, h, "/api/v1/sources/telco/records?page=2&limit=3"), &page)
	if page.Total != 4 || page.Page != 2 || page.Limit != 3 {
		t.Errorf("paging fields: got %+v", page)
	}
	if len(page.Records) != 1 || page.Records[0].TenureMonths != 30 {
		t.Fatalf("page 2: got %+v", page.Records)
	}
	// 1700/30 = 56.67 < 60 and 30 is not a two-year boundary.
	if f := page.Records[0].Features; f.DiffCharge != types.DiffMore || f.AbleToChurn != types.ChurnNo {
		t.Errorf("features: got %+v", f)
	}

	var beyond api.RecordsResponse
	decode(t, get(t, h, "/api/v1/sources/telco/records?page=9"), &beyond)
	if beyond.Records == nil || len(beyond.Records) != 0 {
		t.Errorf("beyond last page: got %v, want empty array", beyond.Records)
	}
}

func TestSourceRecords_BadParams(t *testing.T) {
	h := api.New(api.Options{Store: newStore(telco())})
	for _, q := range []string{"page=0", "page=x", "limit=-1"} {
		if rr := get(t, h, "/api/v1/sources/telco/records?"+q); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want 400", q, rr.Code)
		}
	}
	if rr := get(t, h, "/api/v1/sources/nope/records"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown source: status got %d, want 404", rr.Code)
	}
}

// --- /api/v1/summary --------------------------------------------------------

func TestSummary_ByContract(t *testing.T) {
	h := api.New(api.Options{Store: newStore(telco(), failedBatch("crm"))})
	rr := get(t, h, "/api/v1/summary")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	var resp api.SummaryResponse
	decode(t, rr, &resp)

	if resp.By != "contract" {
		t.Errorf("by: got %q, want contract", resp.By)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "telco" {
		t.Errorf("sources: got %v, failed batches must be excluded", resp.Sources)
	}
	if len(resp.Groups) != 2 {
		t.Fatalf("groups: got %d, want 2", len(resp.Groups))
	}
	m2m := resp.Groups[0]
	if m2m.Key != types.ContractMonthToMonth || m2m.Count != 2 || m2m.ChurnRate != 100 {
		t.Errorf("month-to-month group: got %+v", m2m)
	}
	if resp.Totals.Records != 4 || resp.Totals.ChurnRate != 50 {
		t.Errorf("totals: got %+v", resp.Totals)
	}
}

func TestSummary_AttributeAndErrors(t *testing.T) {
	h := api.New(api.Options{Store: newStore(telco())})

	var resp api.SummaryResponse
	decode(t, get(t, h, "/api/v1/summary?by=Payment%20Method&source=telco"), &resp)
	if len(resp.Groups) != 1 || resp.Groups[0].Key != "Electronic check" {
		t.Errorf("attribute groups: got %+v", resp.Groups)
	}

	if rr := get(t, h, "/api/v1/summary?by=nonexistent"); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown key: status got %d, want 400", rr.Code)
	}
	if rr := get(t, h, "/api/v1/summary?source=nope"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown source: status got %d, want 404", rr.Code)
	}
}

func TestSummary_EmptyStore(t *testing.T) {
	h := api.New(api.Options{Store: newStore()})
	var resp api.SummaryResponse
	decode(t, get(t, h, "/api/v1/summary?by=tenure_band"), &resp)
	if resp.Groups == nil || resp.Sources == nil {
		t.Errorf("empty summary should use empty arrays: %+v", resp)
	}
}

// --- /api/v1/history/{id} ---------------------------------------------------

func TestHistory(t *testing.T) {
	repo := &fakeHistory{runs: []history.Run{{ID: "r1", SourceID: "telco", Status: types.StatusOK}}}
	h := api.New(api.Options{Store: newStore(), History: repo})

	var runs []history.Run
	decode(t, get(t, h, "/api/v1/history/telco?limit=5"), &runs)
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Errorf("runs: got %+v", runs)
	}
	if repo.gotSource != "telco" || repo.gotLimit != 5 {
		t.Errorf("List called with %q, %d", repo.gotSource, repo.gotLimit)
	}

	if rr := get(t, h, "/api/v1/history/telco?limit=zero"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status got %d, want 400", rr.Code)
	}

	repo.err = errors.New("db down")
	if rr := get(t, h, "/api/v1/history/telco"); rr.Code != http.StatusInternalServerError {
		t.Errorf("repo error: status got %d, want 500", rr.Code)
	}
}

func TestHistory_DisabledStorage(t *testing.T) {
	h := api.New(api.Options{Store: newStore()})
	rr := get(t, h, "/api/v1/history/telco")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("got %d %q, want 200 []", rr.Code, rr.Body.String())
	}
}

// --- /api/v1/alerts and /api/v1/snapshot -----------------------------------

func TestAlertsAndSnapshot(t *testing.T) {
	st := newStore(telco())
	al := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "high-churn", Condition: "churn_rate > 30", Severity: "critical"},
	}})
	al.Evaluate(telco())
	h := api.New(api.Options{Store: st, Alerts: al})

	var list []alerts.Alert
	decode(t, get(t, h, "/api/v1/alerts"), &list)
	if len(list) != 1 || list[0].RuleName != "high-churn" || list[0].State != alerts.StateFiring {
		t.Errorf("alerts: got %+v", list)
	}

	var snap api.SnapshotResponse
	decode(t, get(t, h, "/api/v1/snapshot"), &snap)
	if len(snap.Sources) != 1 || len(snap.Alerts) != 1 {
		t.Errorf("snapshot: got %d sources, %d alerts", len(snap.Sources), len(snap.Alerts))
	}
	if _, err := time.Parse(time.RFC3339, snap.GeneratedAt); err != nil {
		t.Errorf("generated_at %q is not RFC3339", snap.GeneratedAt)
	}
}

func TestAlerts_NoEngine(t *testing.T) {
	h := api.New(api.Options{Store: newStore()})
	rr := get(t, h, "/api/v1/alerts")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body: got %q, want []", rr.Body.String())
	}
}

// --- POST /api/v1/derive ----------------------------------------------------

func TestDerive(t *testing.T) {
	h := api.New(api.Options{Store: newStore()})
	body := `[
		{"tenure_months": 2, "monthly_charges": 70, "total_charges": 151, "contract": "Month-to-month"},
		{"tenure_months": 24, "monthly_charges": 50, "total_charges": 1300, "contract": "Two year"},
		{"tenure_months": 0, "monthly_charges": 20, "total_charges": 0, "contract": "One year"}
	]`
	rr := post(t, h, "/api/v1/derive", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	var resp api.DeriveResponse
	decode(t, rr, &resp)

	want := []types.Features{
		{DiffCharge: types.DiffLess, AbleToChurn: types.ChurnYes}, // 75.5 > 70
		{DiffCharge: types.DiffLess, AbleToChurn: types.ChurnYes}, // 54.17 > 50, renewal month
		{DiffCharge: types.DiffSame, AbleToChurn: types.ChurnYes}, // new account
	}
	if len(resp.Records) != len(want) {
		t.Fatalf("records: got %d, want %d", len(resp.Records), len(want))
	}
	for i, w := range want {
		if resp.Records[i].Features != w {
			t.Errorf("record %d: got %+v, want %+v", i, resp.Records[i].Features, w)
		}
	}
	if resp.Stats.Rows != 3 || resp.Stats.AbleToChurn[types.ChurnYes] != 3 {
		t.Errorf("stats: got %+v", resp.Stats)
	}
}

func TestDerive_BadRequests(t *testing.T) {
	h := api.New(api.Options{Store: newStore()})
	cases := map[string]string{
		"not json":       `{nope`,
		"object":         `{"tenure_months": 1}`,
		"negative value": `[{"tenure_months": -1, "monthly_charges": 10, "total_charges": 0, "contract": "One year"}]`,
	}
	for name, body := range cases {
		if rr := post(t, h, "/api/v1/derive", body); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want 400", name, rr.Code)
		}
	}
}

// --- auth -------------------------------------------------------------------

func TestAuth_APIKey(t *testing.T) {
	t.Setenv("TEST_CHURN_API_KEY", "s3cret")
	h := api.New(api.Options{
		Store: newStore(telco()),
		Auth:  config.AuthConfig{Mode: "apikey", KeyEnv: "TEST_CHURN_API_KEY"},
	})

	if rr := get(t, h, "/api/v1/health"); rr.Code != http.StatusOK {
		t.Errorf("health should stay open: got %d", rr.Code)
	}
	if rr := get(t, h, "/api/v1/sources"); rr.Code != http.StatusUnauthorized {
		t.Errorf("no key: got %d, want 401", rr.Code)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil)
	req.Header.Set("x-api-key", "s3cret")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("with key: got %d, want 200", rr.Code)
	}
}
