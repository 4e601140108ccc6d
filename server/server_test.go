package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nppestool/npdata"
	"nppestool/telemetry"
)

func provider(npi npdata.NPI, et npdata.EntityType, state npdata.StateCode, taxonomy string) *npdata.Provider {
	p := &npdata.Provider{
		NPI:            npi,
		EntityType:     et,
		MailingAddress: npdata.Address{City: "SPRINGFIELD", State: state},
		TaxonomyCodes:  []npdata.TaxonomyAssignment{{Code: taxonomy, IsPrimary: true}},
	}
	if et == npdata.Organization {
		p.Organization.LegalBusinessName = "GENERAL HOSPITAL"
	} else {
		p.Name = npdata.Name{First: "JANE", Last: "DOE"}
	}
	return p
}

func testServer(t *testing.T) (*Server, *telemetry.Metrics) {
	t.Helper()
	inactive := provider("1000000003", npdata.Individual, "CA", "207Q00000X")
	inactive.DeactivationDate = npdata.NewDate(2020, 1, 2)
	ds := npdata.NewDataset([]*npdata.Provider{
		provider("1000000001", npdata.Individual, "CA", "207Q00000X"),
		provider("1000000002", npdata.Organization, "TX", "282N00000X"),
		inactive,
	})
	ds.AddPracticeLocations([]npdata.PracticeLocation{
		{NPI: "1000000001", Address: npdata.Address{City: "OAKLAND", State: "CA"}},
	})
	ds.AddTaxonomyReference([]npdata.TaxonomyReference{
		{Code: "207Q00000X", Classification: "Family Medicine", DisplayName: "Family Medicine Physician"},
	})
	if err := ds.BuildIndexes(context.Background()); err != nil {
		t.Fatal(err)
	}
	m := telemetry.New()
	return New(ds, nil, m), m
}

func get(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("GET %s: decode %q: %v", path, rec.Body.String(), err)
		}
	}
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	var body map[string]any
	rec := get(t, s.Router(), "/health", &body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" || body["state"] != "indexed" || body["providers"] != float64(3) {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestStats(t *testing.T) {
	s, _ := testServer(t)
	var st npdata.Statistics
	get(t, s.Router(), "/stats", &st)
	if st.Total != 3 || st.Organization != 1 || st.Inactive != 1 || st.WithPracticeLocations != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestGetProvider(t *testing.T) {
	s, _ := testServer(t)
	h := s.Router()

	var body struct {
		NPI               string `json:"npi"`
		PracticeLocations []struct {
			Address struct {
				City string `json:"city"`
			} `json:"address"`
		} `json:"practice_locations"`
	}
	rec := get(t, h, "/providers/1000000001", &body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if body.NPI != "1000000001" || len(body.PracticeLocations) != 1 {
		t.Errorf("body = %+v", body)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/providers/123", http.StatusBadRequest},
		{"/providers/12345678AB", http.StatusBadRequest},
		{"/providers/1999999999", http.StatusNotFound},
	}
	for _, tt := range tests {
		var e map[string]string
		rec := get(t, h, tt.path, &e)
		if rec.Code != tt.code {
			t.Errorf("GET %s: status = %d, want %d", tt.path, rec.Code, tt.code)
		}
		if e["error"] == "" {
			t.Errorf("GET %s: missing error message", tt.path)
		}
	}
}

type listResponse struct {
	Total     int               `json:"total"`
	Returned  int               `json:"returned"`
	Providers []providerSummary `json:"providers"`
}

func TestListProviders(t *testing.T) {
	s, _ := testServer(t)
	h := s.Router()

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1000000001", "1000000002", "1000000003"}},
		{"?state=ca", []string{"1000000001", "1000000003"}},
		{"?state=CA,TX&active=true", []string{"1000000001", "1000000002"}},
		{"?active=false", []string{"1000000003"}},
		{"?taxonomy=282N00000X", []string{"1000000002"}},
		{"?specialty=family", []string{"1000000001", "1000000003"}},
		{"?entity_type=organization", []string{"1000000002"}},
		{"?entity_type=1&state=CA", []string{"1000000001", "1000000003"}},
		{"?name=hospital", []string{"1000000002"}},
		{"?state=NY", nil},
	}
	for _, tt := range tests {
		var body listResponse
		rec := get(t, h, "/providers"+tt.query, &body)
		if rec.Code != http.StatusOK {
			t.Errorf("%q: status = %d", tt.query, rec.Code)
			continue
		}
		var got []string
		for _, p := range body.Providers {
			got = append(got, string(p.NPI))
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") || body.Total != len(tt.want) {
			t.Errorf("%q: got %v (total %d), want %v", tt.query, got, body.Total, tt.want)
		}
	}
}

func TestListProvidersLimit(t *testing.T) {
	s, _ := testServer(t)
	var body listResponse
	get(t, s.Router(), "/providers?limit=2", &body)
	if body.Total != 3 || body.Returned != 2 || len(body.Providers) != 2 {
		t.Errorf("total %d returned %d", body.Total, body.Returned)
	}
	if p := body.Providers[0]; p.Name != "JANE DOE" || p.Address != "SPRINGFIELD, CA" || p.PrimaryTaxonomy != "207Q00000X" || !p.Active {
		t.Errorf("summary = %+v", p)
	}
}

func TestListProvidersBadParams(t *testing.T) {
	s, _ := testServer(t)
	h := s.Router()
	for _, q := range []string{"?limit=0", "?limit=abc", "?active=maybe", "?entity_type=3"} {
		if rec := get(t, h, "/providers"+q, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestGetTaxonomy(t *testing.T) {
	s, _ := testServer(t)
	h := s.Router()
	var body struct {
		Taxonomy  npdata.TaxonomyReference `json:"taxonomy"`
		Providers int                      `json:"providers"`
	}
	get(t, h, "/taxonomies/207Q00000X", &body)
	if body.Taxonomy.Classification != "Family Medicine" || body.Providers != 2 {
		t.Errorf("body = %+v", body)
	}
	if rec := get(t, h, "/taxonomies/999999999X", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAnalytics(t *testing.T) {
	s, _ := testServer(t)
	h := s.Router()
	var states []npdata.KeyCount
	get(t, h, "/analytics/states?top=1", &states)
	if len(states) != 1 || states[0].Key != "CA" || states[0].Count != 2 {
		t.Errorf("states = %+v", states)
	}
	var tax []npdata.KeyCount
	get(t, h, "/analytics/taxonomies", &tax)
	if len(tax) != 2 || tax[0].Key != "207Q00000X" {
		t.Errorf("taxonomies = %+v", tax)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t)
	h := s.Router()
	get(t, h, "/providers/1000000001", nil)
	rec := get(t, h, "/metrics", nil)
	body := rec.Body.String()
	for _, want := range []string{
		`nppes_http_requests_total{route="/providers/{npi}",status="200"} 1`,
		"nppes_providers 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRecoverer(t *testing.T) {
	s, _ := testServer(t)
	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	var body map[string]string
	rec := get(t, h, "/", &body)
	if rec.Code != http.StatusInternalServerError || body["error"] != "internal server error" {
		t.Errorf("got %d %v", rec.Code, body)
	}
}

func TestServeShutsDown(t *testing.T) {
	s, _ := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("ListenAndServe: %v", err)
	}
}
