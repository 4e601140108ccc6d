package npdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

const mainFileName = "npidata_pfile_20240101-20240107.csv"

// mainRow builds a full-width main file row from header → value pairs.
func mainRow(t *testing.T, vals map[string]string) []string {
	t.Helper()
	s := MainSchema()
	row := make([]string, s.Len())
	for h, v := range vals {
		i := s.Column(h)
		if i < 0 {
			t.Fatalf("unknown main header %q", h)
		}
		row[i] = v
	}
	return row
}

func individualRow(t *testing.T, npi, state, taxonomy string) []string {
	t.Helper()
	return mainRow(t, map[string]string{
		"NPI":                             npi,
		"Entity Type Code":                "1",
		"Provider Last Name (Legal Name)": "SMITH",
		"Provider First Name":             "JANE",
		"Provider Business Mailing Address State Name":  state,
		"Provider Enumeration Date":                     "05/23/2005",
		"Last Update Date":                              "07/08/2007",
		"Healthcare Provider Taxonomy Code_1":           taxonomy,
		"Healthcare Provider Primary Taxonomy Switch_1": "Y",
	})
}

func organizationRow(t *testing.T, npi, name, state string) []string {
	t.Helper()
	return mainRow(t, map[string]string{
		"NPI":              npi,
		"Entity Type Code": "2",
		"Provider Organization Name (Legal Business Name)": name,
		"Provider Business Mailing Address State Name":     state,
		"Authorized Official Last Name":                    "DOE",
		"Authorized Official First Name":                   "JOHN",
		"Authorized Official Title or Position":            "CEO",
		"Authorized Official Telephone Number":             "5551234567",
		"Authorized Official Credential Text":              "MD",
		"Healthcare Provider Taxonomy Code_1":              "282N00000X",
		"Healthcare Provider Primary Taxonomy Switch_1":    "Y",
	})
}

// writeCSV writes header and rows to dir/name and returns the path.
func writeCSV(t *testing.T, dir, name string, header []string, rows ...[]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeMainCSV(t *testing.T, rows ...[]string) string {
	t.Helper()
	return writeCSV(t, t.TempDir(), mainFileName, MainSchema().Headers, rows...)
}

func mustNPI(t *testing.T, s string) NPI {
	t.Helper()
	npi, err := ParseNPI(s)
	if err != nil {
		t.Fatalf("ParseNPI(%q): %v", s, err)
	}
	return npi
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

// indexedDataset builds and indexes a dataset from in-memory providers.
func indexedDataset(t *testing.T, providers ...*Provider) *Dataset {
	t.Helper()
	ds := NewDataset(providers)
	if err := ds.BuildIndexes(context.Background()); err != nil {
		t.Fatalf("BuildIndexes: %v", err)
	}
	return ds
}

func testProvider(npi NPI, state StateCode, taxonomies ...string) *Provider {
	p := &Provider{
		NPI:            npi,
		EntityType:     Individual,
		Name:           Name{First: "JANE", Last: "DOE"},
		MailingAddress: Address{State: state},
	}
	for i, c := range taxonomies {
		p.TaxonomyCodes = append(p.TaxonomyCodes, TaxonomyAssignment{Code: c, IsPrimary: i == 0})
	}
	return p
}

func npis(ps []*Provider) []NPI {
	out := make([]NPI, len(ps))
	for i, p := range ps {
		out[i] = p.NPI
	}
	return out
}

func equalNPIs(a, b []NPI) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
