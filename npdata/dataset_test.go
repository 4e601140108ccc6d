package npdata

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestGetByStateCaseInsensitive(t *testing.T) {
	p := testProvider("1234567893", "CA", "207Q00000X")
	ds := indexedDataset(t, p)

	if got := ds.GetByState("CA"); len(got) != 1 || got[0] != p {
		t.Errorf("GetByState(CA) = %v", npis(got))
	}
	if got := ds.GetByState("ca"); len(got) != 1 || got[0] != p {
		t.Errorf("GetByState(ca) = %v", npis(got))
	}
	if got := ds.GetByState("ZZ"); len(got) != 0 {
		t.Errorf("GetByState(ZZ) = %v, want empty", npis(got))
	}
	if got := ds.GetByState("XX"); len(got) != 0 {
		t.Errorf("GetByState(XX) = %v, want empty", npis(got))
	}
}

func TestLookupsBeforeIndexing(t *testing.T) {
	a := testProvider("1000000001", "CA", "207Q00000X")
	b := testProvider("1000000002", "NY", "207Q00000X", "207R00000X")
	ds := NewDataset([]*Provider{a, b})
	if ds.State() != StateLoaded {
		t.Fatalf("state = %s, want loaded", ds.State())
	}

	if ds.GetByNPI("1000000002") != b {
		t.Error("GetByNPI linear scan failed")
	}
	if got := ds.GetByState("ny"); len(got) != 1 || got[0] != b {
		t.Errorf("GetByState linear scan = %v", npis(got))
	}
	if got := ds.GetByTaxonomy("207Q00000X"); !equalNPIs(npis(got), []NPI{"1000000001", "1000000002"}) {
		t.Errorf("GetByTaxonomy linear scan = %v", npis(got))
	}

	if err := ds.BuildIndexes(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ds.State() != StateIndexed {
		t.Errorf("state = %s, want indexed", ds.State())
	}
	if ds.GetByNPI("1000000002") != b || ds.GetByNPI("1999999999") != nil {
		t.Error("GetByNPI via index failed")
	}
}

func buildMixedDataset(t *testing.T, n int) *Dataset {
	t.Helper()
	states := []StateCode{"CA", "NY", "TX", "", "WA"}
	codes := []string{"207Q00000X", "207R00000X", "363L00000X"}
	providers := make([]*Provider, 0, n)
	for i := 0; i < n; i++ {
		npi := NPI(fmt.Sprintf("1%09d", i))
		p := testProvider(npi, states[i%len(states)], codes[i%len(codes)], codes[(i+1)%len(codes)])
		if i%7 == 0 {
			// same code twice on one provider
			p.TaxonomyCodes = append(p.TaxonomyCodes, TaxonomyAssignment{Code: codes[i%len(codes)]})
		}
		providers = append(providers, p)
	}
	return indexedDataset(t, providers...)
}

func TestIndexInvariants(t *testing.T) {
	ds := buildMixedDataset(t, 25_003)
	providers := ds.Providers()

	for s, positions := range ds.StateIndex() {
		for _, pos := range positions {
			if providers[pos].MailingAddress.State != s {
				t.Fatalf("state index %s holds position %d with state %q", s, pos, providers[pos].MailingAddress.State)
			}
		}
		for i := 1; i < len(positions); i++ {
			if positions[i] <= positions[i-1] {
				t.Fatalf("state index %s not in file order", s)
			}
		}
	}
	if _, ok := ds.StateIndex()[""]; ok {
		t.Error("absent state must not be indexed")
	}

	for c, positions := range ds.TaxonomyIndex() {
		for i, pos := range positions {
			if !providers[pos].HasTaxonomy(c) {
				t.Fatalf("taxonomy index %s holds position %d without that code", c, pos)
			}
			if i > 0 && pos <= positions[i-1] {
				t.Fatalf("taxonomy index %s has duplicate or unordered position %d", c, pos)
			}
		}
	}

	if len(ds.NPIIndex()) != len(providers) {
		t.Fatalf("npi index size %d, want %d", len(ds.NPIIndex()), len(providers))
	}
	for pos, p := range providers {
		if ds.NPIIndex()[p.NPI] != pos {
			t.Fatalf("npi index[%s] = %d, want %d", p.NPI, ds.NPIIndex()[p.NPI], pos)
		}
	}
}

func TestBuildIndexesIdempotent(t *testing.T) {
	ds := buildMixedDataset(t, 12_345)
	npiIdx, stateIdx, taxIdx := ds.NPIIndex(), ds.StateIndex(), ds.TaxonomyIndex()

	if err := ds.BuildIndexes(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(npiIdx, ds.NPIIndex()) {
		t.Error("npi index differs after rebuild")
	}
	if !reflect.DeepEqual(stateIdx, ds.StateIndex()) {
		t.Error("state index differs after rebuild")
	}
	if !reflect.DeepEqual(taxIdx, ds.TaxonomyIndex()) {
		t.Error("taxonomy index differs after rebuild")
	}
}

func TestDuplicateNPILastWins(t *testing.T) {
	first := testProvider("1234567893", "CA", "207Q00000X")
	second := testProvider("1234567893", "NY", "207R00000X")
	other := testProvider("1000000001", "TX")
	ds := indexedDataset(t, first, other, second)

	if ds.Len() != 3 {
		t.Errorf("Len = %d, want 3", ds.Len())
	}
	if ds.GetByNPI("1234567893") != second {
		t.Error("later duplicate should win")
	}
}

func TestDuplicateNPIAcrossChunks(t *testing.T) {
	providers := make([]*Provider, 0, 30_000)
	for i := 0; i < 30_000; i++ {
		providers = append(providers, testProvider(NPI(fmt.Sprintf("1%09d", i)), "CA"))
	}
	last := testProvider("1000000005", "NY")
	providers = append(providers, last)
	ds := indexedDataset(t, providers...)
	if ds.GetByNPI("1000000005") != last {
		t.Error("later duplicate should win across chunks")
	}
}

func TestOpenFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "npidata_pfile_20050523-20240107.csv", MainSchema().Headers,
		individualRow(t, "1234567893", "CA", "207Q00000X"),
		organizationRow(t, "1234567901", "ACME CLINIC", "NY"))
	writeCSV(t, dir, "npidata_pfile_20050523-20240107_fileheader.csv", MainSchema().Headers)
	writeCSV(t, dir, "othername_pfile_20050523-20240107.csv", OtherNameSchema().Headers,
		[]string{"1234567901", "ACME DBA", "3"})
	writeCSV(t, dir, "pl_pfile_20050523-20240107.csv", PracticeLocationSchema().Headers,
		[]string{"1234567893", "2 SIDE ST", "", "FRESNO", "CA", "93650", "US", "", "", ""})
	writeCSV(t, dir, "endpoint_pfile_20050523-20240107.csv", EndpointSchema().Headers,
		[]string{"1234567893", "DIRECT", "", "jane@direct.example.org", "N", "", "", "", "", "", "", "", "", "", "", "", "", "", ""})
	writeCSV(t, dir, "nucc_taxonomy_240.csv", TaxonomySchema().Headers,
		[]string{"207Q00000X", "Allopathic", "Family Medicine", "", "", "", "Family Medicine Physician", "Individual"})

	ds, err := FromDirectory(context.Background(), dir, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("FromDirectory: %v", err)
	}
	if ds.State() != StateIndexed || ds.Len() != 2 {
		t.Fatalf("state=%s len=%d", ds.State(), ds.Len())
	}
	if got := ds.GetOtherNames("1234567901"); len(got) != 1 || got[0].Name != "ACME DBA" {
		t.Errorf("other names = %+v", got)
	}
	if got := ds.GetPracticeLocations("1234567893"); len(got) != 1 || got[0].Address.City != "FRESNO" {
		t.Errorf("practice locations = %+v", got)
	}
	if got := ds.GetEndpoints("1234567893"); len(got) != 1 {
		t.Errorf("endpoints = %+v", got)
	}
	if ref, ok := ds.GetTaxonomyDescription("207Q00000X"); !ok || ref.Classification != "Family Medicine" {
		t.Errorf("taxonomy = %+v, %v", ref, ok)
	}
	if len(ds.Reports()) != 5 {
		t.Errorf("got %d reports, want 5", len(ds.Reports()))
	}
}

func TestOpenWithoutIndexes(t *testing.T) {
	path := writeMainCSV(t, individualRow(t, "1234567893", "CA", "207Q00000X"))
	opts := DefaultLoadOptions()
	opts.BuildIndexes = false
	ds, err := Open(context.Background(), Paths{Main: path}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if ds.State() != StateLoaded || ds.IsIndexed() {
		t.Errorf("state = %s, want loaded", ds.State())
	}
	if got := ds.GetByState("CA"); len(got) != 1 {
		t.Errorf("GetByState before indexing = %v", npis(got))
	}
}

func TestFromDirectoryWithoutMainFile(t *testing.T) {
	_, err := FromDirectory(context.Background(), t.TempDir(), DefaultLoadOptions())
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("got %v, want FileNotFound", err)
	}
}

func TestDiscoverFilesPicksLatest(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "npidata_pfile_20050523-20240107.csv", MainSchema().Headers)
	writeCSV(t, dir, "npidata_pfile_20050523-20240204.csv", MainSchema().Headers)
	paths, err := DiscoverFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if want := "npidata_pfile_20050523-20240204.csv"; paths.Main[len(paths.Main)-len(want):] != want {
		t.Errorf("main = %s", paths.Main)
	}
	if paths.Taxonomy != "" {
		t.Errorf("taxonomy = %q, want empty", paths.Taxonomy)
	}
}
