package npdata

import (
	"errors"
	"testing"
)

func TestMainSchemaShape(t *testing.T) {
	s := MainSchema()
	if s.Len() != 330 {
		t.Fatalf("main schema: got %d columns, want 330", s.Len())
	}
	if s.Headers[0] != "NPI" || s.Headers[329] != "Certification Date" {
		t.Errorf("first/last = %q/%q", s.Headers[0], s.Headers[329])
	}
	for kind, want := range map[FileKind]int{
		OtherNameFile:        3,
		PracticeLocationFile: 10,
		EndpointFile:         19,
		TaxonomyFile:         8,
	} {
		if got := SchemaFor(kind).Len(); got != want {
			t.Errorf("%s schema: got %d columns, want %d", kind, got, want)
		}
	}
}

func TestMainLayoutPositions(t *testing.T) {
	l := MainLayout
	checks := []struct {
		name      string
		got, want int
	}{
		{"mailing line 1", l.Mailing.line1, 20},
		{"mailing state", l.Mailing.state, 23},
		{"mailing postal", l.Mailing.postal, 24},
		{"mailing country", l.Mailing.country, 25},
		{"mailing phone", l.Mailing.phone, 26},
		{"mailing fax", l.Mailing.fax, 27},
		{"practice line 1", l.Practice.line1, 28},
		{"enumeration date", l.EnumerationDate, 36},
		{"last update", l.LastUpdateDate, 37},
		{"deactivation reason", l.DeactivationReason, 38},
		{"deactivation date", l.DeactivationDate, 39},
		{"reactivation date", l.ReactivationDate, 40},
		{"sex", l.Sex, 41},
		{"AO last", l.AOLast, 42},
		{"AO first", l.AOFirst, 43},
		{"AO middle", l.AOMiddle, 44},
		{"AO title", l.AOTitle, 45},
		{"AO phone", l.AOPhone, 46},
		{"sole proprietor", l.SoleProprietor, 307},
		{"subpart", l.OrganizationSubpart, 308},
		{"parent LBN", l.ParentLBN, 309},
		{"parent TIN", l.ParentTIN, 310},
		{"AO prefix", l.AOPrefix, 311},
		{"AO suffix", l.AOSuffix, 312},
		{"AO credential", l.AOCredential, 313},
		{"certification", l.CertificationDate, 329},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got column %d, want %d", c.name, c.got, c.want)
		}
	}
	for i := 0; i < TaxonomySlots; i++ {
		slot := l.Taxonomy[i]
		base := 47 + 4*i
		if slot.code != base || slot.license != base+1 || slot.licenseState != base+2 || slot.primarySwitch != base+3 {
			t.Errorf("taxonomy slot %d: got %+v, want base %d", i, slot, base)
		}
		if slot.group != 314+i {
			t.Errorf("taxonomy group %d: got %d, want %d", i, slot.group, 314+i)
		}
	}
	for j := 0; j < OtherIdentifierSlots; j++ {
		if got := l.OtherIDs[j].identifier; got != 107+4*j {
			t.Errorf("other identifier slot %d: got %d, want %d", j, got, 107+4*j)
		}
	}
}

func TestValidateHeadersMismatch(t *testing.T) {
	s := MainSchema()
	headers := append([]string(nil), s.Headers...)
	headers[1] = "Entity Type"

	err := s.ValidateHeaders(headers)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("got %v, want *Error", err)
	}
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Error("errors.Is(ErrSchemaMismatch) = false")
	}
	if e.ExpectedColumns != 330 || e.FoundColumns != 330 {
		t.Errorf("columns: got %d/%d, want 330/330", e.ExpectedColumns, e.FoundColumns)
	}
	if e.Index != 1 || e.Expected != "Entity Type Code" || e.Found != "Entity Type" {
		t.Errorf("first mismatch: got (%d, %q, %q)", e.Index, e.Expected, e.Found)
	}
}

func TestValidateHeadersTrimsAndStripsBOM(t *testing.T) {
	s := OtherNameSchema()
	headers := []string{"\ufeffNPI", " Provider Other Organization Name ", "Provider Other Organization Name Type Code"}
	if err := s.ValidateHeaders(headers); err != nil {
		t.Fatalf("ValidateHeaders: %v", err)
	}
}

func TestValidateHeadersLength(t *testing.T) {
	s := OtherNameSchema()
	err := s.ValidateHeaders(s.Headers[:2])
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("got %v", err)
	}
	if e.ExpectedColumns != 3 || e.FoundColumns != 2 || e.Index != 2 || e.Found != "" {
		t.Errorf("got %+v", e)
	}

	extra := append(append([]string(nil), s.Headers...), "Extra")
	err = s.ValidateHeaders(extra)
	if !errors.As(err, &e) || e.Index != 3 || e.Found != "Extra" {
		t.Errorf("extra column: got %v", err)
	}
}

func TestTaxonomySchemaRejectsCondensedForm(t *testing.T) {
	condensed := []string{"Code", "Grouping", "Classification", "Specialization", "Definition", "Notes"}
	err := TaxonomySchema().ValidateHeaders(condensed)
	if ErrorKindOf(err) != KindSchemaMismatch {
		t.Fatalf("got %v, want SchemaMismatch", err)
	}
}

func TestDetectFileKind(t *testing.T) {
	tests := []struct {
		name string
		kind FileKind
		ok   bool
	}{
		{"npidata_pfile_20050523-20240107.csv", MainFile, true},
		{"npidata_pfile_20050523-20240107_fileheader.csv", 0, false},
		{"othername_pfile_20050523-20240107.csv", OtherNameFile, true},
		{"pl_pfile_20050523-20240107.csv", PracticeLocationFile, true},
		{"endpoint_pfile_20050523-20240107.csv", EndpointFile, true},
		{"nucc_taxonomy_240.csv", TaxonomyFile, true},
		{"npidata_pfile_20050523-20240107.csv.gz", MainFile, true},
		{"readme.pdf", 0, false},
	}
	for _, tt := range tests {
		kind, ok := DetectFileKind(tt.name)
		if kind != tt.kind || ok != tt.ok {
			t.Errorf("DetectFileKind(%q) = %v, %v; want %v, %v", tt.name, kind, ok, tt.kind, tt.ok)
		}
	}
}
