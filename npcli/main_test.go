package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nppestool/export"
	"nppestool/npdata"
)

func person(npi npdata.NPI, first, last string, state npdata.StateCode, taxonomy string) *npdata.Provider {
	return &npdata.Provider{
		NPI:             npi,
		EntityType:      npdata.Individual,
		Name:            npdata.Name{First: first, Last: last},
		MailingAddress:  npdata.Address{City: "SPRINGFIELD", State: state},
		EnumerationDate: npdata.NewDate(2010, time.March, 1),
		TaxonomyCodes: []npdata.TaxonomyAssignment{
			{Code: taxonomy, IsPrimary: true, PrimarySwitch: npdata.IndicatorYes},
		},
	}
}

// writeRelease writes a main file for three providers in a fresh directory.
func writeRelease(t *testing.T) string {
	t.Helper()
	clinic := &npdata.Provider{
		NPI:            "1000000002",
		EntityType:     npdata.Organization,
		Organization:   npdata.OrganizationName{LegalBusinessName: "LAKESIDE CLINIC"},
		MailingAddress: npdata.Address{City: "AUSTIN", State: "TX"},
		TaxonomyCodes: []npdata.TaxonomyAssignment{
			{Code: "261QP2300X", IsPrimary: true, PrimarySwitch: npdata.IndicatorYes},
		},
	}
	providers := []*npdata.Provider{
		person("1000000001", "JANE", "DOE", "CA", "207Q00000X"),
		clinic,
		person("1000000003", "JOHN", "ROE", "CA", "207R00000X"),
	}
	var buf bytes.Buffer
	if err := export.Write(context.Background(), &buf, providers, export.CSVFlat, export.DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "npidata_pfile_20050523-20240707.csv"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

// run executes npcli with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NPPES_KAFKA_BROKERS", "")
	t.Setenv("NPPES_DATABASE_URL", "")
	a := &app{}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	a.close()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("boom"), exitFailure},
		{fail(exitNoResults, nil), exitNoResults},
		{fail(exitExport, errors.New("disk full")), exitExport},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestQueryByState(t *testing.T) {
	dir := writeRelease(t)
	out, err := run(t, "query", "--data-dir", dir, "--state", "ca")
	if err != nil {
		t.Fatal(err)
	}
	want := "1000000001 | JANE DOE | Individual | CA\n" +
		"1000000003 | JOHN ROE | Individual | CA\n" +
		"Total matches: 2\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestQueryLimit(t *testing.T) {
	dir := writeRelease(t)
	out, err := run(t, "query", "--data-dir", dir, "--limit", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Total matches: 3\n(showing first 1)") {
		t.Errorf("output:\n%s", out)
	}
}

func TestQueryEntityType(t *testing.T) {
	dir := writeRelease(t)
	out, err := run(t, "query", "--data-dir", dir, "--entity-type", "organization")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "1000000002 | LAKESIDE CLINIC | Organization | TX\n") {
		t.Errorf("output:\n%s", out)
	}
}

func TestQueryByNPI(t *testing.T) {
	dir := writeRelease(t)
	out, err := run(t, "query", "--data-dir", dir, "--npi", "1000000003")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1000000003 | JOHN ROE") {
		t.Errorf("output:\n%s", out)
	}

	_, err = run(t, "query", "--data-dir", dir, "--npi", "1999999999")
	if got := exitCode(err); got != exitNoResults {
		t.Errorf("missing NPI: exit %d, want %d", got, exitNoResults)
	}
	_, err = run(t, "query", "--data-dir", dir, "--npi", "12")
	if got := exitCode(err); got != exitFailure {
		t.Errorf("bad NPI: exit %d, want %d", got, exitFailure)
	}
}

func TestQueryNoResults(t *testing.T) {
	dir := writeRelease(t)
	out, err := run(t, "query", "--data-dir", dir, "--state", "NY")
	if got := exitCode(err); got != exitNoResults {
		t.Errorf("exit %d, want %d", got, exitNoResults)
	}
	if !strings.Contains(out, "Total matches: 0") {
		t.Errorf("output:\n%s", out)
	}
}

func TestQueryNPIFile(t *testing.T) {
	dir := writeRelease(t)
	list := filepath.Join(t.TempDir(), "npis.txt")
	os.WriteFile(list, []byte("# allow\n1000000003\n1000000002\n"), 0o644)
	out, err := run(t, "query", "--data-dir", dir, "--npi-file", list, "--entity-type", "1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1000000003 | JOHN ROE") || !strings.Contains(out, "Total matches: 1") {
		t.Errorf("output:\n%s", out)
	}
}

func TestStats(t *testing.T) {
	dir := writeRelease(t)
	out, err := run(t, "stats", "--data-dir", dir, "--top", "2")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Total Providers: 3",
		"Organization Providers: 1",
		"Top 2 States:\n   1. CA: 2\n   2. TX: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMissingDataDir(t *testing.T) {
	_, err := run(t, "stats", "--data-dir", t.TempDir())
	if got := exitCode(err); got != exitFailure {
		t.Errorf("exit %d, want %d", got, exitFailure)
	}
	if npdata.ErrorKindOf(err) != npdata.KindFileNotFound {
		t.Errorf("error kind = %q", npdata.ErrorKindOf(err))
	}
}

func TestExportJSONL(t *testing.T) {
	dir := writeRelease(t)
	path := filepath.Join(t.TempDir(), "ca.jsonl")
	out, err := run(t, "export", "--data-dir", dir, "--output", path, "--format", "jsonl", "--state", "CA")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Exported 2 providers as jsonl") {
		t.Errorf("output:\n%s", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("got %d lines, want 2", n)
	}
}

func TestExportBadFormat(t *testing.T) {
	dir := writeRelease(t)
	_, err := run(t, "export", "--data-dir", dir, "--output", filepath.Join(t.TempDir(), "x"), "--format", "xml")
	if got := exitCode(err); got != exitFailure {
		t.Errorf("exit %d, want %d", got, exitFailure)
	}
}

func TestExportWriteFailure(t *testing.T) {
	dir := writeRelease(t)
	path := filepath.Join(t.TempDir(), "missing", "out.json")
	_, err := run(t, "export", "--data-dir", dir, "--output", path, "--format", "json")
	if got := exitCode(err); got != exitExport {
		t.Errorf("exit %d, want %d", got, exitExport)
	}
}

func TestLoadPGRequiresURL(t *testing.T) {
	dir := writeRelease(t)
	_, err := run(t, "load-pg", "--data-dir", dir)
	if got := exitCode(err); got != exitFailure {
		t.Errorf("exit %d, want %d", got, exitFailure)
	}
}

func TestPublishRequiresBrokers(t *testing.T) {
	dir := writeRelease(t)
	_, err := run(t, "publish", "--data-dir", dir)
	if got := exitCode(err); got != exitFailure {
		t.Errorf("exit %d, want %d", got, exitFailure)
	}
	if npdata.ErrorKindOf(err) != npdata.KindConfiguration {
		t.Errorf("error kind = %q", npdata.ErrorKindOf(err))
	}
}

func TestExportDefaultOutput(t *testing.T) {
	dir := writeRelease(t)
	t.Chdir(t.TempDir())
	out, err := run(t, "export", "--data-dir", dir, "--format", "jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "nppes_export.jsonl") {
		t.Errorf("output:\n%s", out)
	}
	if _, err := os.Stat("nppes_export.jsonl"); err != nil {
		t.Errorf("default output not written: %v", err)
	}
}

func TestQueryLimitZeroPrintsAll(t *testing.T) {
	dir := writeRelease(t)
	out, err := run(t, "query", "--data-dir", dir, "--limit", "0")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, " | ") != 9 || strings.Contains(out, "showing first") {
		t.Errorf("output:\n%s", out)
	}
}
