package npdata

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func readAll(t *testing.T, r *CSVReader) [][]string {
	t.Helper()
	var rows [][]string
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, append([]string(nil), row...))
	}
	return rows
}

func TestCSVReaderBOMAndBlankRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "othername_pfile_x.csv")
	content := "\xEF\xBB\xBF\"NPI\",\"Provider Other Organization Name\",\"Provider Other Organization Name Type Code\"\r\n" +
		"\"1234567890\",\"ACME, INC\",\"3\"\r\n" +
		"\r\n" +
		"\"1234567891\",\"\",\"\"\r\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewCSVReader(path)
	if err != nil {
		t.Fatalf("NewCSVReader: %v", err)
	}
	defer r.Close()

	if got := r.Header()[0]; got != "NPI" {
		t.Errorf("header[0] = %q, want NPI", got)
	}
	rows := readAll(t, r)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0][1] != "ACME, INC" {
		t.Errorf("quoted comma: got %q", rows[0][1])
	}
	if r.Line() != 4 {
		t.Errorf("Line() = %d, want 4", r.Line())
	}
	if r.BytesRead() != int64(len(content)) {
		t.Errorf("BytesRead() = %d, want %d", r.BytesRead(), len(content))
	}
}

func TestCSVReaderGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nucc_taxonomy_240.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	io.WriteString(gz, "Code,Grouping,Classification,Specialization,Definition,Notes,Display Name,Section\n")
	io.WriteString(gz, "207Q00000X,Allopathic,Family Medicine,,def,,Family Medicine Physician,Individual\n")
	gz.Close()
	f.Close()

	r, err := NewCSVReader(path)
	if err != nil {
		t.Fatalf("NewCSVReader: %v", err)
	}
	defer r.Close()
	rows := readAll(t, r)
	if len(rows) != 1 || rows[0][0] != "207Q00000X" {
		t.Fatalf("got %v", rows)
	}
}

func TestCSVReaderMissingFile(t *testing.T) {
	_, err := NewCSVReader(filepath.Join(t.TempDir(), "npidata_pfile_missing.csv"))
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("got %v, want FileNotFound", err)
	}
}

func TestCSVReaderEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewCSVReader(path)
	if ErrorKindOf(err) != KindCSVParse {
		t.Fatalf("got %v, want CsvParse", err)
	}
}

func TestCellInvalidUTF8(t *testing.T) {
	row := []string{"  JOS\xc9 ", "PE\xd1A\xff", "PLAIN"}
	tests := []struct {
		i    int
		want string
	}{
		{0, "JOS�"},
		{1, "PE�A�"},
		{2, "PLAIN"},
		{5, ""},
	}
	for _, tt := range tests {
		if got := cell(row, tt.i); got != tt.want {
			t.Errorf("cell(%d) = %q, want %q", tt.i, got, tt.want)
		}
	}
}
