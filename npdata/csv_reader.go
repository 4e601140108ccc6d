package npdata

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

const readBufferSize = 256 * 1024

// CSVReader streams an NPPES CSV file one row at a time. Files ending in
// .gz are decompressed on the fly.
type CSVReader struct {
	path    string
	file    *os.File
	gz      *gzip.Reader
	counter *countingReader
	csv     *csv.Reader
	header  []string
	line    int64
}

// NewCSVReader opens path and reads its header row.
func NewCSVReader(path string) (*CSVReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: KindFileNotFound, Message: "file not found", Path: path, Err: err}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	r := &CSVReader{path: path, file: file, counter: &countingReader{r: file}}

	var src io.Reader = bufio.NewReaderSize(r.counter, readBufferSize)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		r.gz, err = gzip.NewReader(src)
		if err != nil {
			file.Close()
			return nil, &Error{Kind: KindCSVParse, Message: "invalid gzip stream", Path: path, Err: err}
		}
		src = bufio.NewReaderSize(r.gz, readBufferSize)
	}

	br := src.(*bufio.Reader)
	// Skip UTF-8 BOM if present
	bom, err := br.Peek(3)
	if err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	r.csv = reader

	if err := r.readHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *CSVReader) readHeader() error {
	row, err := r.csv.Read()
	if err != nil {
		if err == io.EOF {
			return &Error{Kind: KindCSVParse, Message: "missing header row", Path: r.path, Line: 1}
		}
		return r.wrapReadError(err)
	}
	r.markLine()
	r.header = make([]string, len(row))
	for i, h := range row {
		r.header[i] = strings.TrimSpace(h)
	}
	if len(r.header) > 0 {
		r.header[0] = strings.TrimPrefix(r.header[0], "\ufeff")
	}
	return nil
}

// Header returns the trimmed header row.
func (r *CSVReader) Header() []string { return r.header }

// Next returns the next non-blank data row, or io.EOF. The returned slice
// is reused by the following call.
func (r *CSVReader) Next() ([]string, error) {
	for {
		row, err := r.csv.Read()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, r.wrapReadError(err)
		}
		r.markLine()

		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		return row, nil
	}
}

func (r *CSVReader) wrapReadError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		r.line = int64(pe.Line)
		return &Error{Kind: KindCSVParse, Message: pe.Err.Error(), Path: r.path, Line: int64(pe.Line), Err: err}
	}
	return &Error{Kind: KindCSVParse, Message: "read failed", Path: r.path, Line: r.line, Err: err}
}

func (r *CSVReader) markLine() {
	line, _ := r.csv.FieldPos(0)
	r.line = int64(line)
}

// Line returns the 1-based line on which the last returned row started.
func (r *CSVReader) Line() int64 { return r.line }

// BytesRead returns how many bytes of the underlying file have been read.
func (r *CSVReader) BytesRead() int64 { return r.counter.n }

func (r *CSVReader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	return r.file.Close()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// cell returns the trimmed value at i, or "" when the row is short. Bytes
// that are not valid UTF-8 become U+FFFD.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.ToValidUTF8(strings.TrimSpace(row[i]), "\uFFFD")
}
