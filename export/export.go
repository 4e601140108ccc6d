// Package export writes provider records to files, PostgreSQL and Kafka.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"nppestool/npdata"
)

var tracer = otel.Tracer("nppestool/export")

// Format selects an output encoding.
type Format int

const (
	JSON Format = iota
	JSONL
	CSV
	CSVFlat
	SQL
	Parquet
)

var formatNames = [...]string{"json", "jsonl", "csv", "csv-flat", "sql", "parquet"}
var formatExts = [...]string{".json", ".jsonl", ".csv", ".csv", ".sql", ".parquet"}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

// Extension is the conventional file suffix for f.
func (f Format) Extension() string { return formatExts[f] }

// ParseFormat accepts a format name, ignoring case.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range formatNames {
		if n == name {
			return Format(i), nil
		}
	}
	return 0, &npdata.Error{
		Kind:    npdata.KindConfiguration,
		Message: fmt.Sprintf("unknown export format %q (want one of %s)", s, strings.Join(formatNames[:], ", ")),
		Value:   s,
	}
}

// Options tune the exporters. Fields that do not apply to a format are
// ignored.
type Options struct {
	Pretty         bool
	Delimiter      rune
	IncludeHeaders bool
	TablePrefix    string
	BatchSize      int
	Logger         *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		Pretty:         true,
		Delimiter:      ',',
		IncludeHeaders: true,
		TablePrefix:    "nppes",
		BatchSize:      1000,
	}
}

func (o *Options) normalize() {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.TablePrefix == "" {
		o.TablePrefix = "nppes"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Result lists the files written and the number of provider records.
type Result struct {
	Format Format
	Files  []string
	Rows   int
}

func exportError(msg, path string, err error) error {
	return &npdata.Error{Kind: npdata.KindExport, Message: msg, Path: path, Err: err}
}

// Write encodes providers to w. Only single-stream formats are accepted;
// CSV and Parquet produce several files and go through ToFile.
func Write(ctx context.Context, w io.Writer, providers []*npdata.Provider, format Format, opts Options) error {
	opts.normalize()
	var err error
	switch format {
	case JSON:
		err = writeJSON(w, providers, opts)
	case JSONL:
		err = writeJSONL(ctx, w, providers)
	case CSVFlat:
		err = writeFlatCSV(ctx, w, providers, opts)
	case SQL:
		err = writeSQL(ctx, w, providers, opts)
	default:
		return exportError(fmt.Sprintf("format %s cannot be streamed to a single writer", format), "", nil)
	}
	if err != nil {
		if npdata.ErrorKindOf(err) == npdata.KindExport {
			return err
		}
		return exportError("write "+format.String(), "", err)
	}
	return nil
}

// ToFile exports providers to path. Normalized CSV writes
// <base>_providers.csv and <base>_taxonomies.csv next to path; Parquet
// writes path and <base>_taxonomies.parquet.
func ToFile(ctx context.Context, path string, providers []*npdata.Provider, format Format, opts Options) (Result, error) {
	opts.normalize()
	ctx, span := tracer.Start(ctx, "export.to_file",
		trace.WithAttributes(
			attribute.String("format", format.String()),
			attribute.String("path", path),
			attribute.Int("providers", len(providers)),
		))
	defer span.End()

	res, err := toFile(ctx, path, providers, format, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return res, err
	}
	opts.Logger.Info("export complete",
		zap.String("format", format.String()),
		zap.Strings("files", res.Files),
		zap.Int("rows", res.Rows))
	return res, nil
}

func toFile(ctx context.Context, path string, providers []*npdata.Provider, format Format, opts Options) (Result, error) {
	res := Result{Format: format, Rows: len(providers)}
	switch format {
	case CSV:
		files, err := writeNormalizedCSV(ctx, path, providers, opts)
		res.Files = files
		return res, err
	case Parquet:
		files, err := writeParquet(ctx, path, providers)
		res.Files = files
		return res, err
	}

	f, err := os.Create(path)
	if err != nil {
		return res, exportError("create output", path, err)
	}
	bw := bufio.NewWriterSize(f, 256*1024)
	if err := Write(ctx, bw, providers, format, opts); err != nil {
		f.Close()
		return res, err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return res, exportError("flush output", path, err)
	}
	if err := f.Close(); err != nil {
		return res, exportError("close output", path, err)
	}
	res.Files = []string{path}
	return res, nil
}

// ExportFile exports the providers matched by q, or the whole dataset when q
// is nil.
func ExportFile(ctx context.Context, path string, ds *npdata.Dataset, q *npdata.Query, format Format, opts Options) (Result, error) {
	providers := ds.Providers()
	if q != nil {
		providers = q.Execute()
	}
	return ToFile(ctx, path, providers, format, opts)
}

// siblingPath returns dir/<stem><suffix> for path's directory and stem.
func siblingPath(path, suffix string) string {
	dir := filepath.Dir(path)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem == "" {
		stem = "nppes_export"
	}
	return filepath.Join(dir, stem+suffix)
}
