package npdata

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	progressEvery = 1000

	// estimation constants for the main file
	bytesPerSourceRow = 2000
	bytesPerRecord    = 500
)

var tracer = otel.Tracer("nppestool/npdata")

// Progress is reported every 1000 rows and once at the end of each file.
type Progress struct {
	File    string
	Rows    int64
	Bytes   int64
	Elapsed time.Duration
}

// LoadObserver receives load outcomes, typically to feed metrics.
type LoadObserver interface {
	ObserveLoad(LoadReport)
	ObserveRowError(kind FileKind, errKind ErrorKind)
}

// LoadOptions controls how files are read.
type LoadOptions struct {
	// SkipInvalidRecords selects lenient mode: bad rows are counted and
	// skipped instead of aborting the load.
	SkipInvalidRecords bool
	BuildIndexes       bool
	ValidateHeaders    bool
	// MemoryLimitBytes aborts the main load when the estimate exceeds it.
	// Zero means no limit.
	MemoryLimitBytes int64
	Progress         func(Progress)
	Logger           *zap.Logger
	Observer         LoadObserver
	// MaxLoggedErrors caps per-row error logging in lenient mode.
	MaxLoggedErrors int
}

func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		BuildIndexes:    true,
		ValidateHeaders: true,
		MaxLoggedErrors: 10,
	}
}

func (o *LoadOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// LoadReport summarises one file load.
type LoadReport struct {
	File         string
	Kind         FileKind
	Rows         int64
	Loaded       int64
	Skipped      int64
	Warnings     int64
	Errors       map[ErrorKind]int
	UnknownCodes map[string]int
	Duration     time.Duration
}

// EstimateMemory returns the expected record count and footprint for a main
// file of fileSize bytes.
func EstimateMemory(fileSize int64) (records, bytes int64) {
	records = fileSize / bytesPerSourceRow
	return records, records * bytesPerRecord
}

// CheckMemory returns a Memory error when the estimate for fileSize exceeds
// limit. A zero limit disables the check.
func CheckMemory(fileSize, limit int64) error {
	if limit <= 0 {
		return nil
	}
	if _, need := EstimateMemory(fileSize); need > limit {
		return insufficientMemory(need, limit)
	}
	return nil
}

func statFile(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, &Error{Kind: KindFileNotFound, Message: "file not found", Path: path, Err: err}
		}
		return 0, err
	}
	return fi.Size(), nil
}

// LoadProviders reads a main npidata file.
func LoadProviders(ctx context.Context, path string, opts LoadOptions) ([]*Provider, LoadReport, error) {
	size, err := statFile(path)
	if err != nil {
		return nil, LoadReport{File: path, Kind: MainFile}, err
	}
	if err := CheckMemory(size, opts.MemoryLimitBytes); err != nil {
		e := err.(*Error)
		e.Path = path
		return nil, LoadReport{File: path, Kind: MainFile}, e
	}
	estimate, _ := EstimateMemory(size)
	return loadFile(ctx, path, MainFile, opts, int(estimate), (*rowParser).parseProvider)
}

func LoadOtherNames(ctx context.Context, path string, opts LoadOptions) ([]OtherNameRecord, LoadReport, error) {
	return loadFile(ctx, path, OtherNameFile, opts, 0, (*rowParser).parseOtherName)
}

func LoadPracticeLocations(ctx context.Context, path string, opts LoadOptions) ([]PracticeLocation, LoadReport, error) {
	return loadFile(ctx, path, PracticeLocationFile, opts, 0, (*rowParser).parsePracticeLocation)
}

func LoadEndpoints(ctx context.Context, path string, opts LoadOptions) ([]Endpoint, LoadReport, error) {
	return loadFile(ctx, path, EndpointFile, opts, 0, (*rowParser).parseEndpoint)
}

func LoadTaxonomyReference(ctx context.Context, path string, opts LoadOptions) ([]TaxonomyReference, LoadReport, error) {
	return loadFile(ctx, path, TaxonomyFile, opts, 0, (*rowParser).parseTaxonomyReference)
}

// loadFile streams path through convert. In strict mode the first row error
// is returned; in lenient mode failed rows are counted and skipped.
func loadFile[T any](ctx context.Context, path string, kind FileKind, opts LoadOptions, capHint int,
	convert func(*rowParser, []string) (T, error)) (out []T, report LoadReport, err error) {

	log := opts.logger().With(zap.String("file", path), zap.Stringer("kind", kind))
	report = LoadReport{File: path, Kind: kind, Errors: make(map[ErrorKind]int)}

	ctx, span := tracer.Start(ctx, "npdata.load",
		trace.WithAttributes(
			attribute.String("file", path),
			attribute.String("kind", kind.String()),
		))
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Int64("rows", report.Rows),
			attribute.Int64("loaded", report.Loaded),
			attribute.Int64("skipped", report.Skipped),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		} else if opts.Observer != nil {
			opts.Observer.ObserveLoad(report)
		}
		span.End()
	}()

	reader, err := NewCSVReader(path)
	if err != nil {
		return nil, report, err
	}
	defer reader.Close()

	rp := newRowParser(path, kind)
	report.UnknownCodes = rp.unknown
	rp.warn = func(msg string, npi NPI, line int64) {
		report.Warnings++
		if report.Warnings <= int64(opts.MaxLoggedErrors) {
			log.Warn(msg, zap.String("npi", string(npi)), zap.Int64("line", line))
		}
	}

	if opts.ValidateHeaders {
		if err := rp.schema.ValidateHeaders(reader.Header()); err != nil {
			e := err.(*Error)
			e.Path = path
			e.Line = 1
			return nil, report, e
		}
	}

	if capHint > 0 {
		out = make([]T, 0, capHint)
	}

	progress := func() {
		if opts.Progress != nil {
			opts.Progress(Progress{File: path, Rows: report.Rows, Bytes: reader.BytesRead(), Elapsed: time.Since(start)})
		}
	}

	rowError := func(err error) error {
		errKind := ErrorKindOf(err)
		if errKind == "" {
			return err
		}
		if opts.Observer != nil {
			opts.Observer.ObserveRowError(kind, errKind)
		}
		if !opts.SkipInvalidRecords {
			return err
		}
		report.Skipped++
		report.Errors[errKind]++
		if report.Skipped <= int64(opts.MaxLoggedErrors) {
			log.Warn("skipping invalid row", zap.Int64("line", reader.Line()), zap.Error(err))
		}
		return nil
	}

	for {
		row, rerr := reader.Next()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			report.Rows++
			if err := rowError(rerr); err != nil {
				return nil, report, err
			}
			continue
		}
		report.Rows++
		rp.line = reader.Line()

		rec, cerr := convert(rp, row)
		if cerr != nil {
			if err := rowError(cerr); err != nil {
				return nil, report, err
			}
		} else {
			out = append(out, rec)
			report.Loaded++
		}

		if report.Rows%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
			progress()
		}
	}
	progress()

	log.Info("loaded file",
		zap.Int64("rows", report.Rows),
		zap.Int64("loaded", report.Loaded),
		zap.Int64("skipped", report.Skipped),
		zap.Duration("elapsed", time.Since(start)))
	return out, report, nil
}
