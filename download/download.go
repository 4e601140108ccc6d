// Package download fetches the monthly NPPES dissemination archive from CMS
// and unpacks it.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"nppestool/npdata"
)

var tracer = otel.Tracer("nppestool/download")

const DefaultBaseURL = "https://download.cms.gov/nppes"

// ErrTooLarge is returned when the archive exceeds Config.MaxBytes.
var ErrTooLarge = errors.New("download exceeds size limit")

type Config struct {
	Timeout     time.Duration
	MaxBytes    int64
	UserAgent   string
	Dir         string
	KeepArchive bool
	BaseURL     string
}

func DefaultConfig() Config {
	return Config{
		Timeout:   300 * time.Second,
		MaxBytes:  20 << 30,
		UserAgent: "nppestool/1.0",
		Dir:       "nppes_data",
		BaseURL:   DefaultBaseURL,
	}
}

// Observer receives transfer and breaker state updates.
type Observer interface {
	AddDownloadBytes(n int64)
	SetBreakerState(name string, state int)
}

// Downloader issues HTTP requests through a circuit breaker so a failing
// CMS endpoint is not hammered by retries.
type Downloader struct {
	cfg      Config
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
	observer Observer
}

// statusError is an HTTP response outside 2xx.
type statusError struct {
	Code int
	URL  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Code, http.StatusText(e.Code), e.URL)
}

func New(cfg Config, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}

	d := &Downloader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nppes-download",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// 4xx responses and oversize archives do not trip the breaker.
			var se *statusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil || errors.Is(err, ErrTooLarge)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if d.observer != nil {
				d.observer.SetBreakerState(name, int(to))
			}
		},
	})
	return d
}

// SetObserver installs o; nil disables observation.
func (d *Downloader) SetObserver(o Observer) { d.observer = o }

// BreakerState reports the breaker state.
func (d *Downloader) BreakerState() gobreaker.State { return d.breaker.State() }

func (d *Downloader) do(ctx context.Context, method, url string) (*http.Response, error) {
	res, err := d.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", d.cfg.UserAgent)
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, &statusError{Code: resp.StatusCode, URL: url}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}

func (d *Downloader) checkSize(n int64) error {
	if n > d.cfg.MaxBytes {
		return fmt.Errorf("%w: %s exceeds maximum %s", ErrTooLarge,
			npdata.FormatBytes(n), npdata.FormatBytes(d.cfg.MaxBytes))
	}
	return nil
}

// Fetch downloads url into the configured directory and returns the file
// path. The advertised size is checked with a HEAD request first; the body
// is cut off once it passes MaxBytes.
func (d *Downloader) Fetch(ctx context.Context, url string) (string, error) {
	ctx, span := tracer.Start(ctx, "download.fetch", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	p, err := d.fetch(ctx, url)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return p, nil
}

func (d *Downloader) fetch(ctx context.Context, url string) (string, error) {
	d.logger.Info("downloading", zap.String("url", url))

	head, err := d.do(ctx, http.MethodHead, url)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", url, err)
	}
	head.Body.Close()
	if err := d.checkSize(head.ContentLength); err != nil {
		return "", err
	}

	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	name := path.Base(url)
	if name == "" || name == "/" || name == "." {
		name = "nppes_download.zip"
	}
	dest := filepath.Join(d.cfg.Dir, name)

	resp, err := d.do(ctx, http.MethodGet, url)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if err := d.checkSize(resp.ContentLength); err != nil {
		return "", err
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmp, err)
	}
	pw := &progressWriter{w: f, total: resp.ContentLength, logger: d.logger, last: time.Now()}
	n, err := io.Copy(pw, io.LimitReader(resp.Body, d.cfg.MaxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if d.observer != nil {
		d.observer.AddDownloadBytes(n)
	}
	if err == nil {
		err = d.checkSize(n)
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", tmp, err)
	}

	d.logger.Info("download complete",
		zap.String("file", dest),
		zap.String("size", npdata.FormatBytes(n)))
	return dest, nil
}

// progressWriter logs transfer progress every 10 seconds.
type progressWriter struct {
	w      io.Writer
	n      int64
	total  int64
	logger *zap.Logger
	last   time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.n += int64(n)
	if time.Since(p.last) >= 10*time.Second {
		fields := []zap.Field{zap.String("downloaded", npdata.FormatBytes(p.n))}
		if p.total > 0 {
			fields = append(fields, zap.String("percent", strconv.FormatFloat(float64(p.n)*100/float64(p.total), 'f', 1, 64)))
		}
		p.logger.Info("download progress", fields...)
		p.last = time.Now()
	}
	return n, err
}

// FetchAndExtract downloads url, unpacks it into dir (the download
// directory when empty) and removes the archive unless KeepArchive is set.
func (d *Downloader) FetchAndExtract(ctx context.Context, url, dir string) (Extracted, error) {
	zipPath, err := d.Fetch(ctx, url)
	if err != nil {
		return Extracted{}, err
	}
	if dir == "" {
		dir = d.cfg.Dir
	}
	ex, err := d.Extract(zipPath, dir)
	if err != nil {
		return ex, err
	}
	if !d.cfg.KeepArchive {
		if err := os.Remove(zipPath); err != nil {
			d.logger.Warn("remove archive", zap.String("file", zipPath), zap.Error(err))
		}
	}
	return ex, nil
}

// LatestURL is the V2 dissemination archive for the month of now, e.g.
// NPPES_Data_Dissemination_May_2024_V2.zip.
func (d *Downloader) LatestURL(now time.Time) string {
	return fmt.Sprintf("%s/NPPES_Data_Dissemination_%s_%d_V2.zip", d.cfg.BaseURL, now.Month(), now.Year())
}

// FetchLatest downloads and extracts the archive for the month of now.
func (d *Downloader) FetchLatest(ctx context.Context, now time.Time) (Extracted, error) {
	return d.FetchAndExtract(ctx, d.LatestURL(now), "")
}
