package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nppestool/download"
	"nppestool/export"
	"nppestool/npdata"
	"nppestool/server"
)

// filters are the selection flags shared by query, export and publish.
type filters struct {
	state      string
	specialty  string
	taxonomy   string
	entityType string
	npiFile    string
	active     bool
}

func (f *filters) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.state, "state", "", "two-letter state code, or a comma-separated list")
	cmd.Flags().StringVar(&f.specialty, "specialty", "", "substring of the taxonomy display name")
	cmd.Flags().StringVar(&f.taxonomy, "taxonomy", "", "exact taxonomy code")
	cmd.Flags().StringVar(&f.entityType, "entity-type", "", "1/individual or 2/organization")
	cmd.Flags().StringVar(&f.npiFile, "npi-file", "", "restrict to NPIs listed in this file (JSON or one per line)")
	cmd.Flags().BoolVar(&f.active, "active", false, "only providers without a deactivation date")
}

func (f *filters) isEmpty() bool {
	return f.state == "" && f.specialty == "" && f.taxonomy == "" &&
		f.entityType == "" && f.npiFile == "" && !f.active
}

// query builds a query from the flags; nil means no filter was given.
func (f *filters) query(ds *npdata.Dataset) (*npdata.Query, error) {
	if f.isEmpty() {
		return nil, nil
	}
	q := ds.Query()
	if f.state != "" {
		q.StateIn(strings.Split(f.state, ",")...)
	}
	if f.specialty != "" {
		if !ds.HasTaxonomyReference() {
			return nil, fail(exitFailure, errors.New("--specialty needs the nucc_taxonomy file in the data directory"))
		}
		q.Specialty(f.specialty)
	}
	if f.taxonomy != "" {
		q.Taxonomy(f.taxonomy)
	}
	if f.entityType != "" {
		et, ok := parseEntityType(f.entityType)
		if !ok {
			return nil, fail(exitFailure, fmt.Errorf("invalid --entity-type %q", f.entityType))
		}
		q.EntityType(et)
	}
	if f.npiFile != "" {
		allow, err := npdata.LoadNPIFilter(f.npiFile)
		if err != nil {
			return nil, fail(exitFailure, err)
		}
		q.NPIIn(allow)
	}
	if f.active {
		q.ActiveOnly()
	}
	return q, nil
}

func parseEntityType(v string) (npdata.EntityType, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "individual":
		return npdata.Individual, true
	case "organization":
		return npdata.Organization, true
	}
	return npdata.ParseEntityType(v)
}

// selected returns the providers the filters match, or all of them.
func (f *filters) selected(ds *npdata.Dataset) ([]*npdata.Provider, error) {
	q, err := f.query(ds)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return ds.Providers(), nil
	}
	return q.Execute(), nil
}

func statsCmd(a *app) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print dataset statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ds, err := a.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ds.Statistics().Summary(out)
			if top > 0 {
				printTop(out, ds, top)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "also list the N most common states and taxonomies")
	return cmd
}

func printTop(w io.Writer, ds *npdata.Dataset, n int) {
	fmt.Fprintf(w, "\nTop %d States:\n", n)
	for i, kc := range ds.TopStates(n) {
		fmt.Fprintf(w, "  %2d. %s: %d\n", i+1, kc.Key, kc.Count)
	}
	fmt.Fprintf(w, "\nTop %d Taxonomies:\n", n)
	for i, kc := range ds.TopTaxonomies(n) {
		label := kc.Key
		if ref, ok := ds.GetTaxonomyDescription(kc.Key); ok && ref.DisplayName != "" {
			label += " (" + ref.DisplayName + ")"
		}
		fmt.Fprintf(w, "  %2d. %s: %d\n", i+1, label, kc.Count)
	}
}

func printProvider(w io.Writer, p *npdata.Provider) {
	fmt.Fprintf(w, "%s | %s | %s | %s\n", p.NPI, p.DisplayName(), p.EntityType, p.MailingAddress.State)
}

func queryCmd(a *app) *cobra.Command {
	var (
		f     filters
		npi   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find providers by NPI, state, taxonomy or specialty",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ds, err := a.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			start := time.Now()

			if npi != "" {
				n, err := npdata.ParseNPI(npi)
				if err != nil {
					return fail(exitFailure, err)
				}
				p := ds.GetByNPI(n)
				a.metrics.ObserveQuery("by_npi", time.Since(start))
				if p == nil {
					fmt.Fprintf(out, "No provider with NPI %s\n", n)
					return fail(exitNoResults, nil)
				}
				printProvider(out, p)
				fmt.Fprintln(out, "Total matches: 1")
				return nil
			}

			q, err := f.query(ds)
			if err != nil {
				return err
			}
			if q == nil {
				q = ds.Query()
			}
			total := q.Count()
			if limit > 0 {
				q.Limit(limit)
			}
			results := q.Execute()
			a.metrics.ObserveQuery("query", time.Since(start))

			for _, p := range results {
				printProvider(out, p)
			}
			fmt.Fprintf(out, "Total matches: %d\n", total)
			if total > len(results) {
				fmt.Fprintf(out, "(showing first %d)\n", len(results))
			}
			if total == 0 {
				return fail(exitNoResults, nil)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&npi, "npi", "", "look up a single NPI")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum providers to print, 0 for all")
	return cmd
}

func exportCmd(a *app) *cobra.Command {
	var (
		f         filters
		output    string
		format    string
		reference bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export providers to JSON, JSONL, CSV, SQL or Parquet",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if format == "" {
				format = a.cfg.ExportFormat
			}
			fmtv, err := export.ParseFormat(format)
			if err != nil {
				return fail(exitFailure, err)
			}
			if output == "" {
				output = "nppes_export" + fmtv.Extension()
			}
			ds, err := a.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			q, err := f.query(ds)
			if err != nil {
				return err
			}

			res, err := export.ExportFile(cmd.Context(), output, ds, q, fmtv, a.cfg.ExportOptions(a.logger))
			if err != nil {
				return fail(exitExport, err)
			}
			a.metrics.ObserveExport(fmtv.String(), res.Rows)
			fmt.Fprintf(out, "Exported %d providers as %s:\n", res.Rows, fmtv)
			for _, file := range res.Files {
				fmt.Fprintf(out, "  %s\n", file)
			}

			if reference {
				files, err := export.WriteReferenceParquet(cmd.Context(), filepath.Dir(output), ds)
				if err != nil {
					return fail(exitExport, err)
				}
				fmt.Fprintln(out, "Reference tables:")
				for _, file := range files {
					fmt.Fprintf(out, "  %s\n", file)
				}
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default nppes_export.<format extension>)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json, jsonl, csv, csv-flat, sql or parquet (default NPPES_EXPORT_FORMAT)")
	cmd.Flags().BoolVar(&reference, "reference", false, "also write the reference files as Parquet next to the output")
	return cmd
}

func downloadCmd(a *app) *cobra.Command {
	var (
		outDir string
		url    string
		keep   bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and extract the monthly NPPES release",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if outDir == "" {
				outDir = a.cfg.DownloadDir
			}
			cfg := download.DefaultConfig()
			cfg.Dir = outDir
			cfg.Timeout = a.cfg.DownloadTimeout
			cfg.MaxBytes = a.cfg.MaxDownloadBytes
			cfg.KeepArchive = keep
			d := download.New(cfg, a.logger)
			d.SetObserver(a.metrics)

			var ex download.Extracted
			var err error
			if url == "" {
				ex, err = d.FetchLatest(cmd.Context(), time.Now())
			} else {
				ex, err = d.FetchAndExtract(cmd.Context(), url, "")
			}
			if err != nil {
				return fail(exitFailure, err)
			}
			fmt.Fprintf(out, "Extracted %d files to %s\n", len(ex.Files), ex.Dir)
			fmt.Fprintln(out, ex.Summary())
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "destination directory (default NPPES_DOWNLOAD_DIR)")
	cmd.Flags().StringVar(&url, "url", "", "archive URL (default: this month's release)")
	cmd.Flags().BoolVar(&keep, "keep-archive", false, "keep the zip after extraction")
	return cmd
}

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dataset over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			ds, err := a.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return server.New(ds, a.logger, a.metrics).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default NPPES_HTTP_ADDR)")
	return cmd
}

func loadPGCmd(a *app) *cobra.Command {
	var (
		f     filters
		dbURL string
		batch int
	)
	cmd := &cobra.Command{
		Use:   "load-pg",
		Short: "Copy providers into PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if dbURL == "" {
				dbURL = a.cfg.DatabaseURL
			}
			if dbURL == "" {
				return fail(exitFailure, errors.New("--database-url or NPPES_DATABASE_URL is required"))
			}
			ds, err := a.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			providers, err := f.selected(ds)
			if err != nil {
				return err
			}

			opts := a.cfg.ExportOptions(a.logger)
			if batch > 0 {
				opts.BatchSize = batch
			}
			loader, err := export.NewPGLoader(cmd.Context(), dbURL, opts)
			if err != nil {
				return fail(exitExport, err)
			}
			defer loader.Close()
			if err := loader.CreateSchema(cmd.Context()); err != nil {
				return fail(exitExport, err)
			}
			stats, err := loader.Load(cmd.Context(), providers)
			if err != nil {
				return fail(exitExport, err)
			}
			a.metrics.ObserveExport("postgres", int(stats.Providers))
			fmt.Fprintf(out, "Loaded %d providers, %d taxonomies, %d other identifiers in %s\n",
				stats.Providers, stats.Taxonomies, stats.OtherIdentifiers, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&dbURL, "database-url", "", "PostgreSQL connection string (default NPPES_DATABASE_URL)")
	cmd.Flags().IntVar(&batch, "batch", 0, "rows per COPY transaction (default NPPES_BATCH_SIZE)")
	return cmd
}

func publishCmd(a *app) *cobra.Command {
	var (
		f       filters
		brokers []string
		topic   string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish providers to a Kafka topic as JSON keyed by NPI",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(brokers) == 0 {
				brokers = a.cfg.KafkaBrokers
			}
			if topic == "" {
				topic = a.cfg.KafkaTopic
			}
			ds, err := a.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			providers, err := f.selected(ds)
			if err != nil {
				return err
			}

			sink, err := export.NewKafkaSink(export.KafkaConfig{
				Brokers:   brokers,
				Topic:     topic,
				BatchSize: a.cfg.BatchSize,
			}, a.logger)
			if err != nil {
				return fail(exitFailure, err)
			}
			defer sink.Close()

			n, err := sink.Publish(cmd.Context(), providers)
			a.metrics.ObserveExport("kafka", n)
			if err != nil {
				a.logger.Error("publish failed", zap.Int("sent", n), zap.Error(err))
				return fail(exitExport, err)
			}
			fmt.Fprintf(out, "Published %d providers to %s\n", n, topic)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringSliceVar(&brokers, "brokers", nil, "Kafka seed brokers (default NPPES_KAFKA_BROKERS)")
	cmd.Flags().StringVar(&topic, "topic", "", "topic (default NPPES_KAFKA_TOPIC)")
	return cmd
}
