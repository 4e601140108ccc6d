package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"nppestool/npdata"
)

var (
	pgProviderColumns = []string{
		"npi", "entity_type", "organization_name", "last_name", "first_name", "middle_name",
		"mailing_address_line1", "mailing_address_city", "mailing_address_state", "mailing_address_postal_code",
		"enumeration_date", "last_update_date", "deactivation_date", "is_active",
	}
	pgTaxonomyColumns = []string{"npi", "taxonomy_code", "is_primary", "license_number", "license_state"}
	pgOtherIDColumns  = []string{"npi", "identifier", "type_code", "state", "issuer"}
)

// PGLoader copies providers into PostgreSQL tables named <prefix>_providers,
// <prefix>_taxonomies and <prefix>_other_identifiers.
type PGLoader struct {
	pool   *pgxpool.Pool
	owned  bool
	prefix string
	batch  int
	logger *zap.Logger
}

// PGStats counts the rows copied per table.
type PGStats struct {
	Providers        int64
	Taxonomies       int64
	OtherIdentifiers int64
	Duration         time.Duration
}

// NewPGLoader connects to connStr. The pool is closed by Close.
func NewPGLoader(ctx context.Context, connStr string, opts Options) (*PGLoader, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, exportError("parse connection", "", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, exportError("connect", "", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, exportError("ping", "", err)
	}
	l := NewPGLoaderFromPool(pool, opts)
	l.owned = true
	return l, nil
}

// NewPGLoaderFromPool uses an existing pool, which the caller keeps owning.
func NewPGLoaderFromPool(pool *pgxpool.Pool, opts Options) *PGLoader {
	opts.normalize()
	return &PGLoader{pool: pool, prefix: opts.TablePrefix, batch: opts.BatchSize, logger: opts.Logger}
}

func (l *PGLoader) Close() {
	if l.owned {
		l.pool.Close()
	}
}

func (l *PGLoader) table(name string) pgx.Identifier {
	return pgx.Identifier{l.prefix + "_" + name}
}

// CreateSchema creates the tables and indexes if they do not exist.
func (l *PGLoader) CreateSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schemaDDL(l.prefix)); err != nil {
		return exportError("create schema", "", err)
	}
	return nil
}

func pgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: strings.ToValidUTF8(s, " "), Valid: true}
}

func pgDate(d npdata.Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func pgEntityType(e npdata.EntityType) pgtype.Int2 {
	if e == 0 {
		return pgtype.Int2{}
	}
	return pgtype.Int2{Int16: int16(e), Valid: true}
}

// dedupeLastWins keeps the last record of each NPI, in first-seen order.
func dedupeLastWins(providers []*npdata.Provider) []*npdata.Provider {
	last := make(map[npdata.NPI]int, len(providers))
	for i, p := range providers {
		last[p.NPI] = i
	}
	if len(last) == len(providers) {
		return providers
	}
	out := make([]*npdata.Provider, 0, len(last))
	for i, p := range providers {
		if last[p.NPI] == i {
			out = append(out, p)
		}
	}
	return out
}

// Load copies providers in batches, one transaction per batch. Duplicate
// NPIs keep their last record, and an NPI already in the tables has its rows
// replaced, so loading the same release twice is safe.
func (l *PGLoader) Load(ctx context.Context, providers []*npdata.Provider) (PGStats, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "export.postgres_load",
		trace.WithAttributes(attribute.Int("providers", len(providers))))
	defer span.End()

	var stats PGStats
	providers = dedupeLastWins(providers)
	lastLog := time.Now()
	for lo := 0; lo < len(providers); lo += l.batch {
		chunk := providers[lo:min(lo+l.batch, len(providers))]
		if err := l.copyBatch(ctx, chunk, &stats); err != nil {
			span.RecordError(err)
			return stats, err
		}
		if time.Since(lastLog) >= 5*time.Second {
			l.logger.Info("postgres load progress",
				zap.Int64("providers", stats.Providers),
				zap.Int("total", len(providers)))
			lastLog = time.Now()
		}
	}
	stats.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int64("taxonomies", stats.Taxonomies),
		attribute.Int64("other_identifiers", stats.OtherIdentifiers),
	)
	l.logger.Info("postgres load complete",
		zap.Int64("providers", stats.Providers),
		zap.Int64("taxonomies", stats.Taxonomies),
		zap.Int64("other_identifiers", stats.OtherIdentifiers),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

func (l *PGLoader) copyBatch(ctx context.Context, chunk []*npdata.Provider, stats *PGStats) error {
	var provRows, taxRows, idRows [][]any
	npis := make([]string, len(chunk))
	for i, p := range chunk {
		npis[i] = string(p.NPI)
		var org, last, first, middle string
		if p.IsOrganization() {
			org = p.Organization.LegalBusinessName
		} else {
			last, first, middle = p.Name.Last, p.Name.First, p.Name.Middle
		}
		a := p.MailingAddress
		provRows = append(provRows, []any{
			string(p.NPI), pgEntityType(p.EntityType), pgText(org), pgText(last), pgText(first), pgText(middle),
			pgText(a.Line1), pgText(a.City), pgText(string(a.State)), pgText(a.PostalCode),
			pgDate(p.EnumerationDate), pgDate(p.LastUpdateDate), pgDate(p.DeactivationDate), p.IsActive(),
		})
		for _, t := range p.TaxonomyCodes {
			taxRows = append(taxRows, []any{
				string(p.NPI), t.Code, t.IsPrimary, pgText(t.LicenseNumber), pgText(string(t.LicenseState)),
			})
		}
		for _, id := range p.OtherIdentifiers {
			idRows = append(idRows, []any{
				string(p.NPI), id.Identifier, pgText(id.TypeCode), pgText(string(id.State)), pgText(id.Issuer.String()),
			})
		}
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return exportError("begin tx", "", err)
	}
	defer tx.Rollback(ctx)

	// Rows already stored for these NPIs are replaced, children first.
	for _, name := range []string{"taxonomies", "other_identifiers", "providers"} {
		sql := "DELETE FROM " + l.table(name).Sanitize() + " WHERE npi = ANY($1)"
		if _, err := tx.Exec(ctx, sql, npis); err != nil {
			return exportError(fmt.Sprintf("clear %s_%s", l.prefix, name), "", err)
		}
	}

	n, err := tx.CopyFrom(ctx, l.table("providers"), pgProviderColumns, pgx.CopyFromRows(provRows))
	if err != nil {
		return exportError(fmt.Sprintf("copy %s_providers", l.prefix), "", err)
	}
	stats.Providers += n
	if n, err = tx.CopyFrom(ctx, l.table("taxonomies"), pgTaxonomyColumns, pgx.CopyFromRows(taxRows)); err != nil {
		return exportError(fmt.Sprintf("copy %s_taxonomies", l.prefix), "", err)
	}
	stats.Taxonomies += n
	if n, err = tx.CopyFrom(ctx, l.table("other_identifiers"), pgOtherIDColumns, pgx.CopyFromRows(idRows)); err != nil {
		return exportError(fmt.Sprintf("copy %s_other_identifiers", l.prefix), "", err)
	}
	stats.OtherIdentifiers += n

	if err := tx.Commit(ctx); err != nil {
		return exportError("commit", "", err)
	}
	return nil
}

// Count returns the row count of one of the loader's tables.
func (l *PGLoader) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	sql := "SELECT count(*) FROM " + l.table(table).Sanitize()
	if err := l.pool.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, exportError("count "+table, "", err)
	}
	return n, nil
}
