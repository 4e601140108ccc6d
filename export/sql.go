package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"nppestool/npdata"
)

// schemaDDL is the PostgreSQL schema shared by the SQL script exporter and
// PGLoader.
func schemaDDL(prefix string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s_providers (
  npi VARCHAR(10) PRIMARY KEY,
  entity_type SMALLINT,
  organization_name VARCHAR(255),
  last_name VARCHAR(100),
  first_name VARCHAR(100),
  middle_name VARCHAR(100),
  mailing_address_line1 VARCHAR(255),
  mailing_address_city VARCHAR(100),
  mailing_address_state VARCHAR(2),
  mailing_address_postal_code VARCHAR(10),
  enumeration_date DATE,
  last_update_date DATE,
  deactivation_date DATE,
  is_active BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS %[1]s_taxonomies (
  id SERIAL PRIMARY KEY,
  npi VARCHAR(10) REFERENCES %[1]s_providers(npi),
  taxonomy_code VARCHAR(10) NOT NULL,
  is_primary BOOLEAN DEFAULT FALSE,
  license_number VARCHAR(50),
  license_state VARCHAR(2)
);

CREATE TABLE IF NOT EXISTS %[1]s_other_identifiers (
  id SERIAL PRIMARY KEY,
  npi VARCHAR(10) REFERENCES %[1]s_providers(npi),
  identifier VARCHAR(50) NOT NULL,
  type_code VARCHAR(2),
  state VARCHAR(2),
  issuer VARCHAR(80)
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_state ON %[1]s_providers(mailing_address_state);
CREATE INDEX IF NOT EXISTS idx_%[1]s_taxonomy ON %[1]s_taxonomies(taxonomy_code);
`, prefix)
}

// sqlString quotes s as a SQL literal; "" becomes NULL.
func sqlString(s string) string {
	if s == "" {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sqlDate(d npdata.Date) string {
	if d.IsZero() {
		return "NULL"
	}
	return "'" + d.String() + "'"
}

func sqlEntityType(e npdata.EntityType) string {
	if e == 0 {
		return "NULL"
	}
	return e.Code()
}

func providerValues(p *npdata.Provider) string {
	var org, last, first, middle string
	if p.IsOrganization() {
		org = p.Organization.LegalBusinessName
	} else {
		last, first, middle = p.Name.Last, p.Name.First, p.Name.Middle
	}
	a := p.MailingAddress
	return fmt.Sprintf("(%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %t)",
		sqlString(string(p.NPI)),
		sqlEntityType(p.EntityType),
		sqlString(org),
		sqlString(last),
		sqlString(first),
		sqlString(middle),
		sqlString(a.Line1),
		sqlString(a.City),
		sqlString(string(a.State)),
		sqlString(a.PostalCode),
		sqlDate(p.EnumerationDate),
		sqlDate(p.LastUpdateDate),
		sqlDate(p.DeactivationDate),
		p.IsActive(),
	)
}

// writeSQL writes the schema followed by multi-row INSERT statements of at
// most opts.BatchSize rows.
func writeSQL(ctx context.Context, w io.Writer, providers []*npdata.Provider, opts Options) error {
	prefix := opts.TablePrefix
	if _, err := fmt.Fprintf(w, "-- NPPES Database Schema for PostgreSQL\n\n%s\n-- Provider data\n", schemaDDL(prefix)); err != nil {
		return err
	}

	count := 0
	for start := 0; start < len(providers); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := providers[start:min(start+opts.BatchSize, len(providers))]
		fmt.Fprintf(w, "INSERT INTO %s_providers (npi, entity_type, organization_name, last_name, first_name, middle_name, "+
			"mailing_address_line1, mailing_address_city, mailing_address_state, mailing_address_postal_code, "+
			"enumeration_date, last_update_date, deactivation_date, is_active) VALUES\n", prefix)
		for i, p := range chunk {
			sep := ","
			if i == len(chunk)-1 {
				sep = ";"
			}
			if _, err := fmt.Fprintf(w, "  %s%s\n", providerValues(p), sep); err != nil {
				return err
			}
			count++
			if count%10000 == 0 {
				fmt.Fprintf(w, "-- Processed %d records\n", count)
			}
		}
	}

	fmt.Fprint(w, "\n-- Taxonomy data\n")
	var rows []string
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		_, err := fmt.Fprintf(w, "INSERT INTO %s_taxonomies (npi, taxonomy_code, is_primary, license_number, license_state) VALUES\n  %s;\n",
			prefix, strings.Join(rows, ",\n  "))
		rows = rows[:0]
		return err
	}
	for _, p := range providers {
		for _, t := range p.TaxonomyCodes {
			rows = append(rows, fmt.Sprintf("(%s, %s, %t, %s, %s)",
				sqlString(string(p.NPI)), sqlString(t.Code), t.IsPrimary,
				sqlString(t.LicenseNumber), sqlString(string(t.LicenseState))))
			if len(rows) >= opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}
